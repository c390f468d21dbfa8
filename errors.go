package gpuframe

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpuframe/backend"
)

// Construction errors. These abort Open.
var (
	// ErrNoCompatibleAdapter is returned when enumeration yields no usable adapter.
	ErrNoCompatibleAdapter = errors.New("gpuframe: no compatible adapter")

	// ErrDeviceCreation is returned when the adapter cannot create a device.
	ErrDeviceCreation = errors.New("gpuframe: device creation failed")

	// ErrResourceCreation is returned when a queue, allocator, command list,
	// fence or surface cannot be allocated.
	ErrResourceCreation = errors.New("gpuframe: resource creation failed")
)

// Steady-state errors.
var (
	// ErrWaitTimeout is returned when a fence wait expires. The wait may be retried.
	ErrWaitTimeout = errors.New("gpuframe: fence wait timed out")

	// ErrSurfaceResize is returned when a surface is resized while the GPU
	// may still reference its images. The caller skipped a flush.
	ErrSurfaceResize = errors.New("gpuframe: surface resized with GPU work outstanding")

	// ErrDeviceLost is returned when the device was removed or reset.
	ErrDeviceLost = errors.New("gpuframe: device lost")
)

// Contract errors.
var (
	ErrFrameInProgress      = errors.New("gpuframe: frame already in progress")
	ErrNoFrame              = errors.New("gpuframe: frame is not the one in progress")
	ErrDestroyed            = errors.New("gpuframe: object destroyed")
	ErrResourcesOutstanding = errors.New("gpuframe: device has live resources")
	ErrInvalidConfig        = errors.New("gpuframe: invalid config")
)

func isDeviceLost(err error) bool { return errors.Is(err, backend.ErrDeviceLost) }

// resourceError wraps a backend failure to allocate what.
func resourceError(what string, err error) error {
	if isDeviceLost(err) {
		return fmt.Errorf("%w: %s: %w", ErrDeviceLost, what, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrResourceCreation, what, err)
}
