package gpuframe

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpuframe/backend"
)

// DefaultMessageFilter is the validation filter installed by debug builds
// (build tag gpuframe_debug). Corruption, errors and warnings break; info
// messages and a fixed list of known-benign message IDs are dropped.
func DefaultMessageFilter() backend.MessageFilter {
	return backend.MessageFilter{
		BreakOn: []backend.MessageSeverity{
			backend.SeverityCorruption,
			backend.SeverityError,
			backend.SeverityWarning,
		},
		DenySeverities: []backend.MessageSeverity{
			backend.SeverityInfo,
		},
		DenyIDs: []backend.MessageID{
			// Clearing with a color other than the optimized clear value.
			backend.MessageClearRenderTargetViewMismatchingClearValue,
			// Raised by graphics debuggers on null map ranges.
			backend.MessageMapInvalidNullRange,
			backend.MessageUnmapInvalidNullRange,
		},
	}
}

// DeviceOption configures CreateDevice.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	filter *backend.MessageFilter
	onLost func(error)
}

// WithMessageFilter installs filter instead of the build default.
func WithMessageFilter(filter backend.MessageFilter) DeviceOption {
	return func(o *deviceOptions) {
		o.filter = &filter
	}
}

// WithDeviceLostHandler sets the hook run once when the device is lost.
// Recovery (recreating the device, queues and surface) is up to the hook.
func WithDeviceLostHandler(fn func(error)) DeviceOption {
	return func(o *deviceOptions) {
		o.onLost = fn
	}
}

// Device is the resource allocation context created from an adapter.
// It must outlive every queue, fence, pool and surface created from it.
type Device struct {
	adapter *Adapter
	dev     backend.Device
	opts    deviceOptions

	live      atomic.Int32
	destroyed atomic.Bool
	lost      atomic.Bool
	lostOnce  sync.Once
}

// CreateDevice opens a device on a.
func CreateDevice(a *Adapter, opts ...DeviceOption) (*Device, error) {
	var o deviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.filter == nil && debugBuild {
		f := DefaultMessageFilter()
		o.filter = &f
	}

	dev, err := a.adapter.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceCreation, a.info.Name, err)
	}
	if o.filter != nil {
		if err := dev.PushMessageFilter(*o.filter); err != nil {
			dev.Destroy()
			return nil, fmt.Errorf("%w: message filter: %w", ErrDeviceCreation, err)
		}
	}
	Logger().Info("gpuframe: device created", "adapter", a.info.Name, "debug", debugBuild)
	return &Device{adapter: a, dev: dev, opts: o}, nil
}

// Adapter returns the adapter the device was created on.
func (d *Device) Adapter() *Adapter { return d.adapter }

// Backend returns the driver device.
func (d *Device) Backend() backend.Device { return d.dev }

// LiveResources returns the number of created and not yet destroyed
// queues, fences, pools and surfaces.
func (d *Device) LiveResources() int { return int(d.live.Load()) }

// Lost reports whether the device has been lost.
func (d *Device) Lost() bool { return d.lost.Load() }

func (d *Device) check() error {
	if d.destroyed.Load() {
		return ErrDestroyed
	}
	if d.lost.Load() {
		return ErrDeviceLost
	}
	return nil
}

func (d *Device) retain()  { d.live.Add(1) }
func (d *Device) release() { d.live.Add(-1) }

// fail converts a backend error from op. Device loss runs the hook once.
func (d *Device) fail(op string, err error) error {
	if !isDeviceLost(err) {
		return fmt.Errorf("gpuframe: %s: %w", op, err)
	}
	d.lost.Store(true)
	wrapped := fmt.Errorf("%w: %s: %w", ErrDeviceLost, op, err)
	d.lostOnce.Do(func() {
		Logger().Warn("gpuframe: device lost", "op", op, "error", err)
		if d.opts.onLost != nil {
			d.opts.onLost(wrapped)
		}
	})
	return wrapped
}

// CreateQueue creates a queue of kind.
func (d *Device) CreateQueue(kind backend.QueueKind) (*Queue, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	q, err := d.dev.CreateQueue(kind)
	if err != nil {
		return nil, resourceError(kind.String()+" queue", err)
	}
	d.retain()
	return &Queue{dev: d, q: q, kind: kind}, nil
}

// CreateFence creates a fence whose completed and next values are zero.
func (d *Device) CreateFence() (*Fence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	f, err := d.dev.CreateFence(0)
	if err != nil {
		return nil, resourceError("fence", err)
	}
	d.retain()
	return &Fence{dev: d, f: f}, nil
}

// Destroy releases the device. It fails with ErrResourcesOutstanding while
// any resource created from the device is alive.
func (d *Device) Destroy() error {
	if n := d.live.Load(); n > 0 {
		return fmt.Errorf("%w: %d", ErrResourcesOutstanding, n)
	}
	if d.destroyed.Swap(true) {
		return nil
	}
	d.dev.Destroy()
	Logger().Debug("gpuframe: device destroyed", "adapter", d.adapter.info.Name)
	return nil
}
