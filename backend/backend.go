package backend

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when a backend exposes no adapter of the requested kind.
	ErrNoAdapter = errors.New("backend: no adapter")

	// ErrUnsupportedFeatureLevel is returned when an adapter cannot create a device.
	ErrUnsupportedFeatureLevel = errors.New("backend: feature level not supported")

	// ErrDeviceLost is returned once the device has been removed or reset.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrAllocatorBusy is returned when an allocator is reset while the GPU
	// still executes a command list recorded from it.
	ErrAllocatorBusy = errors.New("backend: allocator reset while in flight")

	// ErrImagesInUse is returned when swapchain images are released while
	// submitted work still references them.
	ErrImagesInUse = errors.New("backend: swapchain images in use")

	// ErrInvalidState is returned when a command list is used in the wrong
	// lifecycle state (recording into a closed list, resetting an open one).
	ErrInvalidState = errors.New("backend: invalid command list state")

	// ErrUnsupportedOperation is returned when a command list records an
	// operation its queue kind does not accept.
	ErrUnsupportedOperation = errors.New("backend: operation not supported by queue kind")

	// ErrDestroyed is returned when an object is used after Destroy.
	ErrDestroyed = errors.New("backend: object destroyed")
)

// Backend is a GPU driver: the entry point that enumerates adapters.
//
// Backends are registered via Register and selected via Get or Default.
// A backend is owned by whoever created it and must be closed after every
// device opened from it has been destroyed.
type Backend interface {
	// Name returns the backend identifier (e.g., "sim", "native").
	Name() string

	// EnumerateAdapters returns all adapters in enumeration order.
	EnumerateAdapters() ([]Adapter, error)

	// SoftwareAdapter returns the software rasterizer adapter.
	SoftwareAdapter() (Adapter, error)

	// SupportsTearing reports whether the display pipeline can present
	// without waiting for vertical blank.
	SupportsTearing() bool

	// Close releases the backend.
	Close()
}

// AdapterInfo describes a physical (or emulated) GPU.
type AdapterInfo struct {
	Name            string
	DedicatedMemory uint64
	Software        bool
	DeviceType      gputypes.DeviceType
}

// Adapter is an enumerable GPU.
type Adapter interface {
	Info() AdapterInfo

	// Probe checks that a device could be created on the adapter without
	// keeping one around.
	Probe() error

	// Open creates the device.
	Open() (Device, error)
}

// Device allocates every other driver object. Destroying a device while any
// of its objects are alive or referenced by pending GPU work is undefined.
type Device interface {
	CreateQueue(kind QueueKind) (Queue, error)
	CreateFence(initial uint64) (Fence, error)
	CreateAllocator(kind QueueKind) (Allocator, error)

	// CreateCommandList returns a list in the closed state.
	CreateCommandList(kind QueueKind) (CommandList, error)

	// CreateSwapchain creates a ring of presentable images on q.
	CreateSwapchain(target SurfaceTarget, q Queue, desc *SwapchainDescriptor) (Swapchain, error)

	// PushMessageFilter installs a validation message filter.
	PushMessageFilter(filter MessageFilter) error

	Destroy()
}

// Queue executes command lists in submission order.
type Queue interface {
	Kind() QueueKind

	// Submit appends closed lists to the execution order.
	Submit(lists ...CommandList) error

	// Signal enqueues a marker that sets the fence to value once all
	// previously submitted work on this queue has executed.
	Signal(f Fence, value uint64) error

	// Wait makes subsequent work on this queue wait on the GPU until the
	// fence reaches value. The CPU does not block.
	Wait(f Fence, value uint64) error

	Destroy()
}

// Fence is a monotonically non-decreasing 64-bit counter advanced by queues.
type Fence interface {
	// CompletedValue returns the last value the GPU reached.
	CompletedValue() uint64

	// Notify registers a one-shot notification. The returned channel is
	// closed once CompletedValue() >= value, or when the fence is destroyed.
	// Callers must re-check CompletedValue after the channel closes.
	Notify(value uint64) <-chan struct{}

	Destroy()
}

// Allocator is the memory backing a command list. It must not be reset while
// a list recorded from it is still executing.
type Allocator interface {
	Reset() error
	Destroy()
}

// CommandList records GPU operations.
//
// Recording errors are deferred: they are returned by Close, the way D3D12
// and Vulkan report them.
type CommandList interface {
	Kind() QueueKind

	// Reset puts a closed list back into recording state on alloc.
	Reset(alloc Allocator) error

	Close() error
	Closed() bool

	// Barrier transitions image from one state to another.
	Barrier(image Image, before, after ResourceState)

	// ClearColor clears image to c. This is a draw operation.
	ClearColor(image Image, c gputypes.Color)

	Destroy()
}

// Image is one presentable swapchain buffer.
type Image interface {
	Index() int
	Size() (width, height uint32)
}

// SurfaceTarget is the drawable supplied by the window host.
type SurfaceTarget interface {
	NativeHandle() uintptr
	Size() (width, height uint32)
}

// SwapchainDescriptor describes a swapchain to create.
type SwapchainDescriptor struct {
	Width        uint32
	Height       uint32
	BufferCount  int
	Format       gputypes.TextureFormat
	AllowTearing bool
}

// Swapchain is a ring of presentable images.
type Swapchain interface {
	BufferCount() int
	Image(i int) Image

	// CurrentIndex returns the image the next frame renders into. It is
	// authoritative after every Present and Resize.
	CurrentIndex() int

	// Present queues the current image for display. syncInterval 0 presents
	// immediately; allowTearing requires SwapchainDescriptor.AllowTearing.
	Present(syncInterval int, allowTearing bool) error

	// Resize releases and recreates all images and their views.
	Resize(width, height uint32) error

	Format() gputypes.TextureFormat
	Destroy()
}
