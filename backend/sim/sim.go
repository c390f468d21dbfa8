package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
)

func init() {
	backend.Register(backend.BackendSim, func() (backend.Backend, error) {
		return New(), nil
	})
}

// AdapterSpec describes one simulated adapter.
type AdapterSpec struct {
	Name            string
	DedicatedMemory uint64
	Software        bool

	// Unsupported makes the capability probe and Open fail.
	Unsupported bool
}

// IndexPolicy chooses the back buffer index after a present.
type IndexPolicy func(current, count int) int

// Sequential advances the index by one, modulo count.
func Sequential(current, count int) int { return (current + 1) % count }

// DefaultAdapters is the adapter set used when WithAdapters is not given.
var DefaultAdapters = []AdapterSpec{
	{Name: "Simulated Integrated GPU", DedicatedMemory: 1 << 30},
	{Name: "Simulated Discrete GPU", DedicatedMemory: 8 << 30},
	{Name: "Simulated Software Rasterizer", Software: true},
}

// Option configures a simulated backend.
type Option func(*options)

type options struct {
	adapters  []AdapterSpec
	tearing   bool
	execDelay time.Duration
	refresh   time.Duration
	nextIndex IndexPolicy
}

// WithAdapters replaces the enumerated adapters.
func WithAdapters(specs ...AdapterSpec) Option {
	return func(o *options) {
		o.adapters = append([]AdapterSpec(nil), specs...)
	}
}

// WithTearing sets whether the display pipeline supports tearing.
func WithTearing(supported bool) Option {
	return func(o *options) {
		o.tearing = supported
	}
}

// WithExecutionDelay makes every submitted command list take d to execute.
func WithExecutionDelay(d time.Duration) Option {
	return func(o *options) {
		o.execDelay = d
	}
}

// WithRefreshInterval sets the vertical blank period that vsync presents wait for.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refresh = d
	}
}

// WithIndexPolicy sets how the current back buffer advances after a present.
func WithIndexPolicy(p IndexPolicy) Option {
	return func(o *options) {
		o.nextIndex = p
	}
}

// Backend is a simulated GPU. Every queue runs on its own goroutine and
// executes work strictly in submission order.
//
// Backend is safe for concurrent use.
type Backend struct {
	opts options

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool

	lost   atomic.Bool
	closed atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a simulated backend.
func New(opts ...Option) *Backend {
	o := options{
		adapters:  DefaultAdapters,
		nextIndex: Sequential,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.nextIndex == nil {
		o.nextIndex = Sequential
	}
	b := &Backend{opts: o}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Name returns "sim".
func (b *Backend) Name() string { return backend.BackendSim }

// EnumerateAdapters returns every configured adapter, software ones included.
func (b *Backend) EnumerateAdapters() ([]backend.Adapter, error) {
	if b.closed.Load() {
		return nil, backend.ErrDestroyed
	}
	out := make([]backend.Adapter, 0, len(b.opts.adapters))
	for _, spec := range b.opts.adapters {
		out = append(out, &Adapter{b: b, spec: spec})
	}
	return out, nil
}

// SoftwareAdapter returns the first software adapter.
func (b *Backend) SoftwareAdapter() (backend.Adapter, error) {
	if b.closed.Load() {
		return nil, backend.ErrDestroyed
	}
	for _, spec := range b.opts.adapters {
		if spec.Software {
			return &Adapter{b: b, spec: spec}, nil
		}
	}
	return nil, backend.ErrNoAdapter
}

// SupportsTearing reports the WithTearing setting.
func (b *Backend) SupportsTearing() bool { return b.opts.tearing }

// Close releases the backend. Paused queues are resumed so they can drain.
func (b *Backend) Close() {
	b.closed.Store(true)
	b.Resume()
}

// Pause stops all queues from starting new work until Resume.
// Work already executing finishes.
func (b *Backend) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume lets paused queues continue.
func (b *Backend) Resume() {
	b.mu.Lock()
	b.paused = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// LoseDevice simulates a device removal: every later submit, signal or
// present fails with backend.ErrDeviceLost.
func (b *Backend) LoseDevice() { b.lost.Store(true) }

// waitRunnable blocks while the backend is paused.
func (b *Backend) waitRunnable() {
	b.mu.Lock()
	for b.paused {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Adapter is a simulated adapter.
type Adapter struct {
	b    *Backend
	spec AdapterSpec
}

var _ backend.Adapter = (*Adapter)(nil)

// Info returns the adapter description.
func (a *Adapter) Info() backend.AdapterInfo {
	dt := gputypes.DeviceTypeDiscreteGPU
	if a.spec.Software {
		dt = gputypes.DeviceTypeCPU
	}
	return backend.AdapterInfo{
		Name:            a.spec.Name,
		DedicatedMemory: a.spec.DedicatedMemory,
		Software:        a.spec.Software,
		DeviceType:      dt,
	}
}

// Probe fails for adapters configured as Unsupported.
func (a *Adapter) Probe() error {
	if a.spec.Unsupported {
		return backend.ErrUnsupportedFeatureLevel
	}
	return nil
}

// Open creates a simulated device.
func (a *Adapter) Open() (backend.Device, error) {
	if err := a.Probe(); err != nil {
		return nil, err
	}
	if a.b.closed.Load() {
		return nil, backend.ErrDestroyed
	}
	backend.Logger().Debug("sim: device opened", "adapter", a.spec.Name)
	return &Device{b: a.b, adapter: a}, nil
}
