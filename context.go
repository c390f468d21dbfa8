package gpuframe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Option configures Open.
type Option func(*options)

type options struct {
	backend    backend.Backend
	deviceOpts []DeviceOption
	schedOpts  []SchedulerOption
}

// WithBackend uses b instead of looking up Config.Backend in the registry.
// The Context does not close a backend supplied this way.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithDeviceOptions passes opts to CreateDevice.
func WithDeviceOptions(opts ...DeviceOption) Option {
	return func(o *options) {
		o.deviceOpts = append(o.deviceOpts, opts...)
	}
}

// WithSchedulerOptions passes opts to NewScheduler, after the frame timeout
// taken from Config.WaitTimeout.
func WithSchedulerOptions(opts ...SchedulerOption) Option {
	return func(o *options) {
		o.schedOpts = append(o.schedOpts, opts...)
	}
}

// queueFence is a queue with the fence its flushes use.
type queueFence struct {
	queue *Queue
	fence *Fence
}

// Context owns every GPU object of a renderer: backend, adapter, device,
// graphics queue and fence, command pool, surface and frame scheduler.
// Extra queues created with Queue are owned too.
//
// Context holds no package-level state; several can coexist.
type Context struct {
	id          uuid.UUID
	cfg         Config
	backend     backend.Backend
	ownsBackend bool

	adapter  *Adapter
	device   *Device
	graphics queueFence
	pool     *CommandPool
	surface  *Surface
	sched    *Scheduler

	mu     sync.Mutex
	extra  map[backend.QueueKind]queueFence
	closed bool
}

// Open brings up the GPU and the frame loop for target.
func Open(cfg Config, target backend.SurfaceTarget, opts ...Option) (_ *Context, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		id:      uuid.New(),
		cfg:     cfg,
		backend: o.backend,
		extra:   make(map[backend.QueueKind]queueFence),
	}
	defer func() {
		if err != nil {
			if cerr := c.release(); cerr != nil {
				Logger().Warn("gpuframe: release after failed open", "context", c.id, "error", cerr)
			}
		}
	}()

	if c.backend == nil {
		if cfg.Backend != "" {
			c.backend, err = backend.Get(cfg.Backend)
		} else {
			c.backend, err = backend.Default()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCompatibleAdapter, err)
		}
		c.ownsBackend = true
	}
	Logger().Info("gpuframe: backend", "context", c.id, "name", c.backend.Name())

	if c.adapter, err = SelectAdapter(c.backend, cfg.PreferSoftware); err != nil {
		return nil, err
	}
	if c.device, err = CreateDevice(c.adapter, o.deviceOpts...); err != nil {
		return nil, err
	}
	if c.graphics.queue, err = c.device.CreateQueue(backend.QueueGraphics); err != nil {
		return nil, err
	}
	if c.graphics.fence, err = c.device.CreateFence(); err != nil {
		return nil, err
	}
	width, height := cfg.Width, cfg.Height
	if target != nil {
		if w, h := target.Size(); w > 0 && h > 0 {
			width, height = w, h
		}
	}
	if c.surface, err = c.device.CreateSurface(target, c.graphics.queue, width, height, cfg.BufferCount); err != nil {
		return nil, err
	}
	if c.pool, err = c.device.CreateCommandPool(backend.QueueGraphics, c.surface.BufferCount()); err != nil {
		return nil, err
	}
	schedOpts := append([]SchedulerOption{WithFrameTimeout(time.Duration(cfg.WaitTimeout))}, o.schedOpts...)
	if c.sched, err = NewScheduler(c.graphics.queue, c.graphics.fence, c.pool, c.surface, schedOpts...); err != nil {
		return nil, err
	}
	return c, nil
}

// ID identifies the context in log records.
func (c *Context) ID() uuid.UUID { return c.id }

// Config returns the parameters the context was opened with.
func (c *Context) Config() Config { return c.cfg }

func (c *Context) Adapter() *Adapter         { return c.adapter }
func (c *Context) Device() *Device           { return c.device }
func (c *Context) Surface() *Surface         { return c.surface }
func (c *Context) Scheduler() *Scheduler     { return c.sched }
func (c *Context) Graphics() *Queue          { return c.graphics.queue }
func (c *Context) Fence() *Fence             { return c.graphics.fence }
func (c *Context) CommandPool() *CommandPool { return c.pool }

// Queue returns the queue of kind with its fence, creating both on first use.
func (c *Context) Queue(kind backend.QueueKind) (*Queue, *Fence, error) {
	if kind == backend.QueueGraphics {
		return c.graphics.queue, c.graphics.fence, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrDestroyed
	}
	if qf, ok := c.extra[kind]; ok {
		return qf.queue, qf.fence, nil
	}
	q, err := c.device.CreateQueue(kind)
	if err != nil {
		return nil, nil, err
	}
	f, err := c.device.CreateFence()
	if err != nil {
		q.Destroy()
		return nil, nil, err
	}
	c.extra[kind] = queueFence{queue: q, fence: f}
	return q, f, nil
}

// Render runs one frame with the configured vsync.
func (c *Context) Render(rec Recorder) error {
	return c.sched.Render(rec, c.cfg.VSync)
}

func (c *Context) flushContext() (context.Context, context.CancelFunc) {
	if c.cfg.WaitTimeout > 0 {
		return context.WithTimeout(context.Background(), time.Duration(c.cfg.WaitTimeout))
	}
	return context.WithCancel(context.Background())
}

// Resize flushes the graphics queue, then recreates the surface images.
// It fails with ErrFrameInProgress, leaving the images intact, while a
// frame is being recorded.
func (c *Context) Resize(width, height uint32) error {
	if c.sched.inFrame() {
		return ErrFrameInProgress
	}
	ctx, cancel := c.flushContext()
	defer cancel()
	if err := c.graphics.queue.FlushContext(ctx, c.graphics.fence); err != nil {
		return fmt.Errorf("gpuframe: resize: %w", err)
	}
	if err := c.surface.Resize(width, height); err != nil {
		return err
	}
	return c.sched.Reset()
}

func (c *Context) queues() []queueFence {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]queueFence, 0, 1+len(c.extra))
	if c.graphics.queue != nil && c.graphics.fence != nil {
		all = append(all, c.graphics)
	}
	for _, kind := range []backend.QueueKind{backend.QueueCompute, backend.QueueCopy} {
		if qf, ok := c.extra[kind]; ok {
			all = append(all, qf)
		}
	}
	return all
}

// FlushAll flushes every queue of the context in parallel.
func (c *Context) FlushAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, qf := range c.queues() {
		g.Go(func() error {
			return qf.queue.FlushContext(ctx, qf.fence)
		})
	}
	return g.Wait()
}

// Close flushes every queue, then releases surface, command pool, fences,
// queues, device and backend, in that order. A lost device is not flushed.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if c.device != nil && !c.device.Lost() {
		ctx, cancel := c.flushContext()
		if err := c.FlushAll(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := c.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release destroys whatever Open created, in reverse creation order.
func (c *Context) release() error {
	if c.surface != nil {
		c.surface.Destroy()
	}
	if c.pool != nil {
		c.pool.Destroy()
	}
	for _, qf := range c.queues() {
		qf.fence.Destroy()
		qf.queue.Destroy()
	}
	if c.graphics.queue != nil && c.graphics.fence == nil {
		c.graphics.queue.Destroy()
	}
	var err error
	if c.device != nil {
		err = c.device.Destroy()
	}
	if c.ownsBackend && c.backend != nil {
		c.backend.Close()
	}
	Logger().Debug("gpuframe: context closed", "context", c.id)
	return err
}

// Provider exposes the context to gogpu libraries that take a
// gpucontext.DeviceProvider.
func (c *Context) Provider() gpucontext.DeviceProvider { return provider{c} }

type provider struct{ c *Context }

var _ gpucontext.DeviceProvider = provider{}

func (p provider) Device() gpucontext.Device   { return deviceHandle{p.c} }
func (p provider) Queue() gpucontext.Queue     { return p.c.graphics.queue }
func (p provider) Adapter() gpucontext.Adapter { return p.c.adapter }
func (p provider) SurfaceFormat() gputypes.TextureFormat {
	return p.c.surface.Format()
}

func (p provider) AdapterInfo() gpucontext.AdapterInfo {
	info := p.c.adapter.Info()
	return gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info)}
}

func adapterType(info backend.AdapterInfo) gpucontext.AdapterType {
	if info.Software {
		return gpucontext.AdapterTypeSoftware
	}
	switch info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// deviceHandle adapts the graphics queue to gpucontext.Device. Poll(true)
// flushes; Destroy is a no-op because the Context owns the device.
type deviceHandle struct{ c *Context }

func (h deviceHandle) Poll(wait bool) {
	if !wait {
		return
	}
	ctx, cancel := h.c.flushContext()
	defer cancel()
	if err := h.c.graphics.queue.FlushContext(ctx, h.c.graphics.fence); err != nil {
		Logger().Warn("gpuframe: poll", "error", err)
	}
}

func (deviceHandle) Destroy() {}
