// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuframe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gpuframe/backend/sim"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 64, 48
	cfg.WaitTimeout = Duration(testTimeout)
	return cfg
}

func openContext(t *testing.T, cfg Config, opts ...sim.Option) (*Context, *sim.Backend) {
	t.Helper()
	b := sim.New(opts...)
	t.Cleanup(b.Close)
	c, err := Open(cfg, window{}, WithBackend(b))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		b.Resume()
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return c, b
}

func TestOpenClose(t *testing.T) {
	b := sim.New()
	defer b.Close()
	c, err := Open(testConfig(), window{}, WithBackend(b))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := c.Adapter().Info().Name; got != "Simulated Discrete GPU" {
		t.Errorf("adapter = %q, want the discrete GPU", got)
	}
	if w, h := c.Surface().Size(); w != 64 || h != 48 {
		t.Errorf("surface size = %dx%d, want 64x48", w, h)
	}
	if c.Surface().BufferCount() != 3 || c.CommandPool().Len() != 3 {
		t.Errorf("buffers = %d, pool = %d, want 3", c.Surface().BufferCount(), c.CommandPool().Len())
	}
	if c.Graphics().Kind() != backend.QueueGraphics {
		t.Errorf("Graphics().Kind() = %v", c.Graphics().Kind())
	}
	for range 10 {
		if err := c.Render(clearFrame); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	if got := c.Scheduler().Stats().Frames; got != 10 {
		t.Errorf("Frames = %d, want 10", got)
	}

	dev := c.Device()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := dev.LiveResources(); n != 0 {
		t.Errorf("LiveResources() = %d after Close, want 0", n)
	}
	if !c.Graphics().Idle() {
		t.Error("graphics queue not idle after Close")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, _, err := c.Queue(backend.QueueCopy); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Queue() after Close = %v, want ErrDestroyed", err)
	}
}

func TestContextIDs(t *testing.T) {
	a, _ := openContext(t, testConfig())
	b, _ := openContext(t, testConfig())
	if a.ID() == uuid.Nil || a.ID() == b.ID() {
		t.Errorf("IDs %v and %v, want two distinct non-nil IDs", a.ID(), b.ID())
	}
}

func TestOpenUsesTargetSize(t *testing.T) {
	b := sim.New()
	defer b.Close()
	c, err := Open(testConfig(), window{320, 200}, WithBackend(b))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()
	if w, h := c.Surface().Size(); w != 320 || h != 200 {
		t.Errorf("surface size = %dx%d, want the target's 320x200", w, h)
	}
}

func TestOpenFromRegistry(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = backend.BackendSim
	c, err := Open(cfg, window{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.backend.Name() != backend.BackendSim || !c.ownsBackend {
		t.Errorf("backend = %q owned=%v, want owned sim", c.backend.Name(), c.ownsBackend)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCount = 1
	if _, err := Open(cfg, window{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Open(1 buffer) = %v, want ErrInvalidConfig", err)
	}

	cfg = testConfig()
	cfg.Backend = "metal"
	if _, err := Open(cfg, window{}); !errors.Is(err, ErrNoCompatibleAdapter) {
		t.Errorf("Open(unknown backend) = %v, want ErrNoCompatibleAdapter", err)
	}

	b := sim.New(sim.WithAdapters(sim.AdapterSpec{Name: "SW", Software: true}))
	defer b.Close()
	if _, err := Open(testConfig(), window{}, WithBackend(b)); !errors.Is(err, ErrNoCompatibleAdapter) {
		t.Errorf("Open(no hardware adapter) = %v, want ErrNoCompatibleAdapter", err)
	}
	cfg = testConfig()
	cfg.PreferSoftware = true
	c, err := Open(cfg, window{}, WithBackend(b))
	if err != nil {
		t.Fatalf("Open(prefer software) = %v", err)
	}
	if !c.Adapter().Info().Software {
		t.Error("software adapter not selected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestContextResize(t *testing.T) {
	c, b := openContext(t, testConfig())

	b.Pause()
	if err := c.Render(clearFrame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := c.Surface().Resize(800, 600); !errors.Is(err, ErrSurfaceResize) {
		t.Fatalf("Surface.Resize() without flush = %v, want ErrSurfaceResize", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Resume()
	}()
	if err := c.Resize(800, 600); err != nil {
		t.Fatalf("Context.Resize() = %v", err)
	}
	if w, h := c.Surface().Size(); w != 800 || h != 600 {
		t.Errorf("Size() = %dx%d, want 800x600", w, h)
	}
	for i := range c.Surface().BufferCount() {
		if got := c.Scheduler().SlotState(i); got != SlotIdle {
			t.Errorf("SlotState(%d) = %v after resize, want idle", i, got)
		}
	}
	for range 5 {
		if err := c.Render(clearFrame); err != nil {
			t.Fatalf("Render after resize: %v", err)
		}
	}
}

func TestContextResizeMidFrame(t *testing.T) {
	c, _ := openContext(t, testConfig())
	f, err := c.Scheduler().BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := c.Resize(800, 600); !errors.Is(err, ErrFrameInProgress) {
		t.Fatalf("Resize() mid-frame = %v, want ErrFrameInProgress", err)
	}
	if w, h := c.Surface().Size(); w != 64 || h != 48 {
		t.Errorf("Size() = %dx%d, want the images left at 64x48", w, h)
	}
	if c.Surface().BackBuffer(f.Index) != f.BackBuffer {
		t.Error("the open frame's back buffer was recreated")
	}
	if err := clearFrame(f); err != nil {
		t.Fatal(err)
	}
	if err := c.Scheduler().EndFrame(f, c.Config().VSync); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if err := c.Resize(800, 600); err != nil {
		t.Errorf("Resize() after the frame = %v", err)
	}
}

func TestContextQueues(t *testing.T) {
	c, _ := openContext(t, testConfig())

	q, f, err := c.Queue(backend.QueueGraphics)
	if err != nil || q != c.Graphics() || f != c.Fence() {
		t.Fatalf("Queue(graphics) = %p %p %v, want the graphics queue", q, f, err)
	}
	cq, cf, err := c.Queue(backend.QueueCompute)
	if err != nil {
		t.Fatalf("Queue(compute): %v", err)
	}
	again, _, err := c.Queue(backend.QueueCompute)
	if err != nil || again != cq {
		t.Errorf("second Queue(compute) = %p %v, want the same queue", again, err)
	}
	if _, _, err := c.Queue(backend.QueueCopy); err != nil {
		t.Fatalf("Queue(copy): %v", err)
	}

	if _, err := cq.Signal(cf); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := c.Render(clearFrame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := c.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	for _, qf := range c.queues() {
		if !qf.queue.Idle() {
			t.Errorf("%v queue not idle after FlushAll", qf.queue.Kind())
		}
	}
}

func TestContextFlushAllTimeout(t *testing.T) {
	c, b := openContext(t, testConfig())
	if _, _, err := c.Queue(backend.QueueCopy); err != nil {
		t.Fatal(err)
	}
	b.Pause()
	if err := c.Render(clearFrame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.FlushAll(ctx); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("FlushAll() = %v, want ErrWaitTimeout", err)
	}
}

func TestContextCloseWithLeakedResource(t *testing.T) {
	b := sim.New()
	defer b.Close()
	c, err := Open(testConfig(), window{}, WithBackend(b))
	if err != nil {
		t.Fatal(err)
	}
	leaked, err := c.Device().CreateCommandPool(backend.QueueGraphics, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); !errors.Is(err, ErrResourcesOutstanding) {
		t.Errorf("Close() = %v, want ErrResourcesOutstanding", err)
	}
	leaked.Destroy()
	if err := c.Device().Destroy(); err != nil {
		t.Errorf("Device.Destroy() after releasing the leak = %v", err)
	}
}

func TestContextDeviceLost(t *testing.T) {
	b := sim.New()
	defer b.Close()
	lost := make(chan error, 1)
	c, err := Open(testConfig(), window{}, WithBackend(b),
		WithDeviceOptions(WithDeviceLostHandler(func(err error) { lost <- err })))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Render(clearFrame); err != nil {
		t.Fatal(err)
	}
	b.LoseDevice()
	if err := c.Render(clearFrame); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Render() = %v, want ErrDeviceLost", err)
	}
	select {
	case err := <-lost:
		if !errors.Is(err, ErrDeviceLost) {
			t.Errorf("hook error = %v", err)
		}
	default:
		t.Error("device lost hook not called")
	}
	// A lost device is released without a flush.
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestContextProvider(t *testing.T) {
	c, b := openContext(t, testConfig())
	p := c.Provider()
	if p.SurfaceFormat() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("SurfaceFormat() = %v, want RGBA8Unorm", p.SurfaceFormat())
	}
	if p.Queue() == nil || p.Adapter() == nil || p.Device() == nil {
		t.Fatal("provider returned a nil handle")
	}
	want := gpucontext.AdapterInfo{Name: "Simulated Discrete GPU", Type: gpucontext.AdapterTypeDiscrete}
	if got := p.AdapterInfo(); got != want {
		t.Errorf("AdapterInfo() = %+v, want %+v", got, want)
	}

	dev, ok := p.Device().(deviceHandle)
	if !ok {
		t.Fatalf("Device() = %T, want deviceHandle", p.Device())
	}
	b.Pause()
	if err := c.Render(clearFrame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	dev.Poll(false)
	if c.Graphics().Idle() {
		t.Error("Poll(false) waited for the GPU")
	}
	b.Resume()
	dev.Poll(true)
	if !c.Graphics().Idle() {
		t.Error("Poll(true) did not flush")
	}
	// The context owns the device.
	dev.Destroy()
	if err := c.Render(clearFrame); err != nil {
		t.Errorf("Render after provider Destroy: %v", err)
	}
}

func TestAdapterType(t *testing.T) {
	tests := []struct {
		name string
		info backend.AdapterInfo
		want gpucontext.AdapterType
	}{
		{"discrete", backend.AdapterInfo{DeviceType: gputypes.DeviceTypeDiscreteGPU}, gpucontext.AdapterTypeDiscrete},
		{"integrated", backend.AdapterInfo{DeviceType: gputypes.DeviceTypeIntegratedGPU}, gpucontext.AdapterTypeIntegrated},
		{"cpu", backend.AdapterInfo{DeviceType: gputypes.DeviceTypeCPU}, gpucontext.AdapterTypeSoftware},
		{"software flag", backend.AdapterInfo{Software: true, DeviceType: gputypes.DeviceTypeOther}, gpucontext.AdapterTypeSoftware},
		{"virtual", backend.AdapterInfo{DeviceType: gputypes.DeviceTypeVirtualGPU}, gpucontext.AdapterTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapterType(tt.info); got != tt.want {
				t.Errorf("adapterType() = %v, want %v", got, tt.want)
			}
		})
	}
}
