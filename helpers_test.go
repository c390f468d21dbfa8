package gpuframe

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gpuframe/backend/sim"
	"github.com/gogpu/gputypes"
)

// testTimeout bounds waits that are expected to succeed.
const testTimeout = 5 * time.Second

// window is a headless surface target.
type window struct{ w, h uint32 }

func (window) NativeHandle() uintptr          { return 0 }
func (w window) Size() (width, height uint32) { return w.w, w.h }

// rig is a device with a graphics queue and fence on the simulated GPU.
type rig struct {
	sim   *sim.Backend
	dev   *Device
	queue *Queue
	fence *Fence
}

func newRig(t *testing.T, opts ...sim.Option) *rig {
	t.Helper()
	b := sim.New(opts...)
	t.Cleanup(b.Close)

	a, err := SelectAdapter(b, false)
	if err != nil {
		t.Fatalf("SelectAdapter: %v", err)
	}
	dev, err := CreateDevice(a)
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	q, err := dev.CreateQueue(backend.QueueGraphics)
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	f, err := dev.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	r := &rig{sim: b, dev: dev, queue: q, fence: f}
	t.Cleanup(func() {
		b.Resume()
		f.Destroy()
		q.Destroy()
		if err := dev.Destroy(); err != nil {
			t.Errorf("Device.Destroy: %v", err)
		}
	})
	return r
}

func (r *rig) surface(t *testing.T, n int) *Surface {
	t.Helper()
	s, err := r.dev.CreateSurface(window{64, 48}, r.queue, 64, 48, n)
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	t.Cleanup(s.Destroy)
	return s
}

func (r *rig) pool(t *testing.T, n int) *CommandPool {
	t.Helper()
	p, err := r.dev.CreateCommandPool(backend.QueueGraphics, n)
	if err != nil {
		t.Fatalf("CreateCommandPool: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p
}

func (r *rig) scheduler(t *testing.T, n int, opts ...SchedulerOption) (*Scheduler, *Surface) {
	t.Helper()
	s := r.surface(t, n)
	p := r.pool(t, n)
	sched, err := NewScheduler(r.queue, r.fence, p, s, opts...)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	// Flush before the pool and surface cleanups run.
	t.Cleanup(func() {
		r.sim.Resume()
		if err := r.queue.Flush(r.fence); err != nil && !r.dev.Lost() {
			t.Errorf("Flush: %v", err)
		}
	})
	return sched, s
}

// clearFrame records the usual present -> render target -> present frame.
var clearFrame = RecorderFunc(func(f *Frame) error {
	f.List.Barrier(f.BackBuffer, backend.StatePresent, backend.StateRenderTarget)
	f.List.ClearColor(f.BackBuffer, gputypes.Color{R: 0.4, G: 0.6, B: 0.9, A: 1})
	f.List.Barrier(f.BackBuffer, backend.StateRenderTarget, backend.StatePresent)
	return nil
})

var errSignalRejected = errors.New("signal rejected")

// signalFailer rejects the next fails signals and forwards everything else.
type signalFailer struct {
	backend.Queue
	fails int
}

func (q *signalFailer) Signal(f backend.Fence, value uint64) error {
	if q.fails > 0 {
		q.fails--
		return errSignalRejected
	}
	return q.Queue.Signal(f, value)
}

// failSignals makes the next n signals on r.queue fail.
func (r *rig) failSignals(n int) {
	if sf, ok := r.queue.q.(*signalFailer); ok {
		sf.fails = n
		return
	}
	r.queue.q = &signalFailer{Queue: r.queue.q, fails: n}
}

// returnsWithin reports whether fn returns before d elapses. fn keeps
// running in the background otherwise; the returned channel yields its
// result.
func returnsWithin[T any](d time.Duration, fn func() T) (bool, <-chan T) {
	ch := make(chan T, 1)
	go func() { ch <- fn() }()
	select {
	case v := <-ch:
		ch <- v
		return true, ch
	case <-time.After(d):
		return false, ch
	}
}
