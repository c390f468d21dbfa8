package gpuframe

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gpuframe/backend/sim"
)

func TestSchedulerWaitsForSlotReuse(t *testing.T) {
	const n = 3
	r := newRig(t)
	sched, _ := r.scheduler(t, n)

	// The GPU runs nothing until Resume: the first N frames need no wait.
	r.sim.Pause()
	for i := range n {
		ok, ch := returnsWithin(time.Second, func() error { return sched.Render(clearFrame, true) })
		if !ok {
			t.Fatalf("frame %d blocked with a fresh slot", i+1)
		}
		if err := <-ch; err != nil {
			t.Fatalf("frame %d: %v", i+1, err)
		}
	}
	for i := range n {
		if got, want := sched.LastFenceValue(i), uint64(i+1); got != want {
			t.Errorf("LastFenceValue(%d) = %d, want %d", i, got, want)
		}
		if got := sched.SlotState(i); got != SlotPresented {
			t.Errorf("SlotState(%d) = %v, want presented", i, got)
		}
	}

	// Frame 4 reuses slot 0 and must wait for ticket 1.
	ok, ch := returnsWithin(20*time.Millisecond, func() error { return sched.Render(clearFrame, true) })
	if ok {
		t.Fatalf("frame 4 did not wait for ticket 1: %v", <-ch)
	}
	if r.fence.IsComplete(1) {
		t.Fatal("ticket 1 complete while paused")
	}
	r.sim.Resume()
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("frame 4: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("frame 4 never started")
	}
	if !r.fence.IsComplete(1) {
		t.Error("frame 4 started before ticket 1 completed")
	}
	if err := sched.Render(clearFrame, true); err != nil {
		t.Fatalf("frame 5: %v", err)
	}

	want := []uint64{4, 5, 3}
	for i, w := range want {
		if got := sched.LastFenceValue(i); got != w {
			t.Errorf("LastFenceValue(%d) = %d, want %d", i, got, w)
		}
	}
	if stats := sched.Stats(); stats.Frames != 5 || stats.Blocked <= 0 {
		t.Errorf("Stats() = %+v, want 5 frames and some blocked time", stats)
	}
}

func TestSchedulerNeverReusesInFlightSlot(t *testing.T) {
	for _, n := range []int{2, 3, 4} {
		r := newRig(t, sim.WithExecutionDelay(time.Millisecond))
		sched, s := r.scheduler(t, n)

		for range 30 {
			index := s.CurrentIndex()
			prev := sched.LastFenceValue(index)
			f, err := sched.BeginFrame()
			if err != nil {
				t.Fatalf("N=%d: BeginFrame: %v", n, err)
			}
			if f.Index != index {
				t.Fatalf("N=%d: frame index %d, want %d", n, f.Index, index)
			}
			if !r.fence.IsComplete(prev) {
				t.Fatalf("N=%d: slot %d reused before ticket %d completed", n, index, prev)
			}
			ahead := r.fence.NextValue() - r.fence.CompletedValue()
			if ahead > uint64(n-1) {
				t.Fatalf("N=%d: CPU %d frames ahead of GPU", n, ahead)
			}
			if err := clearFrame.Record(f); err != nil {
				t.Fatal(err)
			}
			if err := sched.EndFrame(f, true); err != nil {
				t.Fatalf("N=%d: EndFrame: %v", n, err)
			}
		}
	}
}

func TestSchedulerFrameContract(t *testing.T) {
	r := newRig(t)
	sched, _ := r.scheduler(t, 2)

	f, err := sched.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if f.Number != 1 {
		t.Errorf("Number = %d, want 1", f.Number)
	}
	if f.BackBuffer == nil || f.BackBuffer.Index() != f.Index {
		t.Errorf("BackBuffer = %v, want image %d", f.BackBuffer, f.Index)
	}
	if got := sched.SlotState(f.Index); got != SlotRecording {
		t.Errorf("SlotState = %v, want recording", got)
	}
	if _, err := sched.BeginFrame(); !errors.Is(err, ErrFrameInProgress) {
		t.Errorf("second BeginFrame() = %v, want ErrFrameInProgress", err)
	}
	if err := sched.Reset(); !errors.Is(err, ErrFrameInProgress) {
		t.Errorf("Reset() during frame = %v, want ErrFrameInProgress", err)
	}
	if err := sched.EndFrame(&Frame{}, true); !errors.Is(err, ErrNoFrame) {
		t.Errorf("EndFrame(foreign) = %v, want ErrNoFrame", err)
	}
	if err := sched.EndFrame(f, true); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if err := sched.EndFrame(f, true); !errors.Is(err, ErrNoFrame) {
		t.Errorf("EndFrame twice = %v, want ErrNoFrame", err)
	}
	if err := sched.AbortFrame(nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("AbortFrame(nil) = %v, want ErrNoFrame", err)
	}
}

func TestSchedulerFailedSignalGuardsSlot(t *testing.T) {
	r := newRig(t)
	sched, _ := r.scheduler(t, 2)

	r.sim.Pause()
	r.failSignals(1)
	if err := sched.Render(clearFrame, true); !errors.Is(err, errSignalRejected) {
		t.Fatalf("Render() = %v, want the signal rejection", err)
	}
	if got := sched.LastFenceValue(0); got != 1 {
		t.Errorf("LastFenceValue(0) = %d, want the failed ticket 1", got)
	}
	if got := sched.SlotState(0); got != SlotSubmitted {
		t.Errorf("SlotState(0) = %v, want submitted", got)
	}

	// Nothing was presented, so slot 0 is reused while its work is queued.
	returned, ch := returnsWithin(20*time.Millisecond, func() error {
		return sched.Render(clearFrame, true)
	})
	if returned {
		t.Fatalf("Render() = %v before the GPU ran slot 0's frame", <-ch)
	}
	r.sim.Resume()
	if err := <-ch; err != nil {
		t.Fatalf("Render() = %v", err)
	}
	if got := sched.LastFenceValue(0); got != 3 {
		t.Errorf("LastFenceValue(0) = %d, want 3 after the replacement signal", got)
	}
}

func TestSchedulerRecorderErrorAborts(t *testing.T) {
	r := newRig(t)
	sched, s := r.scheduler(t, 2)

	errRecord := errors.New("scene not ready")
	index := s.CurrentIndex()
	err := sched.Render(RecorderFunc(func(f *Frame) error {
		f.List.Barrier(f.BackBuffer, backend.StatePresent, backend.StateRenderTarget)
		return errRecord
	}), true)
	if !errors.Is(err, errRecord) {
		t.Fatalf("Render() = %v, want recorder error", err)
	}
	if got := sched.SlotState(index); got != SlotIdle {
		t.Errorf("SlotState(%d) = %v, want idle", index, got)
	}
	if got := sched.LastFenceValue(index); got != 0 {
		t.Errorf("LastFenceValue(%d) = %d, want 0", index, got)
	}
	if got := r.fence.NextValue(); got != 0 {
		t.Errorf("aborted frame signaled ticket %d", got)
	}
	if s.CurrentIndex() != index {
		t.Error("aborted frame was presented")
	}

	// The slot is usable again.
	if err := sched.Render(clearFrame, true); err != nil {
		t.Fatalf("Render after abort: %v", err)
	}
}

func TestSchedulerFollowsReportedIndex(t *testing.T) {
	reverse := func(current, count int) int { return (current + count - 1) % count }
	r := newRig(t, sim.WithIndexPolicy(reverse))
	sched, _ := r.scheduler(t, 3)

	var got []int
	for range 4 {
		err := sched.Render(RecorderFunc(func(f *Frame) error {
			got = append(got, f.Index)
			return clearFrame(f)
		}), true)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	want := []int{0, 2, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame indices = %v, want %v", got, want)
		}
	}
}

func TestSchedulerFrameTimeout(t *testing.T) {
	r := newRig(t)
	sched, _ := r.scheduler(t, 2, WithFrameTimeout(10*time.Millisecond))
	r.sim.Pause()
	for range 2 {
		if err := sched.Render(clearFrame, true); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	if err := sched.Render(clearFrame, true); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("Render() = %v, want ErrWaitTimeout", err)
	}
	r.sim.Resume()
	if err := sched.Render(clearFrame, true); err != nil {
		t.Errorf("Render() after resume = %v", err)
	}
}

func TestNewSchedulerMismatch(t *testing.T) {
	r := newRig(t)
	s := r.surface(t, 3)
	if _, err := NewScheduler(r.queue, r.fence, r.pool(t, 2), s); err == nil {
		t.Error("NewScheduler accepted a pool smaller than the surface")
	}
	copyPool, err := r.dev.CreateCommandPool(backend.QueueCopy, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer copyPool.Destroy()
	if _, err := NewScheduler(r.queue, r.fence, copyPool, s); err == nil {
		t.Error("NewScheduler accepted a copy pool for a graphics queue")
	}
}

func TestSlotStateString(t *testing.T) {
	tests := map[SlotState]string{
		SlotIdle:      "idle",
		SlotRecording: "recording",
		SlotSubmitted: "submitted",
		SlotPresented: "presented",
		SlotState(9):  "SlotState(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", uint8(s), got, want)
		}
	}
}
