package gpuframe

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpuframe/backend"
)

// SlotState is the position of a frame slot in its cycle.
type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
	SlotPresented
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotPresented:
		return "presented"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

// frameSlot is the per-image bookkeeping. lastFenceValue is the ticket
// signaled after the slot's previous frame; the slot may be recorded again
// only once the fence reaches it.
type frameSlot struct {
	lastFenceValue uint64
	state          SlotState
}

// Frame is the frame being recorded.
type Frame struct {
	// Index is the back buffer index, which is also the slot index.
	Index int

	// Number counts frames from 1.
	Number uint64

	// List is empty and recording.
	List *CommandList

	// BackBuffer is the image to render into. It is in StatePresent.
	BackBuffer backend.Image
}

// Recorder appends the frame workload to f.List.
type Recorder interface {
	Record(f *Frame) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(f *Frame) error

// Record calls fn(f).
func (fn RecorderFunc) Record(f *Frame) error { return fn(f) }

// SchedulerOption configures NewScheduler.
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	timeout time.Duration
}

// WithFrameTimeout bounds the wait for a slot to become reusable.
// The default, NoTimeout, waits forever.
func WithFrameTimeout(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		o.timeout = d
	}
}

// Scheduler runs the frame loop over N slots, one per surface image:
// wait for the slot's previous frame, record, submit, signal, present.
// The CPU runs at most N-1 frames ahead of the GPU.
//
// A Scheduler is driven by one goroutine.
type Scheduler struct {
	queue   *Queue
	fence   *Fence
	pool    *CommandPool
	surface *Surface
	opts    schedulerOptions
	clock   *frameClock

	mu      sync.Mutex
	slots   []frameSlot
	current *Frame
	number  uint64
}

// NewScheduler creates a scheduler. pool must have one slot per surface
// image and match the queue kind.
func NewScheduler(q *Queue, f *Fence, pool *CommandPool, surface *Surface, opts ...SchedulerOption) (*Scheduler, error) {
	if pool.Len() != surface.BufferCount() {
		return nil, fmt.Errorf("gpuframe: pool has %d slots, surface has %d images", pool.Len(), surface.BufferCount())
	}
	if pool.Kind() != q.Kind() {
		return nil, fmt.Errorf("gpuframe: %v pool on %v queue", pool.Kind(), q.Kind())
	}
	var o schedulerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler{
		queue:   q,
		fence:   f,
		pool:    pool,
		surface: surface,
		opts:    o,
		clock:   newFrameClock(),
		slots:   make([]frameSlot, pool.Len()),
	}, nil
}

// SlotState returns the state of slot i.
func (s *Scheduler) SlotState(i int) SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[i].state
}

// LastFenceValue returns the ticket signaled after slot i's last frame.
func (s *Scheduler) LastFenceValue(i int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[i].lastFenceValue
}

// Stats returns frame timing.
func (s *Scheduler) Stats() FrameStats { return s.clock.snapshot() }

// BeginFrame waits until the current slot's previous frame has executed,
// then resets its command list for recording.
func (s *Scheduler) BeginFrame() (*Frame, error) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrFrameInProgress
	}
	index := s.surface.CurrentIndex()
	ticket := s.slots[index].lastFenceValue
	s.mu.Unlock()

	start := s.clock.beginFrame()
	if !s.fence.IsComplete(ticket) {
		if s.fence.checkTicket(ticket) != nil {
			resignaled, err := s.queue.Signal(s.fence)
			if err != nil {
				return nil, fmt.Errorf("gpuframe: slot %d: %w", index, err)
			}
			ticket = resignaled
			s.mu.Lock()
			s.slots[index].lastFenceValue = ticket
			s.mu.Unlock()
		}
		err := s.fence.Wait(ticket, s.opts.timeout)
		s.clock.addBlocked(start)
		if err != nil {
			return nil, fmt.Errorf("gpuframe: slot %d: %w", index, err)
		}
	}

	list, err := s.pool.Acquire(index)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.number++
	s.slots[index].state = SlotRecording
	s.current = &Frame{
		Index:      index,
		Number:     s.number,
		List:       list,
		BackBuffer: s.surface.BackBuffer(index),
	}
	return s.current, nil
}

func (s *Scheduler) claim(f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil || f != s.current {
		return ErrNoFrame
	}
	s.current = nil
	return nil
}

func (s *Scheduler) setState(index int, state SlotState) {
	s.mu.Lock()
	s.slots[index].state = state
	s.mu.Unlock()
}

// EndFrame closes and submits the frame, signals the fence for the slot and
// presents.
func (s *Scheduler) EndFrame(f *Frame, vsync bool) error {
	if err := s.claim(f); err != nil {
		return err
	}
	if err := s.queue.Submit(f.List); err != nil {
		s.setState(f.Index, SlotIdle)
		return err
	}
	s.setState(f.Index, SlotSubmitted)

	// A ticket whose signal failed still guards the slot. BeginFrame
	// replaces it with one that reaches the GPU.
	ticket, err := s.queue.Signal(s.fence)
	if ticket != 0 {
		s.mu.Lock()
		s.slots[f.Index].lastFenceValue = ticket
		s.mu.Unlock()
	}
	if err != nil {
		return err
	}

	if err := s.surface.Present(vsync); err != nil {
		return err
	}
	s.setState(f.Index, SlotPresented)
	s.clock.endFrame()
	return nil
}

// AbortFrame closes the frame's list without submitting it. The slot
// returns to idle and keeps its previous fence value.
func (s *Scheduler) AbortFrame(f *Frame) error {
	if err := s.claim(f); err != nil {
		return err
	}
	if !f.List.Closed() {
		// A recording error at Close is expected here.
		_ = f.List.Close()
	}
	s.setState(f.Index, SlotIdle)
	return nil
}

// Render runs one frame with rec as the workload. A recorder error aborts
// the frame and is returned.
func (s *Scheduler) Render(rec Recorder, vsync bool) error {
	f, err := s.BeginFrame()
	if err != nil {
		return err
	}
	if err := rec.Record(f); err != nil {
		if abortErr := s.AbortFrame(f); abortErr != nil {
			Logger().Warn("gpuframe: abort frame", "error", abortErr)
		}
		return fmt.Errorf("gpuframe: record frame %d: %w", f.Number, err)
	}
	return s.EndFrame(f, vsync)
}

func (s *Scheduler) inFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Reset forgets per-slot state after the queue has been flushed and the
// surface recreated. It fails while a frame is being recorded.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return ErrFrameInProgress
	}
	for i := range s.slots {
		s.slots[i].state = SlotIdle
	}
	return nil
}
