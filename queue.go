package gpuframe

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gpuframe/backend"
)

// Queue is an ordered GPU execution channel. Work submitted to one queue
// executes in submission order; ordering across queues requires WaitFence.
//
// A queue expects a single submitting goroutine.
type Queue struct {
	dev  *Device
	q    backend.Queue
	kind backend.QueueKind

	mu sync.Mutex
	// dirty is set by Submit and Present and cleared by Signal.
	dirty      bool
	lastFence  *Fence
	lastTicket uint64
	destroyed  bool
}

// Kind returns the queue kind.
func (q *Queue) Kind() backend.QueueKind { return q.kind }

// Backend returns the driver queue.
func (q *Queue) Backend() backend.Queue { return q.q }

// Submit closes any open lists and appends them to the execution order.
func (q *Queue) Submit(lists ...*CommandList) error {
	if err := q.dev.check(); err != nil {
		return err
	}
	bl := make([]backend.CommandList, len(lists))
	for i, l := range lists {
		if !l.l.Closed() {
			if err := l.Close(); err != nil {
				return err
			}
		}
		bl[i] = l.l
	}
	if err := q.q.Submit(bl...); err != nil {
		return q.dev.fail("submit", err)
	}
	q.markDirty()
	return nil
}

func (q *Queue) markDirty() {
	q.mu.Lock()
	q.dirty = true
	q.mu.Unlock()
}

// Signal enqueues a marker that sets f to the returned ticket once all work
// submitted so far has executed.
func (q *Queue) Signal(f *Fence) (uint64, error) {
	if err := q.dev.check(); err != nil {
		return 0, err
	}
	ticket, err := f.signal(q.q)
	if err != nil {
		return ticket, q.dev.fail("signal", err)
	}
	q.mu.Lock()
	q.dirty = false
	q.lastFence = f
	q.lastTicket = ticket
	q.mu.Unlock()
	Logger().Debug("gpuframe: signal", "queue", q.kind, "ticket", ticket)
	return ticket, nil
}

// WaitFence makes later work on q wait on the GPU until f reaches ticket.
// The CPU does not block.
func (q *Queue) WaitFence(f *Fence, ticket uint64) error {
	if err := q.dev.check(); err != nil {
		return err
	}
	if err := q.q.Wait(f.f, ticket); err != nil {
		return q.dev.fail("queue wait", err)
	}
	return nil
}

// flushTicket returns the ticket a flush on f must wait for. It signals only
// if work was submitted or presented since the last signal on f.
func (q *Queue) flushTicket(f *Fence) (uint64, error) {
	q.mu.Lock()
	reuse := !q.dirty && q.lastFence == f
	ticket := q.lastTicket
	q.mu.Unlock()
	if reuse {
		return ticket, nil
	}
	return q.Signal(f)
}

// Flush blocks until every piece of work submitted to q has executed.
func (q *Queue) Flush(f *Fence) error {
	ticket, err := q.flushTicket(f)
	if err != nil {
		return err
	}
	return f.Wait(ticket, NoTimeout)
}

// FlushContext is Flush bounded by ctx.
func (q *Queue) FlushContext(ctx context.Context, f *Fence) error {
	ticket, err := q.flushTicket(f)
	if err != nil {
		return err
	}
	if err := f.WaitContext(ctx, ticket); err != nil {
		return fmt.Errorf("flush %v queue: %w", q.kind, err)
	}
	return nil
}

// Idle reports whether all submitted work is known to have executed: nothing
// was submitted or presented since the last signal, and that signal completed.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	dirty, f, ticket := q.dirty, q.lastFence, q.lastTicket
	q.mu.Unlock()
	if dirty {
		return false
	}
	return f == nil || f.IsComplete(ticket)
}

// Destroy releases the queue. Flush it first.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	q.mu.Unlock()
	q.q.Destroy()
	q.dev.release()
}
