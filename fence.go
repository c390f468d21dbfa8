package gpuframe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpuframe/backend"
)

// NoTimeout makes a wait block until the fence reaches the ticket.
const NoTimeout time.Duration = 0

// ErrTicketNotSignaled is returned when waiting for a ticket above the last
// one signaled successfully. Such a wait could never complete.
var ErrTicketNotSignaled = errors.New("gpuframe: ticket was never signaled")

// Fence is a monotonic counter advanced by the GPU.
//
// Queue.Signal issues tickets; Wait blocks the CPU until the GPU reaches
// one. CompletedValue only grows and never exceeds NextValue.
type Fence struct {
	dev *Device
	f   backend.Fence

	// mu orders ticket issue with the backend signal, so values reach the
	// GPU in increasing order.
	mu       sync.Mutex
	next     uint64
	signaled uint64 // last ticket the backend accepted

	destroyed atomic.Bool
}

// CompletedValue returns the last ticket the GPU reached.
func (f *Fence) CompletedValue() uint64 { return f.f.CompletedValue() }

// NextValue returns the last ticket issued.
func (f *Fence) NextValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// IsComplete reports whether the GPU has reached ticket.
func (f *Fence) IsComplete(ticket uint64) bool { return f.CompletedValue() >= ticket }

// signal issues the next ticket and asks q to set it after prior work.
// The ticket is consumed even if the backend call fails.
func (f *Fence) signal(q backend.Queue) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed.Load() {
		return 0, ErrDestroyed
	}
	f.next++
	ticket := f.next
	if err := q.Signal(f.f, ticket); err != nil {
		return ticket, err
	}
	f.signaled = ticket
	return ticket, nil
}

func (f *Fence) checkTicket(ticket uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket > f.next {
		return fmt.Errorf("%w: ticket %d, last issued %d", ErrTicketNotSignaled, ticket, f.next)
	}
	// A failed ticket below a later successful one is covered by it.
	if ticket > f.signaled {
		return fmt.Errorf("%w: ticket %d failed, last signaled %d", ErrTicketNotSignaled, ticket, f.signaled)
	}
	return nil
}

// Wait blocks until the GPU reaches ticket or timeout elapses.
// NoTimeout waits forever. Expiry returns ErrWaitTimeout.
func (f *Fence) Wait(ticket uint64, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	return f.wait(ticket, expired, nil)
}

// WaitContext blocks until the GPU reaches ticket or ctx is done.
// A context deadline is reported as ErrWaitTimeout.
func (f *Fence) WaitContext(ctx context.Context, ticket uint64) error {
	if err := f.wait(ticket, nil, ctx.Done()); err != nil {
		if errors.Is(err, errCanceled) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: ticket %d: %w", ErrWaitTimeout, ticket, ctx.Err())
			}
			return fmt.Errorf("gpuframe: wait for ticket %d: %w", ticket, ctx.Err())
		}
		return err
	}
	return nil
}

// WaitAsync waits in a new goroutine. The channel receives the result of
// Wait and is then closed.
func (f *Fence) WaitAsync(ticket uint64, timeout time.Duration) <-chan error {
	ch := make(chan error, 1)
	if f.IsComplete(ticket) {
		ch <- nil
		close(ch)
		return ch
	}
	go func() {
		ch <- f.Wait(ticket, timeout)
		close(ch)
	}()
	return ch
}

var errCanceled = errors.New("canceled")

func (f *Fence) wait(ticket uint64, expired <-chan time.Time, done <-chan struct{}) error {
	if f.destroyed.Load() {
		return ErrDestroyed
	}
	if f.CompletedValue() >= ticket {
		return nil
	}
	if err := f.checkTicket(ticket); err != nil {
		return err
	}

	Logger().Debug("gpuframe: waiting for fence", "ticket", ticket, "completed", f.CompletedValue())
	for {
		notify := f.f.Notify(ticket)
		// The GPU may have passed ticket before Notify registered.
		if f.CompletedValue() >= ticket {
			return nil
		}
		select {
		case <-notify:
		case <-expired:
			if f.CompletedValue() >= ticket {
				return nil
			}
			return fmt.Errorf("%w: ticket %d, completed %d", ErrWaitTimeout, ticket, f.CompletedValue())
		case <-done:
			if f.CompletedValue() >= ticket {
				return nil
			}
			return errCanceled
		}
		if f.CompletedValue() >= ticket {
			return nil
		}
		if f.destroyed.Load() {
			return ErrDestroyed
		}
	}
}

// Destroy releases the fence. Waiters blocked on it return ErrDestroyed.
func (f *Fence) Destroy() {
	if f.destroyed.Swap(true) {
		return
	}
	f.f.Destroy()
	f.dev.release()
}
