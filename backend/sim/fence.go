package sim

import "sync"

// fence is a monotonic counter with one-shot waiters.
type fence struct {
	mu        sync.Mutex
	completed uint64
	waiters   []waiter
	destroyed bool
}

type waiter struct {
	value uint64
	ch    chan struct{}
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fence) Notify(value uint64) <-chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed || f.completed >= value {
		close(ch)
		return ch
	}
	f.waiters = append(f.waiters, waiter{value: value, ch: ch})
	return ch
}

// advance moves the counter to value; lower values are ignored.
func (f *fence) advance(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.completed {
		return
	}
	f.completed = value
	keep := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= value {
			close(w.ch)
			continue
		}
		keep = append(keep, w)
	}
	for i := len(keep); i < len(f.waiters); i++ {
		f.waiters[i] = waiter{}
	}
	f.waiters = keep
}

func (f *fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	for _, w := range f.waiters {
		close(w.ch)
	}
	f.waiters = nil
}
