package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpuframe/backend"
)

// queue executes operations in FIFO order on a dedicated goroutine.
type queue struct {
	dev  *Device
	kind backend.QueueKind

	mu     sync.Mutex
	cond   *sync.Cond
	ops    []func()
	closed bool
	done   chan struct{}
}

func newQueue(d *Device, kind backend.QueueKind) *queue {
	q := &queue{
		dev:  d,
		kind: kind,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *queue) Kind() backend.QueueKind { return q.kind }

// run is the GPU side of the queue.
func (q *queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.ops) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops[0] = nil
		q.ops = q.ops[1:]
		q.mu.Unlock()

		q.dev.b.waitRunnable()
		op()
	}
}

func (q *queue) enqueue(op func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return backend.ErrDestroyed
	}
	q.ops = append(q.ops, op)
	q.cond.Signal()
	return nil
}

// Submit validates and enqueues closed lists.
func (q *queue) Submit(lists ...backend.CommandList) error {
	if q.dev.b.lost.Load() {
		return backend.ErrDeviceLost
	}
	batch := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("sim: foreign command list %T", l)
		}
		if !cl.closed {
			return fmt.Errorf("%w: submit of open list", backend.ErrInvalidState)
		}
		if cl.kind != q.kind {
			return fmt.Errorf("%w: %v list on %v queue", backend.ErrUnsupportedOperation, cl.kind, q.kind)
		}
		if cl.alloc == nil {
			return fmt.Errorf("%w: list was never reset", backend.ErrInvalidState)
		}
		batch = append(batch, cl)
	}

	delay := q.dev.b.opts.execDelay
	for _, cl := range batch {
		ops := cl.ops
		alloc := cl.alloc
		images := cl.imageList()

		alloc.pending.Add(1)
		for _, img := range images {
			img.refs.Add(1)
		}
		err := q.enqueue(func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			for _, op := range ops {
				op()
			}
			for _, img := range images {
				img.refs.Add(-1)
			}
			alloc.pending.Add(-1)
		})
		if err != nil {
			alloc.pending.Add(-1)
			for _, img := range images {
				img.refs.Add(-1)
			}
			return err
		}
	}
	return nil
}

// Signal enqueues a fence update.
func (q *queue) Signal(f backend.Fence, value uint64) error {
	if q.dev.b.lost.Load() {
		return backend.ErrDeviceLost
	}
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("sim: foreign fence %T", f)
	}
	return q.enqueue(func() { sf.advance(value) })
}

// Wait stalls this queue's executor until the fence reaches value.
func (q *queue) Wait(f backend.Fence, value uint64) error {
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("sim: foreign fence %T", f)
	}
	return q.enqueue(func() { <-sf.Notify(value) })
}

// Destroy drains queued work and stops the executor.
func (q *queue) Destroy() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}
