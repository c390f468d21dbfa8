// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/wgpu/hal"
)

type queue struct {
	dev  *Device
	kind backend.QueueKind
}

func (q *queue) Kind() backend.QueueKind { return q.kind }

func (q *queue) Submit(lists ...backend.CommandList) error {
	buffers := make([]hal.CommandBuffer, 0, len(lists))
	batch := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("native: foreign command list %T", l)
		}
		if !cl.closed || cl.buffer == nil {
			return fmt.Errorf("%w: submit of list without recorded commands", backend.ErrInvalidState)
		}
		if cl.kind != q.kind {
			return fmt.Errorf("%w: %v list on %v queue", backend.ErrUnsupportedOperation, cl.kind, q.kind)
		}
		buffers = append(buffers, cl.buffer)
		batch = append(batch, cl)
	}
	value, err := q.dev.submit(buffers)
	if err != nil {
		return err
	}
	for _, cl := range batch {
		cl.alloc.retain(cl.buffer, value)
		cl.buffer = nil
	}
	return nil
}

// Signal submits an empty batch that sets f to value.
func (q *queue) Signal(f backend.Fence, value uint64) error {
	nf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("native: foreign fence %T", f)
	}
	if err := q.dev.check(); err != nil {
		return err
	}
	if err := q.dev.queue.Submit(nil, nf.hal, value); err != nil {
		return fmt.Errorf("native: signal: %w", err)
	}
	raise(&nf.signaled, value)
	return nil
}

// Wait is a no-op: all queues share one hal queue, which already executes
// in submission order.
func (q *queue) Wait(f backend.Fence, value uint64) error {
	if _, ok := f.(*fence); !ok {
		return fmt.Errorf("native: foreign fence %T", f)
	}
	return nil
}

func (q *queue) Destroy() {}

// fence wraps a hal fence. Each awaited value has one poller goroutine that
// waits on the hal fence in bounded slices so Destroy can stop it; repeated
// Notify calls for the same value share its channel.
type fence struct {
	dev       *Device
	hal       hal.Fence
	completed atomic.Uint64
	signaled  atomic.Uint64

	mu        sync.Mutex
	pending   map[uint64]chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
	destroyed bool
}

// CompletedValue polls the hal fence for the latest signaled value.
// Intermediate values reached since the last poll are not observed.
func (f *fence) CompletedValue() uint64 {
	cur := f.completed.Load()
	last := f.signaled.Load()
	if last <= cur {
		return cur
	}
	if ok, err := f.dev.hal.Wait(f.hal, last, 0); err == nil && ok {
		raise(&f.completed, last)
		return last
	}
	return cur
}

// raise moves v up to value; lower values are ignored.
func raise(v *atomic.Uint64, value uint64) {
	for {
		cur := v.Load()
		if cur >= value || v.CompareAndSwap(cur, value) {
			return
		}
	}
}

// reached waits up to pollInterval for the hal fence to reach value.
func (f *fence) reached(value uint64) (bool, error) {
	if f.completed.Load() >= value {
		return true, nil
	}
	ok, err := f.dev.hal.Wait(f.hal, value, pollInterval)
	if err != nil || !ok {
		return false, err
	}
	raise(&f.completed, value)
	return true, nil
}

func (f *fence) Notify(value uint64) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed || f.completed.Load() >= value {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if ch, ok := f.pending[value]; ok {
		return ch
	}
	ch := make(chan struct{})
	f.pending[value] = ch
	f.wg.Add(1)
	go f.poll(value, ch)
	return ch
}

// poll closes ch once the hal fence reaches value or the fence is destroyed.
func (f *fence) poll(value uint64, ch chan struct{}) {
	defer f.wg.Done()
	defer func() {
		f.mu.Lock()
		delete(f.pending, value)
		f.mu.Unlock()
		close(ch)
	}()
	for {
		ok, err := f.reached(value)
		if ok {
			return
		}
		if err != nil {
			backend.Logger().Warn("native: fence wait failed", "value", value, "error", err)
			select {
			case <-f.stop:
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		select {
		case <-f.stop:
			return
		default:
		}
	}
}

func (f *fence) Destroy() {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return
	}
	f.destroyed = true
	close(f.stop)
	f.mu.Unlock()

	f.wg.Wait()
	f.dev.hal.DestroyFence(f.hal)
}
