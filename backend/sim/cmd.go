package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
)

// allocator counts submitted lists that have not finished executing.
type allocator struct {
	kind      backend.QueueKind
	pending   atomic.Int32
	resets    atomic.Int32
	destroyed atomic.Bool
}

func (a *allocator) Reset() error {
	if a.destroyed.Load() {
		return backend.ErrDestroyed
	}
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("%w: %d list(s) pending", backend.ErrAllocatorBusy, n)
	}
	a.resets.Add(1)
	return nil
}

func (a *allocator) Destroy() { a.destroyed.Store(true) }

// commandList records operations as closures run by the queue executor.
type commandList struct {
	dev    *Device
	kind   backend.QueueKind
	alloc  *allocator
	ops    []func()
	images []*Image
	closed bool
	err    error
}

func (l *commandList) Kind() backend.QueueKind { return l.kind }

func (l *commandList) Reset(a backend.Allocator) error {
	al, ok := a.(*allocator)
	if !ok {
		return fmt.Errorf("sim: foreign allocator %T", a)
	}
	if !l.closed {
		return fmt.Errorf("%w: reset of open list", backend.ErrInvalidState)
	}
	if al.kind != l.kind {
		return fmt.Errorf("%w: %v allocator for %v list", backend.ErrUnsupportedOperation, al.kind, l.kind)
	}
	if al.destroyed.Load() {
		return backend.ErrDestroyed
	}
	l.alloc = al
	l.ops = nil
	l.images = nil
	l.err = nil
	l.closed = false
	return nil
}

func (l *commandList) Close() error {
	if l.closed {
		return fmt.Errorf("%w: close of closed list", backend.ErrInvalidState)
	}
	l.closed = true
	return l.err
}

func (l *commandList) Closed() bool { return l.closed }

// record reports whether an operation of class c may be appended, keeping
// the first failure for Close.
func (l *commandList) record(c backend.OpClass) bool {
	if l.closed {
		if l.err == nil {
			l.err = fmt.Errorf("%w: %v recorded into closed list", backend.ErrInvalidState, c)
		}
		return false
	}
	if !l.kind.Accepts(c) {
		if l.err == nil {
			l.err = fmt.Errorf("%w: %v on %v list", backend.ErrUnsupportedOperation, c, l.kind)
		}
		return false
	}
	return true
}

func (l *commandList) use(img backend.Image) *Image {
	im, ok := img.(*Image)
	if !ok {
		if l.err == nil {
			l.err = fmt.Errorf("sim: foreign image %T", img)
		}
		return nil
	}
	for _, seen := range l.images {
		if seen == im {
			return im
		}
	}
	l.images = append(l.images, im)
	return im
}

func (l *commandList) imageList() []*Image {
	return append([]*Image(nil), l.images...)
}

func (l *commandList) Barrier(img backend.Image, before, after backend.ResourceState) {
	if !l.record(backend.OpBarrier) {
		return
	}
	im := l.use(img)
	if im == nil {
		return
	}
	dev := l.dev
	l.ops = append(l.ops, func() {
		if im.state != before {
			dev.report(backend.SeverityError, MessageResourceBarrierMismatch,
				fmt.Sprintf("image %d: barrier before state %v, actual %v", im.index, before, im.state))
		}
		im.state = after
	})
}

func (l *commandList) ClearColor(img backend.Image, c gputypes.Color) {
	if !l.record(backend.OpDraw) {
		return
	}
	im := l.use(img)
	if im == nil {
		return
	}
	dev := l.dev
	l.ops = append(l.ops, func() {
		if im.state != backend.StateRenderTarget {
			dev.report(backend.SeverityError, MessageClearInvalidState,
				fmt.Sprintf("image %d: clear in state %v", im.index, im.state))
		}
		dev.report(backend.SeverityWarning, backend.MessageClearRenderTargetViewMismatchingClearValue,
			"clear value does not match the value given at resource creation")
		im.fill(c)
	})
}

func (l *commandList) Destroy() {
	l.ops = nil
	l.images = nil
	l.alloc = nil
}
