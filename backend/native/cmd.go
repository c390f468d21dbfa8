package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// allocator owns the hal command buffers submitted from it and frees them on
// Reset once their submission has completed.
type allocator struct {
	dev  *Device
	kind backend.QueueKind

	mu        sync.Mutex
	buffers   []hal.CommandBuffer
	last      uint64
	destroyed bool
}

func (a *allocator) retain(cb hal.CommandBuffer, value uint64) {
	a.mu.Lock()
	a.buffers = append(a.buffers, cb)
	a.last = max(a.last, value)
	a.mu.Unlock()
}

func (a *allocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return backend.ErrDestroyed
	}
	if !a.dev.done(a.last) {
		return fmt.Errorf("%w: submission %d pending", backend.ErrAllocatorBusy, a.last)
	}
	a.free()
	return nil
}

func (a *allocator) free() {
	for _, cb := range a.buffers {
		a.dev.hal.FreeCommandBuffer(cb)
	}
	a.buffers = nil
}

func (a *allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.destroyed = true
	a.free()
}

// commandList records into a hal command encoder. The encoder is created on
// Reset and ended on Close.
type commandList struct {
	dev  *Device
	kind backend.QueueKind

	alloc   *allocator
	encoder hal.CommandEncoder
	buffer  hal.CommandBuffer
	states  map[*Image]backend.ResourceState
	closed  bool
	err     error
}

func (l *commandList) Kind() backend.QueueKind { return l.kind }

func (l *commandList) Reset(a backend.Allocator) error {
	al, ok := a.(*allocator)
	if !ok {
		return fmt.Errorf("native: foreign allocator %T", a)
	}
	if !l.closed {
		return fmt.Errorf("%w: reset of open list", backend.ErrInvalidState)
	}
	if al.kind != l.kind {
		return fmt.Errorf("%w: %v allocator for %v list", backend.ErrUnsupportedOperation, al.kind, l.kind)
	}
	if l.buffer != nil {
		// Closed but never submitted.
		l.dev.hal.FreeCommandBuffer(l.buffer)
		l.buffer = nil
	}
	enc, err := l.dev.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "gpuframe_" + l.kind.String(),
	})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("gpuframe_frame"); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	l.alloc = al
	l.encoder = enc
	l.states = make(map[*Image]backend.ResourceState)
	l.err = nil
	l.closed = false
	return nil
}

func (l *commandList) Close() error {
	if l.closed {
		return fmt.Errorf("%w: close of closed list", backend.ErrInvalidState)
	}
	l.closed = true
	enc := l.encoder
	l.encoder = nil
	if l.err != nil {
		enc.DiscardEncoding()
		return l.err
	}
	cb, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	l.buffer = cb
	return nil
}

func (l *commandList) Closed() bool { return l.closed }

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *commandList) image(img backend.Image, c backend.OpClass) *Image {
	if l.closed {
		l.fail(fmt.Errorf("%w: %v recorded into closed list", backend.ErrInvalidState, c))
		return nil
	}
	if !l.kind.Accepts(c) {
		l.fail(fmt.Errorf("%w: %v on %v list", backend.ErrUnsupportedOperation, c, l.kind))
		return nil
	}
	im, ok := img.(*Image)
	if !ok {
		l.fail(fmt.Errorf("native: foreign image %T", img))
		return nil
	}
	return im
}

func (l *commandList) Barrier(img backend.Image, before, after backend.ResourceState) {
	im := l.image(img, backend.OpBarrier)
	if im == nil {
		return
	}
	l.states[im] = after
	oldUsage, newUsage := usage(before), usage(after)
	if oldUsage == newUsage {
		return
	}
	l.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: im.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: oldUsage,
			NewUsage: newUsage,
		},
	}})
}

func (l *commandList) ClearColor(img backend.Image, c gputypes.Color) {
	im := l.image(img, backend.OpDraw)
	if im == nil {
		return
	}
	if st, ok := l.states[im]; ok && st != backend.StateRenderTarget {
		backend.Logger().Warn("native: clear of image not in render-target state",
			"image", im.index, "state", st)
	}
	rp := l.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "gpuframe_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       im.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c,
		}},
	})
	rp.End()
}

func (l *commandList) Destroy() {
	if l.encoder != nil {
		l.encoder.DiscardEncoding()
		l.encoder = nil
	}
	if l.buffer != nil {
		l.dev.hal.FreeCommandBuffer(l.buffer)
		l.buffer = nil
	}
	l.alloc = nil
}
