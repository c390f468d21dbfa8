package gpuframe

import (
	"fmt"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
)

// CommandPool is a fixed arena of (allocator, command list) pairs, one per
// frame slot.
type CommandPool struct {
	dev   *Device
	kind  backend.QueueKind
	slots []poolSlot

	destroyed bool
}

type poolSlot struct {
	alloc backend.Allocator
	list  *CommandList
}

// CommandList records GPU operations for one pool slot.
type CommandList struct {
	pool *CommandPool
	slot int
	l    backend.CommandList
}

// CreateCommandPool creates n allocator and list pairs for queues of kind.
// Every list starts closed.
func (d *Device) CreateCommandPool(kind backend.QueueKind, n int) (*CommandPool, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: command pool size %d", ErrResourceCreation, n)
	}
	p := &CommandPool{dev: d, kind: kind, slots: make([]poolSlot, 0, n)}
	for i := range n {
		alloc, err := d.dev.CreateAllocator(kind)
		if err != nil {
			p.destroySlots()
			return nil, resourceError(fmt.Sprintf("allocator %d", i), err)
		}
		l, err := d.dev.CreateCommandList(kind)
		if err != nil {
			alloc.Destroy()
			p.destroySlots()
			return nil, resourceError(fmt.Sprintf("command list %d", i), err)
		}
		p.slots = append(p.slots, poolSlot{
			alloc: alloc,
			list:  &CommandList{pool: p, slot: i, l: l},
		})
	}
	d.retain()
	return p, nil
}

// Len returns the number of slots.
func (p *CommandPool) Len() int { return len(p.slots) }

// Kind returns the queue kind the lists are recorded for.
func (p *CommandPool) Kind() backend.QueueKind { return p.kind }

// List returns the list of slot without resetting it.
func (p *CommandPool) List(slot int) *CommandList { return p.slots[slot].list }

// Acquire resets the slot's allocator and puts its list into recording
// state. The caller must already know the GPU finished the slot's previous
// list; the frame scheduler proves this with a fence wait.
func (p *CommandPool) Acquire(slot int) (*CommandList, error) {
	if p.destroyed {
		return nil, ErrDestroyed
	}
	if slot < 0 || slot >= len(p.slots) {
		return nil, fmt.Errorf("gpuframe: slot %d out of range [0, %d)", slot, len(p.slots))
	}
	s := p.slots[slot]
	if !s.list.l.Closed() {
		if err := s.list.l.Close(); err != nil {
			Logger().Debug("gpuframe: discarded open list", "slot", slot, "error", err)
		}
	}
	if err := s.alloc.Reset(); err != nil {
		return nil, p.dev.fail(fmt.Sprintf("reset allocator %d", slot), err)
	}
	if err := s.list.l.Reset(s.alloc); err != nil {
		return nil, p.dev.fail(fmt.Sprintf("reset command list %d", slot), err)
	}
	return s.list, nil
}

func (p *CommandPool) destroySlots() {
	for _, s := range p.slots {
		s.list.l.Destroy()
		s.alloc.Destroy()
	}
	p.slots = nil
}

// Destroy releases every list and allocator. The GPU must be idle.
func (p *CommandPool) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.destroySlots()
	p.dev.release()
}

// Slot returns the pool slot index.
func (l *CommandList) Slot() int { return l.slot }

// Kind returns the queue kind the list records for.
func (l *CommandList) Kind() backend.QueueKind { return l.l.Kind() }

// Closed reports whether the list is closed.
func (l *CommandList) Closed() bool { return l.l.Closed() }

// Backend returns the driver list, for recorders that use driver extensions.
func (l *CommandList) Backend() backend.CommandList { return l.l }

// Barrier transitions img between states.
func (l *CommandList) Barrier(img backend.Image, before, after backend.ResourceState) {
	l.l.Barrier(img, before, after)
}

// ClearColor clears img to c.
func (l *CommandList) ClearColor(img backend.Image, c gputypes.Color) {
	l.l.ClearColor(img, c)
}

// Close ends recording. Recording errors surface here.
func (l *CommandList) Close() error {
	if err := l.l.Close(); err != nil {
		return fmt.Errorf("gpuframe: close command list %d: %w", l.slot, err)
	}
	return nil
}
