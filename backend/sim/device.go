package sim

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuframe/backend"
)

// Validation messages raised by the simulated device.
const (
	MessageResourceBarrierMismatch backend.MessageID = 527
	MessageClearInvalidState       backend.MessageID = 530
)

// Message is a stored validation message.
type Message struct {
	Severity backend.MessageSeverity
	ID       backend.MessageID
	Text     string

	// Break is set when the filter asks to stop on this severity.
	Break bool
}

// Device is a simulated device.
type Device struct {
	b       *Backend
	adapter *Adapter

	mu        sync.Mutex
	filter    *backend.MessageFilter
	messages  []Message
	destroyed bool
}

var _ backend.Device = (*Device)(nil)

// Adapter returns the adapter the device was opened on.
func (d *Device) Adapter() *Adapter { return d.adapter }

// CreateQueue starts a queue executor goroutine.
func (d *Device) CreateQueue(kind backend.QueueKind) (backend.Queue, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("sim: invalid queue kind %v", kind)
	}
	return newQueue(d, kind), nil
}

// CreateFence creates a fence starting at initial.
func (d *Device) CreateFence(initial uint64) (backend.Fence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &fence{completed: initial}, nil
}

// CreateAllocator creates a command allocator for lists of kind.
func (d *Device) CreateAllocator(kind backend.QueueKind) (backend.Allocator, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &allocator{kind: kind}, nil
}

// CreateCommandList creates a closed command list.
func (d *Device) CreateCommandList(kind backend.QueueKind) (backend.CommandList, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &commandList{dev: d, kind: kind, closed: true}, nil
}

// CreateSwapchain creates a ring of in-memory RGBA images.
func (d *Device) CreateSwapchain(_ backend.SurfaceTarget, q backend.Queue, desc *backend.SwapchainDescriptor) (backend.Swapchain, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return newSwapchain(d, q, desc)
}

// PushMessageFilter stores the filter applied to later messages.
func (d *Device) PushMessageFilter(filter backend.MessageFilter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = &filter
	return nil
}

// MessageFilter returns the installed filter, or nil.
func (d *Device) MessageFilter() *backend.MessageFilter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter
}

// Messages returns the stored validation messages.
func (d *Device) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.messages...)
}

// Destroy marks the device destroyed.
func (d *Device) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// report records a validation message subject to the filter.
func (d *Device) report(severity backend.MessageSeverity, id backend.MessageID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := Message{Severity: severity, ID: id, Text: text}
	if d.filter != nil {
		if d.filter.Denies(severity, id) {
			return
		}
		m.Break = d.filter.Breaks(severity)
	}
	d.messages = append(d.messages, m)
	backend.Logger().Debug("sim: validation message",
		"severity", severity, "id", id, "text", text)
}

func (d *Device) check() error {
	d.mu.Lock()
	destroyed := d.destroyed
	d.mu.Unlock()
	if destroyed {
		return backend.ErrDestroyed
	}
	if d.b.lost.Load() {
		return backend.ErrDeviceLost
	}
	return nil
}
