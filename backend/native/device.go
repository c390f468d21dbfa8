// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pollInterval bounds each hal wait made on behalf of a fence notification.
const pollInterval = 50 * time.Millisecond

// Device wraps a hal device and its single queue. Every backend.Queue
// created here submits to that hal queue, so work across queue kinds is
// serialized.
type Device struct {
	hal   hal.Device
	queue hal.Queue

	mu        sync.Mutex
	tracker   hal.Fence
	submitted uint64
	filter    *backend.MessageFilter
	destroyed bool
}

var _ backend.Device = (*Device)(nil)

// HAL returns the underlying hal device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.hal, d.queue }

func (d *Device) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return backend.ErrDestroyed
	}
	return nil
}

func (d *Device) CreateQueue(kind backend.QueueKind) (backend.Queue, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("native: invalid queue kind %v", kind)
	}
	return &queue{dev: d, kind: kind}, nil
}

func (d *Device) CreateFence(initial uint64) (backend.Fence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	hf, err := d.hal.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	f := &fence{dev: d, hal: hf, stop: make(chan struct{}), pending: make(map[uint64]chan struct{})}
	f.completed.Store(initial)
	return f, nil
}

func (d *Device) CreateAllocator(kind backend.QueueKind) (backend.Allocator, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &allocator{dev: d, kind: kind}, nil
}

func (d *Device) CreateCommandList(kind backend.QueueKind) (backend.CommandList, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &commandList{dev: d, kind: kind, closed: true}, nil
}

func (d *Device) CreateSwapchain(target backend.SurfaceTarget, q backend.Queue, desc *backend.SwapchainDescriptor) (backend.Swapchain, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return newSwapchain(d, target, q, desc)
}

// PushMessageFilter records the filter. hal validation output goes through
// the wgpu logger, so the filter only affects the messages this package logs.
func (d *Device) PushMessageFilter(filter backend.MessageFilter) error {
	d.mu.Lock()
	d.filter = &filter
	d.mu.Unlock()
	backend.Logger().Debug("native: message filter installed",
		"break_on", len(filter.BreakOn),
		"deny_severities", len(filter.DenySeverities),
		"deny_ids", len(filter.DenyIDs))
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	if d.tracker != nil {
		d.hal.DestroyFence(d.tracker)
		d.tracker = nil
	}
	d.hal.Destroy()
}

// submit executes buffers on the hal queue and returns the tracker value
// that marks their completion.
func (d *Device) submit(buffers []hal.CommandBuffer) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return 0, backend.ErrDestroyed
	}
	if d.tracker == nil {
		f, err := d.hal.CreateFence()
		if err != nil {
			return 0, fmt.Errorf("native: create tracker fence: %w", err)
		}
		d.tracker = f
	}
	value := d.submitted + 1
	if err := d.queue.Submit(buffers, d.tracker, value); err != nil {
		return 0, fmt.Errorf("native: submit: %w", err)
	}
	d.submitted = value
	return value, nil
}

// done reports whether the submission marked by value has completed.
func (d *Device) done(value uint64) bool {
	if value == 0 {
		return true
	}
	d.mu.Lock()
	tracker := d.tracker
	d.mu.Unlock()
	if tracker == nil {
		return true
	}
	ok, err := d.hal.Wait(tracker, value, 0)
	return err == nil && ok
}

// idle reports whether every submission has completed.
func (d *Device) idle() bool {
	d.mu.Lock()
	last := d.submitted
	d.mu.Unlock()
	return d.done(last)
}

// usage maps a resource state onto the hal texture usage it implies.
// Headless presentation reads images back, so StatePresent is a copy source.
func usage(s backend.ResourceState) gputypes.TextureUsage {
	switch s {
	case backend.StateRenderTarget:
		return gputypes.TextureUsageRenderAttachment
	case backend.StateCopyDest:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageCopySrc
	}
}
