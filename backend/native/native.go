// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func init() {
	backend.Register(backend.BackendNative, func() (backend.Backend, error) {
		return New()
	})
}

// InstanceCreator creates a hal instance. Both hal.Backend and noop.API
// satisfy it.
type InstanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Option configures the native backend.
type Option func(*options)

type options struct {
	creator     InstanceCreator
	backendType gputypes.Backend
}

// WithInstanceCreator uses c instead of looking up a registered hal backend.
func WithInstanceCreator(c InstanceCreator) Option {
	return func(o *options) {
		o.creator = c
	}
}

// WithBackendType selects the registered hal backend (Vulkan by default).
func WithBackendType(t gputypes.Backend) Option {
	return func(o *options) {
		o.backendType = t
	}
}

// Noop returns an option that drives the noop hal backend. Useful for tests
// on machines without a GPU.
func Noop() Option {
	return WithInstanceCreator(&noop.API{})
}

// Backend drives a gogpu/wgpu hal instance.
type Backend struct {
	mu       sync.Mutex
	instance hal.Instance
	exposed  []hal.ExposedAdapter
	closed   bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a hal instance and enumerates its adapters.
func New(opts ...Option) (*Backend, error) {
	o := options{backendType: gputypes.BackendVulkan}
	for _, opt := range opts {
		opt(&o)
	}
	creator := o.creator
	if creator == nil {
		hb, ok := hal.GetBackend(o.backendType)
		if !ok {
			return nil, fmt.Errorf("%w: hal backend %v not registered", backend.ErrBackendNotAvailable, o.backendType)
		}
		creator = hb
	}

	instance, err := creator.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	exposed := instance.EnumerateAdapters(nil)
	if len(exposed) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: hal instance exposes no adapters", backend.ErrNoAdapter)
	}
	backend.Logger().Debug("native: instance created", "adapters", len(exposed))
	return &Backend{instance: instance, exposed: exposed}, nil
}

// Name returns "native".
func (b *Backend) Name() string { return backend.BackendNative }

// EnumerateAdapters returns the hal adapters in enumeration order.
func (b *Backend) EnumerateAdapters() ([]backend.Adapter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrDestroyed
	}
	out := make([]backend.Adapter, len(b.exposed))
	for i := range b.exposed {
		out[i] = &Adapter{exposed: &b.exposed[i]}
	}
	return out, nil
}

// SoftwareAdapter returns the first CPU adapter.
func (b *Backend) SoftwareAdapter() (backend.Adapter, error) {
	adapters, err := b.EnumerateAdapters()
	if err != nil {
		return nil, err
	}
	for _, a := range adapters {
		if a.Info().Software {
			return a, nil
		}
	}
	return nil, backend.ErrNoAdapter
}

// SupportsTearing reports false: the native driver presents headless.
func (b *Backend) SupportsTearing() bool { return false }

// Close destroys the hal instance.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.instance.Destroy()
}

// Adapter wraps a hal adapter.
type Adapter struct {
	exposed *hal.ExposedAdapter
}

var _ backend.Adapter = (*Adapter)(nil)

// Info describes the adapter. hal does not report dedicated memory, so
// DedicatedMemory is always zero.
func (a *Adapter) Info() backend.AdapterInfo {
	return backend.AdapterInfo{
		Name:       a.exposed.Info.Name,
		Software:   a.exposed.Info.DeviceType == gputypes.DeviceTypeCPU,
		DeviceType: a.exposed.Info.DeviceType,
	}
}

// Probe opens and immediately destroys a device.
func (a *Adapter) Probe() error {
	open, err := a.exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnsupportedFeatureLevel, err)
	}
	open.Device.Destroy()
	return nil
}

// Open creates the hal device.
func (a *Adapter) Open() (backend.Device, error) {
	open, err := a.exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrUnsupportedFeatureLevel, err)
	}
	backend.Logger().Debug("native: device opened", "adapter", a.exposed.Info.Name)
	return &Device{hal: open.Device, queue: open.Queue}, nil
}
