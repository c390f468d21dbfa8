package gpuframe

import (
	"fmt"

	"github.com/gogpu/gpuframe/backend"
)

// Adapter is the GPU chosen by SelectAdapter.
type Adapter struct {
	backend backend.Backend
	adapter backend.Adapter
	info    backend.AdapterInfo
}

// Info returns the adapter description.
func (a *Adapter) Info() backend.AdapterInfo { return a.info }

// Backend returns the driver the adapter was enumerated from.
func (a *Adapter) Backend() backend.Backend { return a.backend }

// SelectAdapter picks the adapter a device will be created on.
//
// With preferSoftware it returns the backend's software rasterizer.
// Otherwise it skips software adapters and adapters whose capability probe
// fails, then picks the one with the most dedicated memory. Ties go to the
// adapter enumerated first.
func SelectAdapter(b backend.Backend, preferSoftware bool) (*Adapter, error) {
	if preferSoftware {
		sw, err := b.SoftwareAdapter()
		if err != nil {
			return nil, fmt.Errorf("%w: software adapter: %w", ErrNoCompatibleAdapter, err)
		}
		Logger().Info("gpuframe: adapter selected", "name", sw.Info().Name, "software", true)
		return &Adapter{backend: b, adapter: sw, info: sw.Info()}, nil
	}

	adapters, err := b.EnumerateAdapters()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate: %w", ErrNoCompatibleAdapter, err)
	}

	var best backend.Adapter
	var bestInfo backend.AdapterInfo
	for _, a := range adapters {
		info := a.Info()
		if info.Software {
			continue
		}
		if err := a.Probe(); err != nil {
			Logger().Warn("gpuframe: adapter skipped", "name", info.Name, "error", err)
			continue
		}
		if best == nil || info.DedicatedMemory > bestInfo.DedicatedMemory {
			best, bestInfo = a, info
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %d adapter(s) enumerated", ErrNoCompatibleAdapter, len(adapters))
	}

	Logger().Info("gpuframe: adapter selected",
		"name", bestInfo.Name,
		"dedicated_memory", bestInfo.DedicatedMemory,
		"device_type", bestInfo.DeviceType)
	return &Adapter{backend: b, adapter: best, info: bestInfo}, nil
}
