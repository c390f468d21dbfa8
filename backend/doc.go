// Package backend defines the driver interfaces used by gpuframe.
//
// A driver exposes adapters, devices, queues, fences, command allocators,
// command lists and swapchains with D3D12-like semantics: work is recorded
// into lists, submitted to queues that execute asynchronously and in order,
// and completion is observed through monotonic fence values.
//
// # Backend Registration
//
// Drivers register a factory via init() functions and are selected at
// runtime:
//
//	import _ "github.com/gogpu/gpuframe/backend/sim"    // simulated GPU
//	import _ "github.com/gogpu/gpuframe/backend/native" // gogpu/wgpu HAL
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b, err := backend.Default()
//
//	// Or request a specific backend
//	b, err := backend.Get(backend.BackendSim)
//
// Applications normally do not call drivers directly; package gpuframe
// wraps them with ownership tracking and the fence wait protocol.
package backend
