// Package gpuframe brings up a GPU and runs a ring-buffered frame loop
// synchronized by a monotonic fence.
//
// # Overview
//
// gpuframe selects an adapter, creates a device, submits command lists to
// queues and presents a swapchain of N images. The CPU records frame f+1
// while the GPU executes frame f; a fence ticket per frame slot keeps the
// CPU at most N-1 frames ahead, so no command allocator is reset while the
// GPU still reads it.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpuframe"
//	    _ "github.com/gogpu/gpuframe/backend/native"
//	)
//
//	ctx, err := gpuframe.Open(gpuframe.DefaultConfig(), window)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	for running {
//	    err := ctx.Render(gpuframe.RecorderFunc(func(f *gpuframe.Frame) error {
//	        f.List.Barrier(f.BackBuffer, backend.StatePresent, backend.StateRenderTarget)
//	        f.List.ClearColor(f.BackBuffer, gputypes.Color{R: 0.4, G: 0.6, B: 0.9, A: 1})
//	        f.List.Barrier(f.BackBuffer, backend.StateRenderTarget, backend.StatePresent)
//	        return nil
//	    }))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Synchronization
//
// Queue.Signal returns a ticket; Fence.Wait blocks until the GPU reaches it.
// Queue.Flush is Wait(Signal()) and is required before destroying anything
// the GPU may still use, and before Surface.Resize. Context.Resize and
// Context.Close flush for you.
//
// # Architecture
//
// The package is organized into:
//   - gpuframe: Context, Device, Queue, Fence, CommandPool, Surface, Scheduler
//   - backend: driver interfaces and the driver registry
//   - backend/native: gogpu/wgpu hal driver (Vulkan)
//   - backend/sim: simulated asynchronous GPU for tests
//
// Build with the gpuframe_debug tag to install DefaultMessageFilter on every
// device.
package gpuframe
