// Package sim provides a simulated GPU driver.
//
// The simulated GPU executes command lists on one goroutine per queue, in
// submission order, with optional execution delay and vertical blank
// timing. Swapchain images are host-memory RGBA buffers. The driver tracks
// resource states and reports mismatched barriers as validation messages,
// so frame synchronization bugs show up in tests instead of on screen.
//
// Importing the package registers it under backend.BackendSim:
//
//	import _ "github.com/gogpu/gpuframe/backend/sim"
//
// Tests usually construct it directly to control timing:
//
//	b := sim.New(sim.WithExecutionDelay(5 * time.Millisecond))
//	b.Pause()  // hold the GPU
//	b.Resume() // let it drain
package sim
