// Package native drives a real GPU through the gogpu/wgpu hal layer.
//
// The hal exposes one queue per device, so every backend.Queue created by a
// native device submits to it and cross-queue waits are already satisfied by
// submission order. Presentation is headless: the swapchain is a ring of
// render target textures that callers read back or blit themselves.
//
// Build with the nogpu tag to drop the Vulkan import; the package then only
// works with WithInstanceCreator or Noop.
package native
