//go:build gpuframe_debug

package gpuframe

// debugBuild installs DefaultMessageFilter on every device.
const debugBuild = true
