//go:build !gpuframe_debug

package gpuframe

const debugBuild = false
