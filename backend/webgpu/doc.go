// Package webgpu implements gpucore.Device on cogentcore/webgpu, for hosts
// that already run a wgpu-native device through that binding.
//
//	dev, err := webgpu.New(wgpuDevice)
//	s, err := gpures.NewSession(dev)
//
// Views are bind groups over one layout per view kind. The device keeps
// no fences: wgpu-native retains resources referenced by submitted work,
// so Release after Submit is safe.
package webgpu
