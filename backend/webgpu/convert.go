package webgpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gpures/gpucore"
)

var usageFlags = []struct {
	core gpucore.BufferUsage
	wgpu wgpu.BufferUsage
}{
	{gpucore.BufferUsageMapRead, wgpu.BufferUsageMapRead},
	{gpucore.BufferUsageMapWrite, wgpu.BufferUsageMapWrite},
	{gpucore.BufferUsageCopySrc, wgpu.BufferUsageCopySrc},
	{gpucore.BufferUsageCopyDst, wgpu.BufferUsageCopyDst},
	{gpucore.BufferUsageVertex, wgpu.BufferUsageVertex},
	{gpucore.BufferUsageUniform, wgpu.BufferUsageUniform},
	{gpucore.BufferUsageStorage, wgpu.BufferUsageStorage},
}

// convertBufferUsage maps gpucore usage flags to wgpu flags.
func convertBufferUsage(u gpucore.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	for _, f := range usageFlags {
		if u&f.core != 0 {
			out |= f.wgpu
		}
	}
	return out
}

// bindingType maps a view kind to its buffer binding type.
func bindingType(kind gpucore.ViewKind) wgpu.BufferBindingType {
	switch kind {
	case gpucore.ViewKindUAV:
		return wgpu.BufferBindingTypeStorage
	case gpucore.ViewKindCBV:
		return wgpu.BufferBindingTypeUniform
	default:
		return wgpu.BufferBindingTypeReadOnlyStorage
	}
}

// layoutDescriptor returns the bind group layout of one view kind.
func layoutDescriptor(kind gpucore.ViewKind, visibility wgpu.ShaderStage) *wgpu.BindGroupLayoutDescriptor {
	return &wgpu.BindGroupLayoutDescriptor{
		Label: "gpures " + kind.String() + " layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: visibility,
			Buffer:     wgpu.BufferBindingLayout{Type: bindingType(kind)},
		}},
	}
}
