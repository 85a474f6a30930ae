package webgpu

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/gpucore"
)

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.NameWebGPU) {
		t.Fatal("webgpu backend not registered")
	}
}

func TestOpenWithoutDevice(t *testing.T) {
	tests := []struct {
		name     string
		provider any
	}{
		{"nil", nil},
		{"wrong type", "device"},
		{"nil device", (*wgpu.Device)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := backend.Open(backend.NameWebGPU, tt.provider); !errors.Is(err, ErrNoDevice) {
				t.Errorf("Open() error = %v, want ErrNoDevice", err)
			}
		})
	}
}

func TestConvertBufferUsage(t *testing.T) {
	tests := []struct {
		in   gpucore.BufferUsage
		want wgpu.BufferUsage
	}{
		{0, 0},
		{gpucore.BufferUsageStorage, wgpu.BufferUsageStorage},
		{
			gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst,
			wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		},
		{gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
		{gpucore.BufferUsageUniform | gpucore.BufferUsageVertex, wgpu.BufferUsageUniform | wgpu.BufferUsageVertex},
	}
	for _, tt := range tests {
		if got := convertBufferUsage(tt.in); got != tt.want {
			t.Errorf("convertBufferUsage(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLayoutDescriptor(t *testing.T) {
	tests := []struct {
		kind gpucore.ViewKind
		want wgpu.BufferBindingType
	}{
		{gpucore.ViewKindSRV, wgpu.BufferBindingTypeReadOnlyStorage},
		{gpucore.ViewKindUAV, wgpu.BufferBindingTypeStorage},
		{gpucore.ViewKindCBV, wgpu.BufferBindingTypeUniform},
	}
	for _, tt := range tests {
		desc := layoutDescriptor(tt.kind, wgpu.ShaderStageCompute)
		if len(desc.Entries) != 1 || desc.Entries[0].Buffer.Type != tt.want {
			t.Errorf("layoutDescriptor(%s) = %+v, want binding type %v", tt.kind, desc.Entries, tt.want)
		}
	}
}
