// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrMissingUsage is returned when a buffer lacks the usage an operation needs.
var ErrMissingUsage = errors.New("native: buffer usage does not allow operation")

// halView is a buffer view realized as a single-entry bind group.
type halView struct {
	desc  gpucore.BufferViewDescriptor
	group hal.BindGroup
}

// bindingType maps a view kind to its WebGPU buffer binding type.
func bindingType(kind gpucore.ViewKind) gputypes.BufferBindingType {
	switch kind {
	case gpucore.ViewKindUAV:
		return gputypes.BufferBindingTypeStorage
	case gpucore.ViewKindCBV:
		return gputypes.BufferBindingTypeUniform
	default:
		return gputypes.BufferBindingTypeReadOnlyStorage
	}
}

// requiredUsage returns the buffer usage a view kind binds through.
func requiredUsage(kind gpucore.ViewKind) gpucore.BufferUsage {
	if kind == gpucore.ViewKindCBV {
		return gpucore.BufferUsageUniform
	}
	return gpucore.BufferUsageStorage
}

// layoutEntries returns the bind group layout of one view kind.
func layoutEntries(kind gpucore.ViewKind, visibility gputypes.ShaderStage) []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: visibility,
		Buffer:     &gputypes.BufferBindingLayout{Type: bindingType(kind)},
	}}
}

// layout returns the bind group layout of kind, creating it on first use.
// Caller must hold d.mu for writing.
func (d *Device) layout(kind gpucore.ViewKind) (hal.BindGroupLayout, error) {
	if l := d.layouts[kind]; l != nil {
		return l, nil
	}
	l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   d.label(kind.String() + "_bgl"),
		Entries: layoutEntries(kind, d.opts.visibility),
	})
	if err != nil {
		return nil, fmt.Errorf("native: create %s bind group layout: %w", kind, err)
	}
	d.layouts[kind] = l
	return l, nil
}

// CreateBufferView creates a bind group exposing a range of a buffer.
func (d *Device) CreateBufferView(desc *gpucore.BufferViewDescriptor) (gpucore.ViewID, error) {
	if desc == nil || desc.Kind >= gpucore.NumViewKinds {
		return gpucore.InvalidID, fmt.Errorf("native: invalid view descriptor")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookup(desc.Buffer)
	if err != nil {
		return gpucore.InvalidID, err
	}
	size := desc.Size
	if size == 0 {
		size = b.size - min(desc.Offset, b.size)
	}
	if size == 0 || desc.Offset+size > b.size {
		return gpucore.InvalidID, fmt.Errorf("%w: view [%d,%d) of %d bytes",
			gpucore.ErrOutOfRange, desc.Offset, desc.Offset+size, b.size)
	}
	if b.usage&requiredUsage(desc.Kind) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %s view of %q", ErrMissingUsage, desc.Kind, b.label)
	}

	layout, err := d.layout(desc.Kind)
	if err != nil {
		return gpucore.InvalidID, err
	}
	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  d.label(desc.Label + "_" + desc.Kind.String()),
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{{
			Binding: 0,
			Resource: gputypes.BufferBinding{
				Buffer: b.buf.NativeHandle(),
				Offset: desc.Offset,
				Size:   size,
			},
		}},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group: %w", err)
	}

	id := gpucore.ViewID(d.newID())
	v := *desc
	v.Size = size
	d.views[id] = &halView{desc: v, group: group}
	b.views++
	return id, nil
}

// DestroyBufferView releases a view. Unknown IDs are ignored.
func (d *Device) DestroyBufferView(id gpucore.ViewID) {
	d.mu.Lock()
	v, ok := d.views[id]
	if ok {
		delete(d.views, id)
		if b, live := d.buffers[v.desc.Buffer]; live {
			b.views--
		}
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroup(v.group)
	}
}

// BindGroup returns the bind group realizing a view, for renderers that
// bind descriptor slots directly.
func (d *Device) BindGroup(id gpucore.ViewID) (hal.BindGroup, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.views[id]
	if !ok {
		return nil, false
	}
	return v.group, true
}

// BindGroupLayout returns the layout shared by all views of kind, or nil
// when no such view was created yet.
func (d *Device) BindGroupLayout(kind gpucore.ViewKind) hal.BindGroupLayout {
	if kind >= gpucore.NumViewKinds {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.layouts[kind]
}
