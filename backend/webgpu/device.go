// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package webgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// Device errors.
var (
	// ErrNoDevice is returned when the provider carries no *wgpu.Device.
	ErrNoDevice = errors.New("webgpu: provider is not a *wgpu.Device")

	// ErrForeignEncoder is returned when Submit receives another device's encoder.
	ErrForeignEncoder = errors.New("webgpu: encoder belongs to another device")
)

// deviceProvider is implemented by hosts that expose their wgpu objects.
type deviceProvider interface {
	WGPUDevice() *wgpu.Device
}

func init() {
	backend.Register(backend.NameWebGPU, func(provider any) (gpucore.Device, error) {
		switch p := provider.(type) {
		case *wgpu.Device:
			return New(p)
		case deviceProvider:
			return New(p.WGPUDevice())
		}
		return nil, ErrNoDevice
	})
}

type wgpuBuffer struct {
	buf   *wgpu.Buffer
	size  uint64
	label string
}

type wgpuView struct {
	desc  gpucore.BufferViewDescriptor
	group *wgpu.BindGroup
}

// Device implements gpucore.Device over a cogentcore/webgpu device.
//
// Thread Safety: Device is safe for concurrent use.
type Device struct {
	mu     sync.RWMutex
	device *wgpu.Device
	queue  *wgpu.Queue
	limits gpucore.Limits

	visibility wgpu.ShaderStage

	nextID  atomic.Uint64
	buffers map[gpucore.BufferID]*wgpuBuffer
	views   map[gpucore.ViewID]*wgpuView
	layouts [gpucore.NumViewKinds]*wgpu.BindGroupLayout

	submits uint64
	closed  bool
}

// New wraps dev. The caller keeps owning dev.
func New(dev *wgpu.Device) (*Device, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	limits := wgpu.DefaultLimits()
	d := &Device{
		device: dev,
		queue:  dev.GetQueue(),
		limits: gpucore.Limits{
			MaxBufferSize: limits.MaxBufferSize,
			CopyAlignment: 4,
		},
		visibility: wgpu.ShaderStageCompute,
		buffers:    make(map[gpucore.BufferID]*wgpuBuffer),
		views:      make(map[gpucore.ViewID]*wgpuView),
	}
	d.nextID.Store(1)
	return d, nil
}

func (d *Device) newID() uint64 { return d.nextID.Add(1) - 1 }

// Name returns the backend identifier.
func (d *Device) Name() string { return backend.NameWebGPU }

// Limits returns the device constraints.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// SetLimits overrides the limits reported to buffers, e.g. with the limits
// the device was requested with.
func (d *Device) SetLimits(maxBufferSize uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits.MaxBufferSize = maxBufferSize
}

// lookup returns the tracked buffer. Caller must hold d.mu.
func (d *Device) lookup(id gpucore.BufferID) (*wgpuBuffer, error) {
	if d.closed {
		return nil, gpucore.ErrDeviceLost
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownBuffer, id)
	}
	return b, nil
}

// CreateBuffer creates a GPU buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("webgpu: buffer size must be positive")
	}
	if desc.Size > d.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds max buffer size %d",
			gpucore.ErrOutOfMemory, desc.Size, d.limits.MaxBufferSize)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: create buffer %q: %w", gpucore.ErrOutOfMemory, desc.Label, err)
	}

	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = &wgpuBuffer{buf: buf, size: desc.Size, label: desc.Label}
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer. Unknown IDs are ignored.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	if ok {
		delete(d.buffers, id)
	}
	d.mu.Unlock()
	if ok {
		b.buf.Release()
	}
}

// WriteBuffer writes data through the queue.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.RLock()
	b, err := d.lookup(id)
	d.mu.RUnlock()
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write [%d,%d) into %d bytes", gpucore.ErrOutOfRange, offset, offset+uint64(len(data)), b.size)
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(b.buf, offset, data)
	}
	return nil
}

type encoder struct {
	dev      *Device
	enc      *wgpu.CommandEncoder
	finished bool
}

// BeginCommands starts a command list.
func (d *Device) BeginCommands(string) (gpucore.CommandEncoder, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, gpucore.ErrDeviceLost
	}
	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	return &encoder{dev: d, enc: enc}, nil
}

// CopyBufferToBuffer records a copy after checking both ranges.
func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) error {
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	e.dev.mu.RLock()
	defer e.dev.mu.RUnlock()

	s, err := e.dev.lookup(src)
	if err != nil {
		return err
	}
	t, err := e.dev.lookup(dst)
	if err != nil {
		return err
	}
	if srcOffset+size > s.size || dstOffset+size > t.size {
		return fmt.Errorf("%w: copy %d bytes %d/%d -> %d/%d",
			gpucore.ErrOutOfRange, size, srcOffset, s.size, dstOffset, t.size)
	}
	e.enc.CopyBufferToBuffer(s.buf, srcOffset, t.buf, dstOffset, size)
	return nil
}

// Discard abandons the command list.
func (e *encoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.enc.Release()
}

// Submit finishes and submits the command list.
func (d *Device) Submit(ce gpucore.CommandEncoder) error {
	e, ok := ce.(*encoder)
	if !ok || e.dev != d {
		return ErrForeignEncoder
	}
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	e.finished = true

	cmd, err := e.enc.Finish(nil)
	if err != nil {
		e.enc.Release()
		return fmt.Errorf("webgpu: finish: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	e.enc.Release()

	d.mu.Lock()
	d.submits++
	d.mu.Unlock()
	return nil
}

// layout returns the bind group layout of kind. Caller must hold d.mu.
func (d *Device) layout(kind gpucore.ViewKind) (*wgpu.BindGroupLayout, error) {
	if l := d.layouts[kind]; l != nil {
		return l, nil
	}
	l, err := d.device.CreateBindGroupLayout(layoutDescriptor(kind, d.visibility))
	if err != nil {
		return nil, fmt.Errorf("webgpu: create %s layout: %w", kind, err)
	}
	d.layouts[kind] = l
	return l, nil
}

// CreateBufferView creates a bind group over a buffer range.
func (d *Device) CreateBufferView(desc *gpucore.BufferViewDescriptor) (gpucore.ViewID, error) {
	if desc == nil || desc.Kind >= gpucore.NumViewKinds {
		return gpucore.InvalidID, fmt.Errorf("webgpu: invalid view descriptor")
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
	layout, err := d.layout(desc.Kind)
	if err != nil {
		return gpucore.InvalidID, err
	}
	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  desc.Label + " " + desc.Kind.String(),
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  b.buf,
			Offset:  desc.Offset,
			Size:    size,
		}},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("webgpu: create bind group: %w", err)
	}

	id := gpucore.ViewID(d.newID())
	v := *desc
	v.Size = size
	d.views[id] = &wgpuView{desc: v, group: group}
	return id, nil
}

// DestroyBufferView releases a view. Unknown IDs are ignored.
func (d *Device) DestroyBufferView(id gpucore.ViewID) {
	d.mu.Lock()
	v, ok := d.views[id]
	if ok {
		delete(d.views, id)
	}
	d.mu.Unlock()
	if ok {
		v.group.Release()
	}
}

// BindGroup returns the bind group realizing a view.
func (d *Device) BindGroup(id gpucore.ViewID) (*wgpu.BindGroup, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.views[id]
	if !ok {
		return nil, false
	}
	return v.group, true
}

// Close releases every buffer, view and layout created through d. The
// wrapped device is left alone.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	buffers, views, layouts := d.buffers, d.views, d.layouts
	d.buffers = make(map[gpucore.BufferID]*wgpuBuffer)
	d.views = make(map[gpucore.ViewID]*wgpuView)
	d.layouts = [gpucore.NumViewKinds]*wgpu.BindGroupLayout{}
	submits := d.submits
	d.mu.Unlock()

	for _, v := range views {
		v.group.Release()
	}
	for _, l := range layouts {
		if l != nil {
			l.Release()
		}
	}
	for _, b := range buffers {
		b.buf.Release()
	}
	logging.Logger().Debug("webgpu: device closed", "buffers", len(buffers), "views", len(views), "submits", submits)
}
