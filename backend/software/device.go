// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// Validation errors.
var (
	// ErrUseAfterFree is returned when a write, copy or view references a
	// buffer that has already been destroyed.
	ErrUseAfterFree = errors.New("software: use of destroyed buffer")

	// ErrMissingUsage is returned when a buffer lacks the usage flag an
	// operation requires (CopyDst for writes and copy targets, CopySrc for
	// copy sources).
	ErrMissingUsage = errors.New("software: buffer usage does not allow operation")
)

func init() {
	backend.Register(backend.NameSoftware, func(any) (gpucore.Device, error) {
		return New(), nil
	})
}

// hostBuffer is the host-memory backing of one buffer.
type hostBuffer struct {
	label string
	usage gpucore.BufferUsage
	data  []byte
	views int
}

// Stats is a snapshot of device activity.
type Stats struct {
	BuffersCreated   uint64
	BuffersDestroyed uint64
	LiveBuffers      int
	LiveBytes        uint64
	LiveViews        int
	Writes           uint64
	Submits          uint64
	Copies           uint64
	CopiedBytes      uint64
	DanglingViews    uint64
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("buffers=%d (%d B) views=%d writes=%d submits=%d copies=%d (%d B)",
		s.LiveBuffers, s.LiveBytes, s.LiveViews, s.Writes, s.Submits, s.Copies, s.CopiedBytes)
}

// Device is a host-memory gpucore.Device.
//
// Thread Safety: Device is safe for concurrent use.
type Device struct {
	mu     sync.Mutex
	opts   options
	nextID uint64
	closed bool

	buffers   map[gpucore.BufferID]*hostBuffer
	destroyed map[gpucore.BufferID]string
	views     map[gpucore.ViewID]gpucore.BufferViewDescriptor

	stats Stats
}

// New creates a software device.
func New(opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Device{
		opts:      o,
		nextID:    1,
		buffers:   make(map[gpucore.BufferID]*hostBuffer),
		destroyed: make(map[gpucore.BufferID]string),
		views:     make(map[gpucore.ViewID]gpucore.BufferViewDescriptor),
	}
}

// Name returns the backend identifier.
func (d *Device) Name() string { return backend.NameSoftware }

// Limits returns the device constraints.
func (d *Device) Limits() gpucore.Limits {
	return gpucore.Limits{
		MaxBufferSize: d.opts.maxBufferSize,
		CopyAlignment: d.opts.copyAlignment,
	}
}

// newID generates a unique resource ID. Caller must hold d.mu.
func (d *Device) newID() uint64 {
	id := d.nextID
	d.nextID++
	return id
}

// lookup returns the live buffer for id. Caller must hold d.mu.
func (d *Device) lookup(id gpucore.BufferID) (*hostBuffer, error) {
	if b, ok := d.buffers[id]; ok {
		return b, nil
	}
	if label, ok := d.destroyed[id]; ok {
		return nil, fmt.Errorf("%w: buffer %d %q", ErrUseAfterFree, id, label)
	}
	return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownBuffer, id)
}

// === Buffer Management ===

// CreateBuffer allocates a zeroed host buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer size must be positive")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	if desc.Size > d.opts.maxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds max buffer size %d",
			gpucore.ErrOutOfMemory, desc.Size, d.opts.maxBufferSize)
	}
	if d.opts.memoryBudget > 0 && d.stats.LiveBytes+desc.Size > d.opts.memoryBudget {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes over budget (%d of %d live)",
			gpucore.ErrOutOfMemory, desc.Size, d.stats.LiveBytes, d.opts.memoryBudget)
	}

	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &hostBuffer{
		label: desc.Label,
		usage: desc.Usage,
		data:  make([]byte, desc.Size),
	}
	d.stats.BuffersCreated++
	d.stats.LiveBytes += desc.Size
	return id, nil
}

// DestroyBuffer frees a host buffer. Later references report ErrUseAfterFree.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return
	}
	if b.views > 0 {
		d.stats.DanglingViews += uint64(b.views)
		logging.Logger().Warn("software: buffer destroyed with live views",
			"buffer", id, "label", b.label, "views", b.views)
	}
	delete(d.buffers, id)
	d.destroyed[id] = b.label
	d.stats.BuffersDestroyed++
	d.stats.LiveBytes -= uint64(len(b.data))
}

// WriteBuffer copies data into the buffer immediately. Since command lists
// execute on Submit, this preserves queue-write ordering.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpucore.ErrDeviceLost
	}
	b, err := d.lookup(id)
	if err != nil {
		return err
	}
	if !b.usage.Contains(gpucore.BufferUsageCopyDst) {
		return fmt.Errorf("%w: write to buffer %d %q without CopyDst", ErrMissingUsage, id, b.label)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("%w: write [%d,%d) into %d bytes", gpucore.ErrOutOfRange,
			offset, offset+uint64(len(data)), len(b.data))
	}
	copy(b.data[offset:], data)
	d.stats.Writes++
	return nil
}

// ReadBuffer returns a copy of size bytes at offset.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookup(id)
	if err != nil {
		return nil, err
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: read [%d,%d) from %d bytes", gpucore.ErrOutOfRange,
			offset, offset+size, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// BufferSize returns the size of a live buffer, or 0.
func (d *Device) BufferSize(id gpucore.BufferID) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		return uint64(len(b.data))
	}
	return 0
}

// IsLive reports whether id names a live buffer.
func (d *Device) IsLive(id gpucore.BufferID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers[id]
	return ok
}

// === Views ===

// CreateBufferView validates the range and records the view.
func (d *Device) CreateBufferView(desc *gpucore.BufferViewDescriptor) (gpucore.ViewID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil view descriptor")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	b, err := d.lookup(desc.Buffer)
	if err != nil {
		return gpucore.InvalidID, err
	}
	size := desc.Size
	if size == 0 {
		size = uint64(len(b.data)) - desc.Offset
	}
	if desc.Offset+size > uint64(len(b.data)) {
		return gpucore.InvalidID, fmt.Errorf("%w: view [%d,%d) over %d bytes", gpucore.ErrOutOfRange,
			desc.Offset, desc.Offset+size, len(b.data))
	}

	view := *desc
	view.Size = size
	id := gpucore.ViewID(d.newID())
	d.views[id] = view
	b.views++
	return id, nil
}

// DestroyBufferView releases a view.
func (d *Device) DestroyBufferView(id gpucore.ViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	view, ok := d.views[id]
	if !ok {
		return
	}
	delete(d.views, id)
	if b, ok := d.buffers[view.Buffer]; ok {
		b.views--
	}
}

// View returns the descriptor of a live view.
func (d *Device) View(id gpucore.ViewID) (gpucore.BufferViewDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[id]
	return v, ok
}

// === Commands ===

type copyCmd struct {
	src, dst             gpucore.BufferID
	srcOffset, dstOffset uint64
	size                 uint64
}

// encoder records copies until Submit.
type encoder struct {
	dev      *Device
	label    string
	cmds     []copyCmd
	finished bool
}

// BeginCommands starts a command list.
func (d *Device) BeginCommands(label string) (gpucore.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.ErrDeviceLost
	}
	return &encoder{dev: d, label: label}, nil
}

// CopyBufferToBuffer records a copy.
func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) error {
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	if size == 0 {
		return nil
	}
	e.cmds = append(e.cmds, copyCmd{src: src, dst: dst, srcOffset: srcOffset, dstOffset: dstOffset, size: size})
	return nil
}

// Discard abandons the recording.
func (e *encoder) Discard() {
	e.finished = true
	e.cmds = nil
}

// Submit executes the recorded copies in order. The whole list is
// validated first, so a failing list leaves every buffer untouched.
func (d *Device) Submit(enc gpucore.CommandEncoder) error {
	e, ok := enc.(*encoder)
	if !ok || e.dev != d {
		return fmt.Errorf("software: encoder from another device")
	}
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	e.finished = true

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpucore.ErrDeviceLost
	}
	for i, c := range e.cmds {
		if err := d.validateCopy(c); err != nil {
			return fmt.Errorf("software: %s: command %d: %w", e.label, i, err)
		}
	}
	for _, c := range e.cmds {
		src := d.buffers[c.src].data
		dst := d.buffers[c.dst].data
		copy(dst[c.dstOffset:c.dstOffset+c.size], src[c.srcOffset:c.srcOffset+c.size])
		d.stats.Copies++
		d.stats.CopiedBytes += c.size
	}
	d.stats.Submits++
	e.cmds = nil
	return nil
}

// validateCopy checks one copy command. Caller must hold d.mu.
func (d *Device) validateCopy(c copyCmd) error {
	src, err := d.lookup(c.src)
	if err != nil {
		return err
	}
	dst, err := d.lookup(c.dst)
	if err != nil {
		return err
	}
	if !src.usage.Contains(gpucore.BufferUsageCopySrc) {
		return fmt.Errorf("%w: copy from %q without CopySrc", ErrMissingUsage, src.label)
	}
	if !dst.usage.Contains(gpucore.BufferUsageCopyDst) {
		return fmt.Errorf("%w: copy into %q without CopyDst", ErrMissingUsage, dst.label)
	}
	if c.srcOffset+c.size > uint64(len(src.data)) {
		return fmt.Errorf("%w: copy source [%d,%d) of %d bytes", gpucore.ErrOutOfRange,
			c.srcOffset, c.srcOffset+c.size, len(src.data))
	}
	if c.dstOffset+c.size > uint64(len(dst.data)) {
		return fmt.Errorf("%w: copy destination [%d,%d) of %d bytes", gpucore.ErrOutOfRange,
			c.dstOffset, c.dstOffset+c.size, len(dst.data))
	}
	return nil
}

// Stats returns a snapshot of device activity.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.LiveBuffers = len(d.buffers)
	s.LiveViews = len(d.views)
	return s
}

// Close frees every buffer and view. Further calls fail with
// gpucore.ErrDeviceLost.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	for id, b := range d.buffers {
		d.destroyed[id] = b.label
	}
	d.buffers = make(map[gpucore.BufferID]*hostBuffer)
	d.views = make(map[gpucore.ViewID]gpucore.BufferViewDescriptor)
	d.stats.LiveBytes = 0
	d.closed = true
}
