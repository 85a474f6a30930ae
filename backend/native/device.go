// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/wgpu/hal"
)

// Device errors.
var (
	// ErrForeignEncoder is returned when Submit receives an encoder created
	// by another device.
	ErrForeignEncoder = errors.New("native: encoder belongs to another device")

	// ErrWaitTimeout is returned when the GPU does not reach a submission
	// within the wait timeout.
	ErrWaitTimeout = errors.New("native: timed out waiting for GPU")
)

// pollInterval is the sleep between PollCompleted checks while blocking.
const pollInterval = 200 * time.Microsecond

// maxIdleEncoders bounds the pool of reset command encoders.
const maxIdleEncoders = 4

// halBuffer is one tracked HAL buffer.
type halBuffer struct {
	buf   hal.Buffer
	size  uint64
	usage gpucore.BufferUsage
	label string
	views int
}

// submission is a command buffer waiting for its submission index to
// complete, with the encoder that recorded it and any buffers that die
// with it.
type submission struct {
	index   uint64
	enc     hal.CommandEncoder
	cmd     hal.CommandBuffer
	release []hal.Buffer
}

// Device implements gpucore.Device using gogpu/wgpu/hal directly.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
// Resource maps are protected by a mutex; HAL calls that may block are made
// outside of it.
type Device struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	opts   options
	limits gpucore.Limits

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers map[gpucore.BufferID]*halBuffer
	views   map[gpucore.ViewID]*halView
	layouts [gpucore.NumViewKinds]hal.BindGroupLayout

	// Submissions not yet reported by PollCompleted, and encoders reset
	// for reuse
	lastSubmitted uint64
	inflight      []submission
	idle          []hal.CommandEncoder

	closed bool
}

// New creates a device over a HAL device and queue the caller keeps owning.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilHAL
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{
		device: device,
		queue:  queue,
		opts:   o,
		limits: gpucore.Limits{
			MaxBufferSize: o.limits.MaxBufferSize,
			CopyAlignment: CopyBufferAlignment,
		},
		buffers: make(map[gpucore.BufferID]*halBuffer),
		views:   make(map[gpucore.ViewID]*halView),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d, nil
}

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Name returns the backend identifier.
func (d *Device) Name() string { return backend.NameNative }

// Limits returns the device constraints.
func (d *Device) Limits() gpucore.Limits { return d.limits }

func (d *Device) label(s string) string {
	if s == "" {
		return d.opts.label
	}
	return d.opts.label + ":" + s
}

// lookup returns the tracked buffer. Caller must hold d.mu.
func (d *Device) lookup(id gpucore.BufferID) (*halBuffer, error) {
	if d.closed {
		return nil, gpucore.ErrDeviceLost
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownBuffer, id)
	}
	return b, nil
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer size must be positive")
	}
	if desc.Size > d.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds max buffer size %d",
			gpucore.ErrOutOfMemory, desc.Size, d.limits.MaxBufferSize)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label(desc.Label),
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: create buffer %q: %w", gpucore.ErrOutOfMemory, desc.Label, err)
	}

	id := gpucore.BufferID(d.newID())

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.device.DestroyBuffer(buf)
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	d.buffers[id] = &halBuffer{buf: buf, size: desc.Size, usage: desc.Usage, label: desc.Label}
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

	if !ok {
		return
	}
	if b.views > 0 {
		logging.Logger().Warn("native: buffer destroyed with live views", "label", b.label, "views", b.views)
	}
	d.device.DestroyBuffer(b.buf)
}

// WriteBuffer writes data to a buffer through the queue.
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
	if len(data) == 0 {
		return nil
	}
	if err := d.queue.WriteBuffer(b.buf, offset, data); err != nil {
		return fmt.Errorf("native: write %q: %w", b.label, err)
	}
	return nil
}

// ReadBuffer copies size bytes at offset into a mappable buffer, waits for
// the GPU and returns them. It blocks and is meant for tests and tools.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.RLock()
	b, err := d.lookup(id)
	d.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: read [%d,%d) from %d bytes", gpucore.ErrOutOfRange, offset, offset+size, b.size)
	}
	if b.usage&gpucore.BufferUsageCopySrc == 0 {
		return nil, fmt.Errorf("%w: %q lacks CopySrc", ErrMissingUsage, b.label)
	}
	if size == 0 {
		return []byte{}, nil
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label("readback"),
		Size:  size,
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create readback buffer: %w", err)
	}

	enc, err := d.acquireEncoder("readback")
	if err != nil {
		d.device.DestroyBuffer(staging)
		return nil, err
	}
	enc.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{{
		SrcOffset: offset,
		DstOffset: 0,
		Size:      size,
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		d.recycle(enc, nil)
		d.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}

	// The staging buffer is destroyed with the submission, so a timed
	// out wait never frees memory the GPU may still write.
	index, err := d.submit(enc, cmd, staging)
	if err != nil {
		return nil, err
	}
	if !d.waitFor(index) {
		return nil, fmt.Errorf("%w: readback submission %d", ErrWaitTimeout, index)
	}

	mapping, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		d.reclaim()
		return nil, fmt.Errorf("native: map readback buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := d.device.UnmapBuffer(staging); err != nil {
		logging.Logger().Warn("native: unmap readback buffer", "err", err)
	}
	d.reclaim()
	return out, nil
}

// === Submission ===

// acquireEncoder returns a recording encoder, reusing a reset one when
// available.
func (d *Device) acquireEncoder(label string) (hal.CommandEncoder, error) {
	d.mu.Lock()
	var enc hal.CommandEncoder
	if n := len(d.idle); n > 0 {
		enc = d.idle[n-1]
		d.idle = d.idle[:n-1]
	}
	d.mu.Unlock()

	if enc == nil {
		var err error
		enc, err = d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
			Label: d.label(label),
		})
		if err != nil {
			return nil, fmt.Errorf("native: create command encoder: %w", err)
		}
	}
	if err := enc.BeginEncoding(d.label(label)); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return enc, nil
}

// recycle resets enc together with its command buffer, if any, and
// returns it to the idle pool. The GPU must be done with cmd.
func (d *Device) recycle(enc hal.CommandEncoder, cmd hal.CommandBuffer) {
	if cmd != nil {
		enc.ResetAll([]hal.CommandBuffer{cmd})
	} else {
		enc.ResetAll(nil)
	}

	d.mu.Lock()
	if d.closed || len(d.idle) >= maxIdleEncoders {
		d.mu.Unlock()
		enc.Destroy()
		return
	}
	d.idle = append(d.idle, enc)
	d.mu.Unlock()
}

// submit queues cmd and returns its submission index. release lists
// buffers destroyed once the submission completes.
func (d *Device) submit(enc hal.CommandEncoder, cmd hal.CommandBuffer, release ...hal.Buffer) (uint64, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()

	fail := func(err error) (uint64, error) {
		d.recycle(enc, cmd)
		for _, b := range release {
			d.device.DestroyBuffer(b)
		}
		return 0, err
	}
	if closed {
		return fail(gpucore.ErrDeviceLost)
	}

	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return fail(fmt.Errorf("native: submit: %w", err))
	}

	d.mu.Lock()
	d.inflight = append(d.inflight, submission{index: index, enc: enc, cmd: cmd, release: release})
	d.lastSubmitted = max(d.lastSubmitted, index)
	d.mu.Unlock()
	return index, nil
}

// reclaim recycles the encoders of every submission PollCompleted reports
// done. It never blocks.
func (d *Device) reclaim() {
	completed := d.queue.PollCompleted()

	d.mu.Lock()
	var done []submission
	pending := d.inflight[:0]
	for _, s := range d.inflight {
		if s.index <= completed {
			done = append(done, s)
		} else {
			pending = append(pending, s)
		}
	}
	clear(d.inflight[len(pending):])
	d.inflight = pending
	d.mu.Unlock()

	for _, s := range done {
		d.recycle(s.enc, s.cmd)
		for _, b := range s.release {
			d.device.DestroyBuffer(b)
		}
	}
}

// waitFor polls until the GPU completes index or the wait timeout passes.
func (d *Device) waitFor(index uint64) bool {
	deadline := time.Now().Add(d.opts.waitTimeout)
	for d.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
	return true
}

// InFlight returns the number of submissions not yet known complete.
func (d *Device) InFlight() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.inflight)
}

// Close waits for outstanding submissions, then destroys every view,
// layout, encoder and buffer the device created. The borrowed HAL device
// and queue are left alone.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	last := d.lastSubmitted
	pending := d.inflight
	idle := d.idle
	d.inflight = nil
	d.idle = nil
	buffers := d.buffers
	views := d.views
	layouts := d.layouts
	d.buffers = make(map[gpucore.BufferID]*halBuffer)
	d.views = make(map[gpucore.ViewID]*halView)
	d.layouts = [gpucore.NumViewKinds]hal.BindGroupLayout{}
	d.mu.Unlock()

	if last > 0 && !d.waitFor(last) {
		logging.Logger().Warn("native: close without GPU idle",
			"submitted", last, "completed", d.queue.PollCompleted())
	}
	for _, s := range pending {
		s.enc.ResetAll([]hal.CommandBuffer{s.cmd})
		s.enc.Destroy()
		for _, b := range s.release {
			d.device.DestroyBuffer(b)
		}
	}
	for _, enc := range idle {
		enc.Destroy()
	}
	for _, v := range views {
		d.device.DestroyBindGroup(v.group)
	}
	for _, l := range layouts {
		if l != nil {
			d.device.DestroyBindGroupLayout(l)
		}
	}
	for _, b := range buffers {
		d.device.DestroyBuffer(b.buf)
	}

	logging.Logger().Debug("native: device closed", "buffers", len(buffers), "views", len(views))
}
