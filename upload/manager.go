// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package upload

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/cache"
	"github.com/gogpu/gpures/internal/logging"
)

// Upload errors.
var (
	// ErrUnaligned is returned when an offset or size violates the device
	// copy alignment.
	ErrUnaligned = errors.New("upload: offset or size not copy-aligned")

	// ErrInvalidBuffer is returned for operations on gpucore.InvalidID.
	ErrInvalidBuffer = errors.New("upload: invalid buffer")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("upload: manager closed")
)

type opKind uint8

const (
	opWrite opKind = iota
	opCopy
)

// op is one queued operation. For writes, data holds the private copy of
// the payload and stagingOffset is assigned at Flush.
type op struct {
	kind          opKind
	data          []byte
	src, dst      gpucore.BufferID
	srcOffset     uint64
	dstOffset     uint64
	size          uint64
	discard       bool
	stagingOffset uint64
}

// Stats reports upload activity.
type Stats struct {
	Flushes        uint64
	Writes         uint64
	Copies         uint64
	Discards       uint64
	BytesUploaded  uint64
	BytesCopied    uint64
	StagingCreated uint64
	StagingReused  uint64
	ParallelPacks  uint64
	PooledStaging  int
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("flushes=%d writes=%d (%d B) copies=%d (%d B) discards=%d staging created=%d reused=%d pooled=%d",
		s.Flushes, s.Writes, s.BytesUploaded, s.Copies, s.BytesCopied, s.Discards,
		s.StagingCreated, s.StagingReused, s.PooledStaging)
}

// Manager queues uploads and copies for one device.
type Manager struct {
	mu       sync.Mutex
	dev      gpucore.Device
	deletion *deletion.Manager
	limits   gpucore.Limits
	opts     options

	ops          []op
	pendingBytes uint64

	pool *cache.Cache[gpucore.BufferID, uint64]

	// lanes are single-worker pools; Stop addresses workers by ID over a
	// shared channel, which only reaches the right worker when there is one.
	lanes []worker.DynamicWorkerPool

	stats  Stats
	closed bool
}

// New creates an upload manager. Staging buffers and discarded backings
// are released through dm.
func New(dev gpucore.Device, dm *deletion.Manager, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &Manager{
		dev:      dev,
		deletion: dm,
		limits:   dev.Limits(),
		opts:     o,
	}
	m.pool = cache.New[gpucore.BufferID, uint64](o.poolLimit, func(id gpucore.BufferID, _ uint64) {
		dev.DestroyBuffer(id)
	})
	return m
}

// Limits returns the device limits the manager validates against.
func (m *Manager) Limits() gpucore.Limits { return m.limits }

func (m *Manager) checkAligned(what string, v uint64) error {
	if !m.limits.IsCopyAligned(v) {
		return fmt.Errorf("%w: %s %d (alignment %d)", ErrUnaligned, what, v, m.limits.CopyAlignment)
	}
	return nil
}

// UploadBytes queues a write of data at dstOffset. data is copied before
// UploadBytes returns, so the caller may reuse the slice.
func (m *Manager) UploadBytes(data []byte, dst gpucore.BufferID, dstOffset uint64) error {
	if dst == gpucore.InvalidID {
		return ErrInvalidBuffer
	}
	if len(data) == 0 {
		return nil
	}
	if err := m.checkAligned("destination offset", dstOffset); err != nil {
		return err
	}
	if err := m.checkAligned("size", uint64(len(data))); err != nil {
		return err
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ops = append(m.ops, op{kind: opWrite, data: payload, dst: dst, dstOffset: dstOffset, size: uint64(len(payload))})
	m.pendingBytes += uint64(len(payload))
	return nil
}

// CopyBuffer queues a GPU-side copy of size bytes.
func (m *Manager) CopyBuffer(src, dst gpucore.BufferID, srcOffset, dstOffset, size uint64) error {
	return m.queueCopy(src, dst, srcOffset, dstOffset, size, false)
}

// QueueCopyAndDiscard queues a copy of old[0:size] into dst[0:size] and
// hands old to the deletion manager once the command list reading it has
// been submitted. old must not be used by the caller afterwards.
func (m *Manager) QueueCopyAndDiscard(dst, old gpucore.BufferID, size uint64) error {
	return m.queueCopy(old, dst, 0, 0, size, true)
}

func (m *Manager) queueCopy(src, dst gpucore.BufferID, srcOffset, dstOffset, size uint64, discard bool) error {
	if src == gpucore.InvalidID || dst == gpucore.InvalidID {
		return ErrInvalidBuffer
	}
	for _, c := range []struct {
		what string
		v    uint64
	}{{"source offset", srcOffset}, {"destination offset", dstOffset}, {"size", size}} {
		if err := m.checkAligned(c.what, c.v); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ops = append(m.ops, op{
		kind: opCopy, src: src, dst: dst,
		srcOffset: srcOffset, dstOffset: dstOffset, size: size,
		discard: discard,
	})
	return nil
}

// Pending returns the number of queued operations.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ops)
}

// Stats returns upload statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()
	s.PooledStaging = m.pool.Len()
	return s
}

// Flush records every queued operation in call order into one command
// list and submits it. It is the frame sync point and is called once per
// frame before the frame's own GPU work is submitted.
//
// A submission failure is a device-level error: the queued operations are
// dropped and the error is returned.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if len(m.ops) == 0 {
		return nil
	}
	ops := m.ops
	total := m.pendingBytes
	m.ops = nil
	m.pendingBytes = 0

	var staging gpucore.BufferID
	var stagingSize uint64
	if total > 0 {
		var err error
		staging, stagingSize, err = m.acquireStaging(total)
		if err != nil {
			m.discardAll(ops)
			return fmt.Errorf("upload: acquire staging: %w", err)
		}
		if err := m.pack(ops, staging, total); err != nil {
			m.deletion.MarkForDelete(deletion.Buffer(m.dev, staging))
			m.discardAll(ops)
			return err
		}
	}

	if err := m.record(ops, staging); err != nil {
		if staging != gpucore.InvalidID {
			m.deletion.MarkForDelete(deletion.Buffer(m.dev, staging))
		}
		m.discardAll(ops)
		return err
	}

	if staging != gpucore.InvalidID {
		m.deletion.MarkFunc(func() { m.recycle(staging, stagingSize) })
	}
	var copied uint64
	var writes, copies, discards uint64
	for i := range ops {
		o := &ops[i]
		switch o.kind {
		case opWrite:
			writes++
		case opCopy:
			copies++
			copied += o.size
			if o.discard {
				discards++
				m.deletion.MarkForDelete(deletion.Buffer(m.dev, o.src))
			}
		}
	}
	m.stats.Flushes++
	m.stats.Writes += writes
	m.stats.Copies += copies
	m.stats.Discards += discards
	m.stats.BytesUploaded += total
	m.stats.BytesCopied += copied

	logging.Logger().Debug("upload: flushed",
		"writes", writes, "copies", copies, "discards", discards, "bytes", total)
	return nil
}

// record builds and submits the command list.
func (m *Manager) record(ops []op, staging gpucore.BufferID) error {
	enc, err := m.dev.BeginCommands("upload")
	if err != nil {
		return fmt.Errorf("upload: begin commands: %w", err)
	}
	for i := range ops {
		o := &ops[i]
		switch o.kind {
		case opWrite:
			err = enc.CopyBufferToBuffer(staging, o.stagingOffset, o.dst, o.dstOffset, o.size)
		case opCopy:
			err = enc.CopyBufferToBuffer(o.src, o.srcOffset, o.dst, o.dstOffset, o.size)
		}
		if err != nil {
			enc.Discard()
			return fmt.Errorf("upload: record op %d: %w", i, err)
		}
	}
	if err := m.dev.Submit(enc); err != nil {
		enc.Discard()
		return fmt.Errorf("upload: submit: %w", err)
	}
	return nil
}

// discardAll still retires the backings of dropped copy-and-discard
// operations, since their owners have already moved on.
func (m *Manager) discardAll(ops []op) {
	for i := range ops {
		if ops[i].kind == opCopy && ops[i].discard {
			m.deletion.MarkForDelete(deletion.Buffer(m.dev, ops[i].src))
		}
	}
}

// acquireStaging returns a staging buffer of at least size bytes, reusing
// the smallest pooled one that fits. Caller must hold m.mu.
func (m *Manager) acquireStaging(size uint64) (gpucore.BufferID, uint64, error) {
	fits := func(_ gpucore.BufferID, s uint64) bool { return s >= size }
	smaller := func(a, b uint64) bool { return a < b }
	if id, got, ok := m.pool.TakeBest(fits, smaller); ok {
		m.stats.StagingReused++
		return id, got, nil
	}

	capacity := stagingSize(size)
	if capacity > m.limits.MaxBufferSize && size <= m.limits.MaxBufferSize {
		capacity = m.limits.AlignCopy(size)
	}
	id, err := m.dev.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "upload-staging",
		Size:  capacity,
		Usage: gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, 0, err
	}
	m.stats.StagingCreated++
	return id, capacity, nil
}

// recycle returns a staging buffer to the pool once the GPU is done with it.
func (m *Manager) recycle(id gpucore.BufferID, size uint64) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.dev.DestroyBuffer(id)
		return
	}
	m.pool.Put(id, size)
}

// stagingSize rounds n up to a power of two, at least MinStagingSize.
func stagingSize(n uint64) uint64 {
	if n <= MinStagingSize {
		return MinStagingSize
	}
	return 1 << bits.Len64(n-1)
}

// pack assigns staging offsets in call order, assembles the payloads into
// one host block and writes it with a single queue write.
func (m *Manager) pack(ops []op, staging gpucore.BufferID, total uint64) error {
	var off uint64
	var writes []*op
	for i := range ops {
		if ops[i].kind != opWrite {
			continue
		}
		ops[i].stagingOffset = off
		off += ops[i].size
		writes = append(writes, &ops[i])
	}

	block := make([]byte, total)
	if m.opts.parallelThreshold > 0 && total >= m.opts.parallelThreshold && len(writes) > 1 {
		m.packParallel(block, writes)
		m.stats.ParallelPacks++
	} else {
		for _, w := range writes {
			copy(block[w.stagingOffset:], w.data)
		}
	}

	if err := m.dev.WriteBuffer(staging, 0, block); err != nil {
		return fmt.Errorf("upload: write staging: %w", err)
	}
	return nil
}

// packParallel splits the payloads into contiguous runs of roughly equal
// size and copies each run on a pack lane.
func (m *Manager) packParallel(block []byte, writes []*op) {
	if m.lanes == nil {
		m.lanes = make([]worker.DynamicWorkerPool, m.opts.workers)
		for i := range m.lanes {
			m.lanes[i] = worker.NewDynamicWorkerPool(1, 64, m.opts.idleTimeout)
		}
	}

	chunk := uint64(len(block))/uint64(len(m.lanes)) + 1
	var wg sync.WaitGroup
	taskID := 0
	start := 0
	for start < len(writes) {
		end := start
		var run uint64
		for end < len(writes) && (run < chunk || end == start) {
			run += writes[end].size
			end++
		}

		batch := writes[start:end]
		wg.Add(1)
		m.lanes[taskID%len(m.lanes)].SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				for _, w := range batch {
					copy(block[w.stagingOffset:], w.data)
				}
				return nil, nil
			},
		})
		taskID++
		start = end
	}
	wg.Wait()
}

// Close drops queued operations, stops the pack workers and destroys
// pooled staging buffers.
// Staging buffers still waiting in the deletion manager are destroyed
// when released. Close does not flush; call Flush first to keep pending
// uploads.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ops := m.ops
	m.ops = nil
	m.pendingBytes = 0
	lanes := m.lanes
	m.lanes = nil
	m.mu.Unlock()

	for _, l := range lanes {
		l.Stop()
	}
	m.discardAll(ops)
	m.pool.Clear()
}
