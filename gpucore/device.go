// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "errors"

// Device errors.
var (
	// ErrOutOfMemory is returned when the device cannot allocate a buffer.
	ErrOutOfMemory = errors.New("gpucore: out of device memory")

	// ErrDeviceLost is returned after the device has been closed or lost.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrUnknownBuffer is returned when an ID does not name a live buffer.
	ErrUnknownBuffer = errors.New("gpucore: unknown buffer")

	// ErrUnknownView is returned when an ID does not name a live view.
	ErrUnknownView = errors.New("gpucore: unknown buffer view")

	// ErrOutOfRange is returned when a write or copy exceeds a buffer.
	ErrOutOfRange = errors.New("gpucore: range exceeds buffer size")

	// ErrEncoderFinished is returned when recording on a submitted or
	// discarded encoder.
	ErrEncoderFinished = errors.New("gpucore: command encoder already finished")
)

// Device abstracts over the GPU backends.
//
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource still referenced by in-flight GPU work is the
//     caller's responsibility to avoid (see package deletion)
//   - IDs become invalid after destruction and are never reused
type Device interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Limits returns the device constraints.
	Limits() Limits

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer. Exhaustion is reported as an
	// error wrapping ErrOutOfMemory.
	CreateBuffer(desc *BufferDescriptor) (BufferID, error)

	// DestroyBuffer releases a GPU buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// WriteBuffer schedules a queue write of data at offset.
	// The data is copied before WriteBuffer returns.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// === Commands ===

	// BeginCommands starts recording a command list.
	BeginCommands(label string) (CommandEncoder, error)

	// Submit finishes the encoder and submits its command list to the queue.
	// The encoder cannot be used afterwards.
	Submit(enc CommandEncoder) error

	// === Views ===

	// CreateBufferView creates a shader-visible view for a descriptor slot.
	CreateBufferView(desc *BufferViewDescriptor) (ViewID, error)

	// DestroyBufferView releases a view. Unknown IDs are ignored.
	DestroyBufferView(id ViewID)

	// Close releases every resource still owned by the device.
	Close()
}

// CommandEncoder records commands into a single command list.
type CommandEncoder interface {
	// CopyBufferToBuffer records a copy of size bytes.
	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset uint64, size uint64) error

	// Discard abandons the recording. Safe to call after Submit.
	Discard()
}

// BufferReader is implemented by devices that support blocking readback.
// Readback stalls until the GPU is idle and is meant for tests and tools.
type BufferReader interface {
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)
}
