// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// encoder records buffer copies into one HAL command encoder.
type encoder struct {
	dev      *Device
	enc      hal.CommandEncoder
	label    string
	copies   int
	finished bool
}

// BeginCommands starts a command list. Encoders of completed submissions
// are reclaimed here.
func (d *Device) BeginCommands(label string) (gpucore.CommandEncoder, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, gpucore.ErrDeviceLost
	}
	d.reclaim()

	enc, err := d.acquireEncoder(label)
	if err != nil {
		return nil, err
	}
	return &encoder{dev: d, enc: enc, label: label}, nil
}

// CopyBufferToBuffer records a copy after validating both ranges, usage
// flags and alignment.
func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) error {
	if e.finished {
		return gpucore.ErrEncoderFinished
	}

	e.dev.mu.RLock()
	s, err := e.dev.lookup(src)
	if err == nil {
		var dd *halBuffer
		dd, err = e.dev.lookup(dst)
		if err == nil {
			err = checkCopy(s, srcOffset, dd, dstOffset, size)
		}
		if err == nil {
			e.enc.CopyBufferToBuffer(s.buf, dd.buf, []hal.BufferCopy{{
				SrcOffset: srcOffset,
				DstOffset: dstOffset,
				Size:      size,
			}})
		}
	}
	e.dev.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("native: %s copy %d: %w", e.label, e.copies, err)
	}
	e.copies++
	return nil
}

// checkCopy validates one buffer-to-buffer copy against WebGPU rules.
func checkCopy(src *halBuffer, srcOffset uint64, dst *halBuffer, dstOffset, size uint64) error {
	switch {
	case src.usage&gpucore.BufferUsageCopySrc == 0:
		return fmt.Errorf("%w: %q lacks CopySrc", ErrMissingUsage, src.label)
	case dst.usage&gpucore.BufferUsageCopyDst == 0:
		return fmt.Errorf("%w: %q lacks CopyDst", ErrMissingUsage, dst.label)
	case srcOffset%CopyBufferAlignment != 0 || dstOffset%CopyBufferAlignment != 0 || size%CopyBufferAlignment != 0:
		return fmt.Errorf("%w: copy %d bytes %d -> %d not %d-byte aligned",
			gpucore.ErrOutOfRange, size, srcOffset, dstOffset, CopyBufferAlignment)
	case srcOffset+size > src.size:
		return fmt.Errorf("%w: source [%d,%d) of %d bytes", gpucore.ErrOutOfRange, srcOffset, srcOffset+size, src.size)
	case dstOffset+size > dst.size:
		return fmt.Errorf("%w: destination [%d,%d) of %d bytes", gpucore.ErrOutOfRange, dstOffset, dstOffset+size, dst.size)
	case src == dst:
		return fmt.Errorf("%w: source and destination are the same buffer", gpucore.ErrOutOfRange)
	}
	return nil
}

// Discard abandons the command list.
func (e *encoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.enc.DiscardEncoding()
	e.dev.recycle(e.enc, nil)
}

// Submit ends the command list and queues it. It does not wait for the GPU.
func (d *Device) Submit(ce gpucore.CommandEncoder) error {
	e, ok := ce.(*encoder)
	if !ok || e.dev != d {
		return ErrForeignEncoder
	}
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	e.finished = true

	cmd, err := e.enc.EndEncoding()
	if err != nil {
		d.recycle(e.enc, nil)
		return fmt.Errorf("native: end encoding: %w", err)
	}
	_, err = d.submit(e.enc, cmd)
	return err
}
