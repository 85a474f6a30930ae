// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// ViewID is an opaque handle to a shader-visible buffer view.
type ViewID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage = gputypes.BufferUsage

// Buffer usage flags, shared with the WebGPU type definitions.
const (
	BufferUsageMapRead  = gputypes.BufferUsageMapRead
	BufferUsageMapWrite = gputypes.BufferUsageMapWrite
	BufferUsageCopySrc  = gputypes.BufferUsageCopySrc
	BufferUsageCopyDst  = gputypes.BufferUsageCopyDst
	BufferUsageVertex   = gputypes.BufferUsageVertex
	BufferUsageUniform  = gputypes.BufferUsageUniform
	BufferUsageStorage  = gputypes.BufferUsageStorage
)

// ViewKind is the shader-visible view type of a descriptor slot.
type ViewKind uint8

// View kinds.
const (
	// ViewKindSRV is a read-only storage view (shader resource view).
	ViewKindSRV ViewKind = iota

	// ViewKindUAV is a read-write storage view (unordered access view).
	ViewKindUAV

	// ViewKindCBV is a uniform view (constant buffer view).
	ViewKindCBV

	// NumViewKinds is the number of view kinds.
	NumViewKinds
)

// String returns the conventional short name of the view kind.
func (k ViewKind) String() string {
	switch k {
	case ViewKindSRV:
		return "SRV"
	case ViewKindUAV:
		return "UAV"
	case ViewKindCBV:
		return "CBV"
	default:
		return fmt.Sprintf("ViewKind(%d)", uint8(k))
	}
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// BufferViewDescriptor describes a shader-visible view over a buffer range.
type BufferViewDescriptor struct {
	Kind   ViewKind
	Buffer BufferID
	Offset uint64
	// Size of the viewed range in bytes. Zero means to the end of the buffer.
	Size uint64
	// Stride is the structured element size, or 0 for a raw byte view.
	Stride uint32
	Label  string
}

// Limits reports the device constraints the resource managers respect.
type Limits struct {
	// MaxBufferSize is the largest buffer the device can create.
	MaxBufferSize uint64

	// CopyAlignment is the required alignment of copy offsets and sizes.
	// Always a power of two.
	CopyAlignment uint64
}

// AlignCopy rounds n up to the copy alignment.
func (l Limits) AlignCopy(n uint64) uint64 {
	a := l.CopyAlignment
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// IsCopyAligned reports whether n satisfies the copy alignment.
func (l Limits) IsCopyAligned(n uint64) bool {
	return l.CopyAlignment <= 1 || n&(l.CopyAlignment-1) == 0
}

// DefaultLimits returns limits matching the WebGPU defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize: gputypes.DefaultLimits().MaxBufferSize,
		CopyAlignment: 4,
	}
}
