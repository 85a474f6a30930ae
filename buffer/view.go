package buffer

import (
	"fmt"

	"github.com/gogpu/gpures/internal/slotmap"
)

// View names an allocated range of a DynamicBuffer. It is a small value,
// immutable once issued, and does not keep its buffer alive.
type View struct {
	owner       slotmap.Key
	serial      uint64
	offset      uint64
	size        uint64
	elementSize uint32
}

// Offset returns the byte offset of the range. It is stable across growth.
func (v View) Offset() uint64 { return v.offset }

// Size returns the allocated size in bytes.
func (v View) Size() uint64 { return v.size }

// ElementSize returns the buffer stride, or 0 for byte-addressed buffers.
func (v View) ElementSize() uint32 { return v.elementSize }

// Index returns the element index of the range (Offset / ElementSize).
// Byte-addressed views return the byte offset.
func (v View) Index() uint64 {
	if v.elementSize == 0 {
		return v.offset
	}
	return v.offset / uint64(v.elementSize)
}

// OwnerID returns the ID of the buffer that issued the view.
func (v View) OwnerID() uint64 { return v.owner.Uint64() }

// IsZero reports whether v is the zero View.
func (v View) IsZero() bool { return v.owner.IsZero() }

// String returns a compact representation such as "view{buf=1 [64,80) #4}".
func (v View) String() string {
	return fmt.Sprintf("view{buf=%d [%d,%d) #%d}", v.owner.Uint64(), v.offset, v.offset+v.size, v.Index())
}
