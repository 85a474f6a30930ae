// Package alloc implements the first-fit block allocator that tracks the
// free and used sub-ranges of one GPU buffer.
//
// The allocator only does bookkeeping over the byte range [0, capacity).
// It never touches GPU memory and never grows on its own: when Allocate
// reports ErrNoFit the owning buffer grows its backing and calls Grow.
package alloc

import (
	"errors"
	"fmt"
	"sort"
)

// Allocator errors.
var (
	// ErrZeroSize is returned when a zero-byte allocation is requested.
	ErrZeroSize = errors.New("alloc: zero-size allocation")

	// ErrNoFit is returned when no free block can hold the request.
	ErrNoFit = errors.New("alloc: no free block fits")

	// ErrNotAllocated is returned when freeing a range that is not a used block.
	ErrNotAllocated = errors.New("alloc: range is not allocated")

	// ErrSizeMismatch is returned when the freed size differs from the allocation.
	ErrSizeMismatch = errors.New("alloc: size does not match allocation")

	// ErrCorrupt is returned by Validate when an invariant is broken.
	ErrCorrupt = errors.New("alloc: block list corrupt")
)

// Block is one contiguous sub-range of the tracked capacity.
type Block struct {
	Offset uint64
	Size   uint64
	Free   bool
}

// End returns the first byte past the block.
func (b Block) End() uint64 { return b.Offset + b.Size }

// String returns a compact representation such as "[0,64) used".
func (b Block) String() string {
	state := "used"
	if b.Free {
		state = "free"
	}
	return fmt.Sprintf("[%d,%d) %s", b.Offset, b.End(), state)
}

// Allocator is a first-fit free-list allocator over [0, capacity).
//
// Blocks are kept ordered by offset and always cover the whole capacity.
// Adjacent free blocks are coalesced eagerly, so the block count is
// bounded by live allocation churn rather than data volume.
//
// Allocator is not safe for concurrent use; its owning buffer is mutated
// from the single submission thread only.
type Allocator struct {
	blocks   []Block
	capacity uint64
	used     uint64
}

// New creates an allocator tracking capacity bytes, all free.
// A zero capacity yields an empty allocator that reports ErrNoFit until grown.
func New(capacity uint64) *Allocator {
	a := &Allocator{capacity: capacity}
	if capacity > 0 {
		a.blocks = []Block{{Offset: 0, Size: capacity, Free: true}}
	}
	return a
}

// Capacity returns the number of tracked bytes.
func (a *Allocator) Capacity() uint64 { return a.capacity }

// UsedBytes returns the number of allocated bytes.
func (a *Allocator) UsedBytes() uint64 { return a.used }

// FreeBytes returns the number of free bytes, fragmented or not.
func (a *Allocator) FreeBytes() uint64 { return a.capacity - a.used }

// BlockCount returns the number of blocks, free and used.
func (a *Allocator) BlockCount() int { return len(a.blocks) }

// Blocks returns a copy of the block list ordered by offset.
func (a *Allocator) Blocks() []Block {
	out := make([]Block, len(a.blocks))
	copy(out, a.blocks)
	return out
}

// LargestFree returns the size of the largest free block.
func (a *Allocator) LargestFree() uint64 {
	var largest uint64
	for _, b := range a.blocks {
		if b.Free && b.Size > largest {
			largest = b.Size
		}
	}
	return largest
}

// Allocate reserves size bytes from the first free block large enough and
// returns the offset of the reserved range. A non-zero remainder stays free
// directly after the allocation.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}

	for i := range a.blocks {
		b := a.blocks[i]
		if !b.Free || b.Size < size {
			continue
		}

		a.blocks[i].Size = size
		a.blocks[i].Free = false
		if rest := b.Size - size; rest > 0 {
			a.insert(i+1, Block{Offset: b.Offset + size, Size: rest, Free: true})
		}
		a.used += size
		return b.Offset, nil
	}

	return 0, fmt.Errorf("%w: need %d bytes, largest free %d of %d",
		ErrNoFit, size, a.LargestFree(), a.capacity)
}

// Deallocate returns the used block starting at offset to the free list and
// merges it with free neighbours.
//
// Freeing a range that is already free, or that was never allocated,
// returns ErrNotAllocated and leaves the allocator unchanged.
func (a *Allocator) Deallocate(offset, size uint64) error {
	i := a.find(offset)
	if i < 0 || a.blocks[i].Free {
		return fmt.Errorf("%w: offset %d", ErrNotAllocated, offset)
	}
	if a.blocks[i].Size != size {
		return fmt.Errorf("%w: offset %d has %d bytes, freeing %d",
			ErrSizeMismatch, offset, a.blocks[i].Size, size)
	}

	a.blocks[i].Free = true
	a.used -= size

	// Merge with the following block first so index i stays valid.
	if i+1 < len(a.blocks) && a.blocks[i+1].Free {
		a.blocks[i].Size += a.blocks[i+1].Size
		a.remove(i + 1)
	}
	if i > 0 && a.blocks[i-1].Free {
		a.blocks[i-1].Size += a.blocks[i].Size
		a.remove(i)
	}
	return nil
}

// Grow extends the tracked range by `by` bytes at the end. The new space
// joins the trailing block when that block is already free.
func (a *Allocator) Grow(by uint64) {
	if by == 0 {
		return
	}
	if n := len(a.blocks); n > 0 && a.blocks[n-1].Free {
		a.blocks[n-1].Size += by
	} else {
		a.blocks = append(a.blocks, Block{Offset: a.capacity, Size: by, Free: true})
	}
	a.capacity += by
}

// IsAllocated reports whether a used block starts at offset with the given size.
func (a *Allocator) IsAllocated(offset, size uint64) bool {
	i := a.find(offset)
	return i >= 0 && !a.blocks[i].Free && a.blocks[i].Size == size
}

// Validate checks the block list invariants: contiguous coverage of the
// capacity, no empty blocks, no two adjacent free blocks, and a used-byte
// count matching the used blocks.
func (a *Allocator) Validate() error {
	var next, used uint64
	for i, b := range a.blocks {
		if b.Size == 0 {
			return fmt.Errorf("%w: block %d %s is empty", ErrCorrupt, i, b)
		}
		if b.Offset != next {
			return fmt.Errorf("%w: block %d %s starts at %d, want %d", ErrCorrupt, i, b, b.Offset, next)
		}
		if i > 0 && b.Free && a.blocks[i-1].Free {
			return fmt.Errorf("%w: blocks %d and %d are both free", ErrCorrupt, i-1, i)
		}
		if !b.Free {
			used += b.Size
		}
		next = b.End()
	}
	if next != a.capacity {
		return fmt.Errorf("%w: blocks cover %d bytes, capacity %d", ErrCorrupt, next, a.capacity)
	}
	if used != a.used {
		return fmt.Errorf("%w: used blocks hold %d bytes, counter says %d", ErrCorrupt, used, a.used)
	}
	return nil
}

// find returns the index of the block starting exactly at offset, or -1.
func (a *Allocator) find(offset uint64) int {
	i := sort.Search(len(a.blocks), func(i int) bool {
		return a.blocks[i].Offset >= offset
	})
	if i < len(a.blocks) && a.blocks[i].Offset == offset {
		return i
	}
	return -1
}

func (a *Allocator) insert(i int, b Block) {
	a.blocks = append(a.blocks, Block{})
	copy(a.blocks[i+1:], a.blocks[i:])
	a.blocks[i] = b
}

func (a *Allocator) remove(i int) {
	a.blocks = append(a.blocks[:i], a.blocks[i+1:]...)
}
