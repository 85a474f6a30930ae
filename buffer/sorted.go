// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package buffer

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/gpures/internal/slotmap"
)

// NoModification is returned by EarliestModifiedIndex when every element
// has been acknowledged as synced.
const NoModification = math.MaxInt

// DefaultSortedCapacity is the element capacity used when SortedConfig
// leaves InitialCapacity at zero.
const DefaultSortedCapacity = 64

const uintSize = 4

// TrailingSlotPolicy controls what Remove does with the slot that falls
// off the end of the sequence.
type TrailingSlotPolicy uint8

const (
	// ZeroTrailingSlot uploads a zero into the vacated slot so readers
	// that ignore the logical length never see a stale duplicate.
	ZeroTrailingSlot TrailingSlotPolicy = iota

	// KeepTrailingSlot leaves the vacated slot untouched. Use it when every
	// reader clamps to Len.
	KeepTrailingSlot
)

// SortedConfig describes a SortedUintBuffer.
type SortedConfig struct {
	Label string

	// InitialCapacity is the number of uint32 elements. Zero selects
	// DefaultSortedCapacity.
	InitialCapacity int

	EnableUAV bool
	Usage     gpucore.BufferUsage

	// TrailingSlot defaults to ZeroTrailingSlot.
	TrailingSlot TrailingSlotPolicy
}

// SortedResizeFunc is called after every growth with the buffer ID, the
// new capacity in elements and the buffer itself.
type SortedResizeFunc func(id uint64, newCapacity int, buf *SortedUintBuffer)

// SortedUintBuffer keeps an ascending, duplicate-free uint32 sequence
// mirrored in a GPU buffer.
type SortedUintBuffer struct {
	mgr      Managers
	key      slotmap.Key
	label    string
	usage    gpucore.BufferUsage
	kinds    []gpucore.ViewKind
	trailing TrailingSlotPolicy

	values      []uint32
	capacity    int
	backing     gpucore.BufferID
	descriptors descriptorSet
	earliest    int

	onResized SortedResizeFunc
	growths   int
	destroyed bool
}

// NewSortedUintBuffer creates an empty sorted buffer.
func NewSortedUintBuffer(mgr Managers, cfg SortedConfig) (*SortedUintBuffer, error) {
	if err := mgr.validate(); err != nil {
		return nil, err
	}
	if a := mgr.Device.Limits().CopyAlignment; a > uintSize {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlignment, a)
	}
	if cfg.Label == "" {
		cfg.Label = "sorted-uint-buffer"
	}
	capacity := cfg.InitialCapacity
	if capacity <= 0 {
		capacity = DefaultSortedCapacity
	}

	b := &SortedUintBuffer{
		mgr:         mgr,
		label:       cfg.Label,
		usage:       backingUsage(cfg.Usage, false),
		kinds:       viewKinds(cfg.EnableUAV, false),
		trailing:    cfg.TrailingSlot,
		capacity:    capacity,
		descriptors: emptyDescriptorSet(),
		earliest:    NoModification,
	}
	backing, err := b.createBacking(capacity)
	if err != nil {
		return nil, err
	}
	if err := b.descriptors.assign(mgr.Descriptors, b.kinds, backing, uint64(capacity)*uintSize, uintSize, b.label); err != nil {
		mgr.Device.DestroyBuffer(backing)
		return nil, fmt.Errorf("buffer %s: assign descriptors: %w", b.label, err)
	}
	b.backing = backing
	b.key = mgr.Registry.addSorted(b)
	return b, nil
}

func (b *SortedUintBuffer) createBacking(capacity int) (gpucore.BufferID, error) {
	size := uint64(capacity) * uintSize
	id, err := b.mgr.Device.CreateBuffer(&gpucore.BufferDescriptor{
		Label: b.label,
		Size:  size,
		Usage: b.usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s to %d bytes: %w", ErrGrowFailed, b.label, size, err)
	}
	return id, nil
}

// ID returns the registry identifier passed to resize callbacks.
func (b *SortedUintBuffer) ID() uint64 { return b.key.Uint64() }

// Label returns the debug name.
func (b *SortedUintBuffer) Label() string { return b.label }

// Len returns the number of values.
func (b *SortedUintBuffer) Len() int { return len(b.values) }

// Capacity returns the element capacity of the backing.
func (b *SortedUintBuffer) Capacity() int { return b.capacity }

// Backing returns the current GPU buffer. It changes on growth.
func (b *SortedUintBuffer) Backing() gpucore.BufferID { return b.backing }

// Growths returns how many times the backing has been replaced.
func (b *SortedUintBuffer) Growths() int { return b.growths }

// Values returns a copy of the sequence.
func (b *SortedUintBuffer) Values() []uint32 { return slices.Clone(b.values) }

// Contains reports whether x is in the sequence.
func (b *SortedUintBuffer) Contains(x uint32) bool {
	_, found := b.search(x)
	return found
}

// DescriptorIndex returns the descriptor slot of kind, or
// descriptor.InvalidIndex.
func (b *SortedUintBuffer) DescriptorIndex(kind gpucore.ViewKind) uint32 {
	return b.descriptors.get(kind)
}

// SetOnResized registers the growth callback, replacing any previous one.
func (b *SortedUintBuffer) SetOnResized(fn SortedResizeFunc) { b.onResized = fn }

// EarliestModifiedIndex returns the lowest index touched since the last
// AcknowledgeSync, or NoModification. It never increases between
// acknowledgements.
func (b *SortedUintBuffer) EarliestModifiedIndex() int { return b.earliest }

// AcknowledgeSync resets EarliestModifiedIndex to NoModification.
func (b *SortedUintBuffer) AcknowledgeSync() { b.earliest = NoModification }

func (b *SortedUintBuffer) search(x uint32) (int, bool) {
	i := sort.Search(len(b.values), func(i int) bool { return b.values[i] >= x })
	return i, i < len(b.values) && b.values[i] == x
}

// Insert adds x, keeping the sequence sorted. It reports false without
// error when x is already present. Every element from the insertion point
// on is re-uploaded.
func (b *SortedUintBuffer) Insert(x uint32) (bool, error) {
	if b.destroyed {
		return false, ErrDestroyed
	}
	i, found := b.search(x)
	if found {
		return false, nil
	}
	if len(b.values) == b.capacity {
		if err := b.grow(); err != nil {
			return false, err
		}
	}

	b.values = slices.Insert(b.values, i, x)
	if err := b.uploadSuffix(i, false); err != nil {
		b.values = slices.Delete(b.values, i, i+1)
		return false, err
	}
	b.earliest = min(b.earliest, i)
	return true, nil
}

// Remove deletes x. It reports false without error when x is absent.
// The shifted suffix is re-uploaded and, under ZeroTrailingSlot, the
// vacated last slot is cleared.
func (b *SortedUintBuffer) Remove(x uint32) (bool, error) {
	if b.destroyed {
		return false, ErrDestroyed
	}
	i, found := b.search(x)
	if !found {
		return false, nil
	}

	b.values = slices.Delete(b.values, i, i+1)
	if err := b.uploadSuffix(i, b.trailing == ZeroTrailingSlot); err != nil {
		b.values = slices.Insert(b.values, i, x)
		return false, err
	}
	b.earliest = min(b.earliest, i)
	return true, nil
}

// uploadSuffix stages values[from:], optionally followed by one zero slot,
// as a single write.
func (b *SortedUintBuffer) uploadSuffix(from int, zeroTrailing bool) error {
	n := len(b.values) - from
	if zeroTrailing {
		n++
	}
	if n == 0 {
		return nil
	}
	payload := make([]byte, n*uintSize)
	for k, v := range b.values[from:] {
		binary.LittleEndian.PutUint32(payload[k*uintSize:], v)
	}
	if err := b.mgr.Uploads.UploadBytes(payload, b.backing, uint64(from)*uintSize); err != nil {
		return fmt.Errorf("buffer %s: stage upload: %w", b.label, err)
	}
	return nil
}

// grow doubles the capacity with the same copy-and-discard protocol as
// DynamicBuffer.
func (b *SortedUintBuffer) grow() error {
	newCap := b.capacity * 2
	backing, err := b.createBacking(newCap)
	if err != nil {
		return err
	}
	next := emptyDescriptorSet()
	if err := next.assign(b.mgr.Descriptors, b.kinds, backing, uint64(newCap)*uintSize, uintSize, b.label); err != nil {
		b.mgr.Deletion.MarkForDelete(deletion.Buffer(b.mgr.Device, backing))
		return fmt.Errorf("%w: buffer %s: reassign descriptors: %w", ErrGrowFailed, b.label, err)
	}
	if err := b.mgr.Uploads.QueueCopyAndDiscard(backing, b.backing, uint64(b.capacity)*uintSize); err != nil {
		next.retire(b.mgr.Descriptors)
		b.mgr.Deletion.MarkForDelete(deletion.Buffer(b.mgr.Device, backing))
		return fmt.Errorf("buffer %s: queue copy: %w", b.label, err)
	}

	oldCap := b.capacity
	b.backing = backing
	b.capacity = newCap
	b.growths++
	b.descriptors.retire(b.mgr.Descriptors)
	b.descriptors = next

	logging.Logger().Debug("buffer: sorted grown", "label", b.label, "from", oldCap, "to", newCap)

	if b.onResized != nil {
		b.onResized(b.ID(), newCap, b)
	}
	return nil
}

// Destroy unregisters the buffer and retires its backing and descriptor
// slots through the deletion manager. Destroy is idempotent.
func (b *SortedUintBuffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.mgr.Registry.removeSorted(b.key)
	b.descriptors.retire(b.mgr.Descriptors)
	b.mgr.Deletion.MarkForDelete(deletion.Buffer(b.mgr.Device, b.backing))
	b.values = nil
}
