// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package buffer

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/alloc"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/gpures/internal/slotmap"
)

// DefaultInitialCapacity is the backing size used when Config leaves
// InitialCapacity at zero.
const DefaultInitialCapacity = 4096

// Config describes a DynamicBuffer.
type Config struct {
	// Label is the debug name of the backing and its views.
	Label string

	// InitialCapacity is the initial backing size in bytes, rounded up to
	// the copy alignment. Zero selects DefaultInitialCapacity.
	InitialCapacity uint64

	// ElementSize is the structured stride in bytes. It must be non-zero
	// and copy-aligned unless Raw is set.
	ElementSize uint32

	// Raw makes the buffer byte addressed: every Add allocates the length
	// of its data, and views carry no stride.
	Raw bool

	// EnableUAV assigns a read-write view slot next to the SRV.
	EnableUAV bool

	// EnableCBV assigns a uniform view slot and adds uniform usage.
	EnableCBV bool

	// Usage adds extra usage flags to the backing (e.g. vertex or index).
	Usage gpucore.BufferUsage
}

// ResizeFunc is called after every growth with the buffer ID, its stride,
// the new capacity in bytes and the buffer itself. Dependents use it to
// refresh cached descriptor indices.
type ResizeFunc func(id uint64, elementSize uint32, newCapacity uint64, buf *DynamicBuffer)

// DynamicBuffer is a growable GPU buffer with first-fit sub-allocation.
type DynamicBuffer struct {
	mgr    Managers
	key    slotmap.Key
	label  string
	stride uint32
	raw    bool
	usage  gpucore.BufferUsage
	kinds  []gpucore.ViewKind
	limits gpucore.Limits

	backing     gpucore.BufferID
	alloc       *alloc.Allocator
	descriptors descriptorSet

	// live maps the offset of each live allocation to the serial of the
	// view that owns it.
	live   map[uint64]uint64
	serial uint64

	onResized ResizeFunc
	growths   int
	destroyed bool
}

// NewDynamicBuffer creates a buffer with its initial backing and
// descriptor slots.
func NewDynamicBuffer(mgr Managers, cfg Config) (*DynamicBuffer, error) {
	if err := mgr.validate(); err != nil {
		return nil, err
	}
	limits := mgr.Device.Limits()
	if !cfg.Raw {
		if cfg.ElementSize == 0 {
			return nil, ErrZeroElement
		}
		if !limits.IsCopyAligned(uint64(cfg.ElementSize)) {
			return nil, fmt.Errorf("%w: %d (alignment %d)", ErrUnalignedElement, cfg.ElementSize, limits.CopyAlignment)
		}
	}
	if cfg.Label == "" {
		cfg.Label = "dynamic-buffer"
	}
	capacity := cfg.InitialCapacity
	if capacity == 0 {
		capacity = DefaultInitialCapacity
	}
	capacity = limits.AlignCopy(capacity)

	b := &DynamicBuffer{
		mgr:         mgr,
		label:       cfg.Label,
		raw:         cfg.Raw,
		usage:       backingUsage(cfg.Usage, cfg.EnableCBV),
		kinds:       viewKinds(cfg.EnableUAV, cfg.EnableCBV),
		limits:      limits,
		descriptors: emptyDescriptorSet(),
		live:        make(map[uint64]uint64),
	}
	if !cfg.Raw {
		b.stride = cfg.ElementSize
	}

	backing, err := b.createBacking(capacity)
	if err != nil {
		return nil, err
	}
	if err := b.descriptors.assign(mgr.Descriptors, b.kinds, backing, capacity, b.stride, b.label); err != nil {
		mgr.Device.DestroyBuffer(backing)
		return nil, fmt.Errorf("buffer %s: assign descriptors: %w", b.label, err)
	}
	b.backing = backing
	b.alloc = alloc.New(capacity)
	b.key = mgr.Registry.addDynamic(b)

	logging.Logger().Debug("buffer: created",
		"label", b.label, "id", b.key.Uint64(), "capacity", capacity, "stride", b.stride)
	return b, nil
}

func (b *DynamicBuffer) createBacking(size uint64) (gpucore.BufferID, error) {
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
func (b *DynamicBuffer) ID() uint64 { return b.key.Uint64() }

// Label returns the debug name.
func (b *DynamicBuffer) Label() string { return b.label }

// ElementSize returns the stride, or 0 for byte-addressed buffers.
func (b *DynamicBuffer) ElementSize() uint32 { return b.stride }

// Backing returns the current GPU buffer. It changes on growth.
func (b *DynamicBuffer) Backing() gpucore.BufferID { return b.backing }

// Capacity returns the backing size in bytes.
func (b *DynamicBuffer) Capacity() uint64 {
	if b.alloc == nil {
		return 0
	}
	return b.alloc.Capacity()
}

// Size returns the number of allocated bytes.
func (b *DynamicBuffer) Size() uint64 {
	if b.alloc == nil {
		return 0
	}
	return b.alloc.UsedBytes()
}

// Len returns the number of live views.
func (b *DynamicBuffer) Len() int { return len(b.live) }

// Growths returns how many times the backing has been replaced.
func (b *DynamicBuffer) Growths() int { return b.growths }

// Blocks returns the allocator block list, for diagnostics.
func (b *DynamicBuffer) Blocks() []alloc.Block {
	if b.alloc == nil {
		return nil
	}
	return b.alloc.Blocks()
}

// DescriptorIndex returns the descriptor slot of kind, or
// descriptor.InvalidIndex when the buffer publishes no such view.
// Indices change on growth; see SetOnResized.
func (b *DynamicBuffer) DescriptorIndex(kind gpucore.ViewKind) uint32 {
	return b.descriptors.get(kind)
}

// SetOnResized registers the growth callback, replacing any previous one.
func (b *DynamicBuffer) SetOnResized(fn ResizeFunc) { b.onResized = fn }

// Add allocates one element and stages data into it. For structured
// buffers the allocation is ElementSize bytes and data may be shorter;
// for raw buffers it is len(data) rounded to the copy alignment.
func (b *DynamicBuffer) Add(data []byte) (View, error) {
	size := uint64(b.stride)
	if b.raw {
		size = b.limits.AlignCopy(uint64(len(data)))
	}
	return b.AddSized(data, size)
}

// AddSized allocates allocSize bytes (rounded to the copy alignment) and
// stages data at the start of the range. It is used for records that
// need padding beyond their payload.
func (b *DynamicBuffer) AddSized(data []byte, allocSize uint64) (View, error) {
	if b.destroyed {
		return View{}, ErrDestroyed
	}
	if allocSize == 0 {
		return View{}, ErrZeroElement
	}
	size := b.limits.AlignCopy(allocSize)
	if uint64(len(data)) > size {
		return View{}, fmt.Errorf("%w: %d bytes into %d", ErrDataTooLarge, len(data), size)
	}

	offset, err := b.alloc.Allocate(size)
	if errors.Is(err, alloc.ErrNoFit) {
		if err := b.grow(size); err != nil {
			return View{}, err
		}
		offset, err = b.alloc.Allocate(size)
	}
	if err != nil {
		return View{}, fmt.Errorf("buffer %s: allocate %d bytes: %w", b.label, size, err)
	}

	if err := b.stage(data, size, offset); err != nil {
		_ = b.alloc.Deallocate(offset, size)
		return View{}, err
	}

	b.serial++
	b.live[offset] = b.serial
	b.check()
	return View{
		owner:       b.key,
		serial:      b.serial,
		offset:      offset,
		size:        size,
		elementSize: b.stride,
	}, nil
}

// stage queues data zero-padded to size at offset.
func (b *DynamicBuffer) stage(data []byte, size, offset uint64) error {
	payload := data
	if uint64(len(data)) != size {
		payload = make([]byte, size)
		copy(payload, data)
	}
	if err := b.mgr.Uploads.UploadBytes(payload, b.backing, offset); err != nil {
		return fmt.Errorf("buffer %s: stage upload: %w", b.label, err)
	}
	return nil
}

// validate checks that v was issued by b and still owns its range.
func (b *DynamicBuffer) validate(v View) error {
	if v.owner != b.key {
		if !v.owner.IsZero() && b.mgr.Registry.containsDynamic(v.owner) {
			return fmt.Errorf("%w: %s used with buffer %d", ErrForeignView, v, b.ID())
		}
		return fmt.Errorf("%w: %s", ErrStaleView, v)
	}
	if b.destroyed {
		return fmt.Errorf("%w: %s: buffer destroyed", ErrStaleView, v)
	}
	if serial, ok := b.live[v.offset]; !ok || serial != v.serial {
		return fmt.Errorf("%w: %s: range removed", ErrStaleView, v)
	}
	return nil
}

// Remove returns the view's range to the allocator. GPU memory is not
// cleared. Removing the same view twice is a logic error: it panics in
// debug builds and is logged and ignored otherwise.
func (b *DynamicBuffer) Remove(v View) error {
	err := b.validate(v)
	if err != nil {
		if v.owner == b.key && !b.destroyed && errors.Is(err, ErrStaleView) {
			b.doubleRemove(v)
			return nil
		}
		return err
	}

	if err := b.alloc.Deallocate(v.offset, v.size); err != nil {
		return fmt.Errorf("buffer %s: %w", b.label, err)
	}
	delete(b.live, v.offset)
	b.check()
	return nil
}

func (b *DynamicBuffer) doubleRemove(v View) {
	if debugChecks {
		panic(fmt.Sprintf("buffer %s: double remove of %s", b.label, v))
	}
	logging.Logger().Warn("buffer: double remove ignored", "label", b.label, "view", v.String())
}

// UpdateView overwrites the view's range. Data shorter than the range is
// zero padded.
func (b *DynamicBuffer) UpdateView(v View, data []byte) error {
	if err := b.validate(v); err != nil {
		return err
	}
	if uint64(len(data)) > v.size {
		return fmt.Errorf("%w: %d bytes into %s", ErrDataTooLarge, len(data), v)
	}
	return b.stage(data, v.size, v.offset)
}

// EnsureCapacity grows the buffer so that its capacity is at least n bytes.
func (b *DynamicBuffer) EnsureCapacity(n uint64) error {
	if b.destroyed {
		return ErrDestroyed
	}
	if n <= b.alloc.Capacity() {
		return nil
	}
	return b.grow(n)
}

// grow replaces the backing with one of max(capacity, required) +
// capacity bytes. The old contents are copied forward and the old backing
// and descriptor slots are retired after the frames in flight drain.
func (b *DynamicBuffer) grow(required uint64) error {
	oldCap := b.alloc.Capacity()
	newCap := b.limits.AlignCopy(max(oldCap, required) + oldCap)
	if limit := b.limits.MaxBufferSize; limit > 0 && newCap > limit && oldCap+required <= limit {
		newCap = limit &^ (max(b.limits.CopyAlignment, 1) - 1)
	}

	backing, err := b.createBacking(newCap)
	if err != nil {
		return err
	}
	next := emptyDescriptorSet()
	if err := next.assign(b.mgr.Descriptors, b.kinds, backing, newCap, b.stride, b.label); err != nil {
		b.mgr.Deletion.MarkForDelete(deletion.Buffer(b.mgr.Device, backing))
		return fmt.Errorf("%w: buffer %s: reassign descriptors: %w", ErrGrowFailed, b.label, err)
	}
	if err := b.mgr.Uploads.QueueCopyAndDiscard(backing, b.backing, oldCap); err != nil {
		next.retire(b.mgr.Descriptors)
		b.mgr.Deletion.MarkForDelete(deletion.Buffer(b.mgr.Device, backing))
		return fmt.Errorf("buffer %s: queue copy: %w", b.label, err)
	}

	// Nothing below fails: the buffer switches over as a unit.
	b.backing = backing
	b.alloc.Grow(newCap - oldCap)
	b.growths++
	b.descriptors.retire(b.mgr.Descriptors)
	b.descriptors = next

	logging.Logger().Debug("buffer: grown",
		"label", b.label, "id", b.ID(), "from", oldCap, "to", newCap, "growths", b.growths)

	if b.onResized != nil {
		b.onResized(b.ID(), b.stride, newCap, b)
	}
	return nil
}

// check validates the allocator in debug builds.
func (b *DynamicBuffer) check() {
	if !debugChecks {
		return
	}
	if err := b.alloc.Validate(); err != nil {
		panic(fmt.Sprintf("buffer %s: %v", b.label, err))
	}
}

// Destroy unregisters the buffer and retires its backing and descriptor
// slots through the deletion manager. Outstanding views become stale.
// Destroy is idempotent.
func (b *DynamicBuffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.mgr.Registry.removeDynamic(b.key)
	b.descriptors.retire(b.mgr.Descriptors)
	b.mgr.Deletion.MarkForDelete(deletion.Buffer(b.mgr.Device, b.backing))
	b.live = make(map[uint64]uint64)

	logging.Logger().Debug("buffer: destroyed", "label", b.label, "id", b.ID())
}
