// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor assigns stable integer descriptor slots to buffer views.
//
// A Heap hands out indices into a bindless descriptor table. Each live
// slot owns one backend view. Retired slots go through the deletion
// manager: the view is destroyed and the index becomes reusable only
// after the frames in flight have drained, so a shader running an older
// frame never sees a slot that was reassigned underneath it.
package descriptor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// InvalidIndex marks an absent descriptor slot.
const InvalidIndex = ^uint32(0)

// Heap errors.
var (
	// ErrHeapFull is returned when every slot is live or retiring.
	ErrHeapFull = errors.New("descriptor: heap full")

	// ErrSlotNotLive is returned when retiring a slot that is not live.
	ErrSlotNotLive = errors.New("descriptor: slot not live")

	// ErrHeapClosed is returned after Close.
	ErrHeapClosed = errors.New("descriptor: heap closed")
)

type slotState uint8

const (
	slotFree slotState = iota
	slotLive
	slotRetiring
)

type slot struct {
	state slotState
	kind  gpucore.ViewKind
	view  gpucore.ViewID
}

// Stats reports heap occupancy.
type Stats struct {
	Capacity  uint32
	Live      int
	Retiring  int
	HighWater uint32
}

// Heap is a fixed-capacity table of descriptor slots.
//
// Thread Safety: Heap is safe for concurrent use.
type Heap struct {
	mu       sync.Mutex
	dev      gpucore.Device
	deletion *deletion.Manager
	capacity uint32

	slots    []slot   // indices below the bump cursor
	free     []uint32 // expired slots in retirement order
	live     int
	retiring int
	closed   bool
}

// NewHeap creates a heap with capacity slots.
func NewHeap(dev gpucore.Device, dm *deletion.Manager, capacity uint32) *Heap {
	if capacity == InvalidIndex {
		capacity--
	}
	return &Heap{dev: dev, deletion: dm, capacity: capacity}
}

// Capacity returns the number of slots.
func (h *Heap) Capacity() uint32 { return h.capacity }

// Allocate creates a view for desc and assigns it a slot. Expired slots are
// reused first, oldest retirement first; otherwise the next unused index
// is taken.
func (h *Heap) Allocate(desc gpucore.BufferViewDescriptor) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return InvalidIndex, ErrHeapClosed
	}
	if len(h.free) == 0 && uint32(len(h.slots)) >= h.capacity {
		return InvalidIndex, fmt.Errorf("%w: %d live, %d retiring of %d",
			ErrHeapFull, h.live, h.retiring, h.capacity)
	}

	view, err := h.dev.CreateBufferView(&desc)
	if err != nil {
		return InvalidIndex, fmt.Errorf("descriptor: create %s view: %w", desc.Kind, err)
	}

	var index uint32
	if len(h.free) > 0 {
		index = h.free[0]
		h.free = h.free[1:]
	} else {
		index = uint32(len(h.slots))
		h.slots = append(h.slots, slot{})
	}
	h.slots[index] = slot{state: slotLive, kind: desc.Kind, view: view}
	h.live++
	return index, nil
}

// Retire releases a live slot. The view is destroyed and the index becomes
// reusable once the deletion manager latency has elapsed.
func (h *Heap) Retire(index uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if index >= uint32(len(h.slots)) || h.slots[index].state != slotLive {
		return fmt.Errorf("%w: %d", ErrSlotNotLive, index)
	}
	view := h.slots[index].view
	h.slots[index].state = slotRetiring
	h.live--
	h.retiring++

	h.deletion.MarkFunc(func() {
		h.dev.DestroyBufferView(view)
		h.expire(index)
	})
	return nil
}

// expire moves a retiring slot to the free list.
func (h *Heap) expire(index uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.slots[index].state != slotRetiring {
		return
	}
	h.slots[index] = slot{}
	h.retiring--
	h.free = append(h.free, index)
}

// View returns the backend view of a live slot.
func (h *Heap) View(index uint32) (gpucore.ViewID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.slots)) || h.slots[index].state != slotLive {
		return gpucore.InvalidID, false
	}
	return h.slots[index].view, true
}

// Kind returns the view kind of a live slot.
func (h *Heap) Kind(index uint32) (gpucore.ViewKind, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.slots)) || h.slots[index].state != slotLive {
		return 0, false
	}
	return h.slots[index].kind, true
}

// IsLive reports whether index is a live slot.
func (h *Heap) IsLive(index uint32) bool {
	_, ok := h.View(index)
	return ok
}

// Live returns the number of live slots.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// Stats returns heap occupancy.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Capacity:  h.capacity,
		Live:      h.live,
		Retiring:  h.retiring,
		HighWater: uint32(len(h.slots)),
	}
}

// Close destroys the views of all live slots. Retiring views are still
// destroyed by the deletion manager.
func (h *Heap) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var views []gpucore.ViewID
	for i := range h.slots {
		if h.slots[i].state == slotLive {
			views = append(views, h.slots[i].view)
		}
	}
	live := h.live
	h.live = 0
	h.mu.Unlock()

	for _, v := range views {
		h.dev.DestroyBufferView(v)
	}
	if live > 0 {
		logging.Logger().Debug("descriptor: heap closed with live slots", "live", live)
	}
}
