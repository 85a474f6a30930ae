// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package deletion postpones the destruction of GPU objects until no
// in-flight frame can still reference them.
//
// The Manager keeps one slot per frame in flight. Objects marked during
// frame T go into the slot of T; ProcessDeletions, called once at every
// frame boundary, advances the frame and releases the slot it lands on.
// An object marked during frame T is therefore released at the start of
// frame T+N, where N is the number of frames in flight.
//
//	dm := deletion.New(3)
//	dm.MarkForDelete(deletion.Buffer(dev, oldBacking))
//	...
//	dm.ProcessDeletions() // at every frame boundary
package deletion

import (
	"sync"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// Releaser is an object whose destruction can be deferred.
type Releaser interface {
	Release()
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() { f() }

// Buffer returns a Releaser that destroys a device buffer.
func Buffer(dev gpucore.Device, id gpucore.BufferID) Releaser {
	return ReleaseFunc(func() { dev.DestroyBuffer(id) })
}

// View returns a Releaser that destroys a device buffer view.
func View(dev gpucore.Device, id gpucore.ViewID) Releaser {
	return ReleaseFunc(func() { dev.DestroyBufferView(id) })
}

// Manager is a frame-latency deferred deletion queue.
//
// Thread Safety: Manager is safe for concurrent use. Releasers run on the
// goroutine calling ProcessDeletions or Flush, outside the internal lock,
// so a Releaser may mark further objects.
type Manager struct {
	mu      sync.Mutex
	slots   [][]Releaser
	frame   uint64
	pending int
}

// New creates a manager for framesInFlight frames. Values below 1 are
// treated as 1.
func New(framesInFlight int) *Manager {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	return &Manager{slots: make([][]Releaser, framesInFlight)}
}

// FramesInFlight returns the deletion latency in frames.
func (m *Manager) FramesInFlight() int {
	return len(m.slots)
}

// Frame returns the current frame number, starting at 0.
func (m *Manager) Frame() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Pending returns the number of objects waiting to be released.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// MarkForDelete schedules r for release N frame boundaries from now.
// A nil r is ignored.
func (m *Manager) MarkForDelete(r Releaser) {
	if r == nil {
		return
	}
	m.mu.Lock()
	i := m.frame % uint64(len(m.slots))
	m.slots[i] = append(m.slots[i], r)
	m.pending++
	m.mu.Unlock()
}

// MarkFunc schedules fn like MarkForDelete.
func (m *Manager) MarkFunc(fn func()) {
	if fn == nil {
		return
	}
	m.MarkForDelete(ReleaseFunc(fn))
}

// ProcessDeletions marks a frame boundary. It advances the frame counter
// and releases everything marked N frames ago, in marking order.
// It returns the number of objects released.
func (m *Manager) ProcessDeletions() int {
	m.mu.Lock()
	m.frame++
	i := m.frame % uint64(len(m.slots))
	due := m.slots[i]
	m.slots[i] = nil
	m.pending -= len(due)
	frame := m.frame
	m.mu.Unlock()

	release(due)
	if len(due) > 0 {
		logging.Logger().Debug("deletion: released deferred objects", "frame", frame, "count", len(due))
	}
	return len(due)
}

// Flush releases every pending object regardless of age, oldest first.
// Call it only once the GPU is idle, typically at shutdown.
func (m *Manager) Flush() int {
	m.mu.Lock()
	n := len(m.slots)
	var due []Releaser
	for k := 1; k <= n; k++ {
		i := (m.frame + uint64(k)) % uint64(n)
		due = append(due, m.slots[i]...)
		m.slots[i] = nil
	}
	m.pending = 0
	m.mu.Unlock()

	release(due)
	return len(due)
}

func release(due []Releaser) {
	for _, r := range due {
		r.Release()
	}
}
