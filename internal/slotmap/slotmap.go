// Package slotmap provides a generational arena: values live in stable
// slots and are addressed by {index, generation} keys, so a key that
// outlives its value is detected instead of aliasing a newer value.
package slotmap

// Key addresses a value in a Map. The zero Key is never valid.
type Key struct {
	index      uint32
	generation uint32
}

// Index returns the slot index.
func (k Key) Index() uint32 { return k.index }

// Generation returns the slot generation the key was issued for.
func (k Key) Generation() uint32 { return k.generation }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.generation == 0 }

// Uint64 packs the key into a single integer identifier.
func (k Key) Uint64() uint64 { return uint64(k.generation)<<32 | uint64(k.index) }

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Map is a generational arena. It is not safe for concurrent use.
type Map[T any] struct {
	slots []slot[T]
	free  []uint32
	len   int
}

// New creates an empty map.
func New[T any]() *Map[T] {
	return &Map[T]{}
}

// Insert stores v and returns its key.
func (m *Map[T]) Insert(v T) Key {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots)) //nolint:gosec // slot count bounded by live objects
		m.slots = append(m.slots, slot[T]{})
	}

	s := &m.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1 // zero is reserved for the invalid key
	}
	s.value = v
	s.live = true
	m.len++
	return Key{index: idx, generation: s.generation}
}

// Get returns the value for k and whether k is still live.
func (m *Map[T]) Get(k Key) (T, bool) {
	if !m.valid(k) {
		var zero T
		return zero, false
	}
	return m.slots[k.index].value, true
}

// Contains reports whether k is live.
func (m *Map[T]) Contains(k Key) bool { return m.valid(k) }

// Remove deletes the value for k. It returns false if k was stale.
func (m *Map[T]) Remove(k Key) bool {
	if !m.valid(k) {
		return false
	}
	s := &m.slots[k.index]
	var zero T
	s.value = zero
	s.live = false
	m.free = append(m.free, k.index)
	m.len--
	return true
}

// Len returns the number of live values.
func (m *Map[T]) Len() int { return m.len }

// Each calls fn for every live value in slot order.
func (m *Map[T]) Each(fn func(Key, T)) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.live {
			fn(Key{index: uint32(i), generation: s.generation}, s.value) //nolint:gosec // bounded by slot count
		}
	}
}

func (m *Map[T]) valid(k Key) bool {
	if k.IsZero() || int(k.index) >= len(m.slots) {
		return false
	}
	s := &m.slots[k.index]
	return s.live && s.generation == k.generation
}
