package deletion

import (
	"sync"
	"testing"

	"github.com/gogpu/gpures/backend/software"
	"github.com/gogpu/gpures/gpucore"
)

type counter struct{ released int }

func (c *counter) Release() { c.released++ }

func TestReleaseLatency(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		m := New(n)
		// Mark one object in each of the first few frames and record when
		// each one is released.
		const frames = 12
		objs := make([]*counter, frames)
		releasedAt := make([]int, frames)
		for i := range releasedAt {
			releasedAt[i] = -1
		}

		for frame := 0; frame < frames; frame++ {
			objs[frame] = &counter{}
			m.MarkForDelete(objs[frame])

			m.ProcessDeletions() // boundary into frame+1
			for i := 0; i <= frame; i++ {
				if objs[i].released > 0 && releasedAt[i] < 0 {
					releasedAt[i] = frame + 1
				}
			}
		}

		for i := 0; i+n < frames; i++ {
			if releasedAt[i] != i+n {
				t.Errorf("N=%d: object marked at frame %d released at %d, want %d", n, i, releasedAt[i], i+n)
			}
			if objs[i].released != 1 {
				t.Errorf("N=%d: object %d released %d times, want 1", n, i, objs[i].released)
			}
		}
	}
}

func TestNotReleasedEarly(t *testing.T) {
	m := New(3)
	c := &counter{}
	m.MarkForDelete(c)

	for i := 0; i < 2; i++ {
		if got := m.ProcessDeletions(); got != 0 {
			t.Fatalf("ProcessDeletions() #%d = %d, want 0", i+1, got)
		}
	}
	if c.released != 0 {
		t.Fatal("object released before 3 frame boundaries")
	}
	if got := m.ProcessDeletions(); got != 1 {
		t.Errorf("ProcessDeletions() #3 = %d, want 1", got)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
	if m.Frame() != 3 {
		t.Errorf("Frame() = %d, want 3", m.Frame())
	}
}

func TestMarkingOrderPreserved(t *testing.T) {
	m := New(1)
	var order []int
	for i := 0; i < 4; i++ {
		m.MarkFunc(func() { order = append(order, i) })
	}
	m.ProcessDeletions()
	for i, v := range order {
		if v != i {
			t.Fatalf("release order = %v, want ascending", order)
		}
	}
}

func TestFlush(t *testing.T) {
	m := New(3)
	var order []int
	m.MarkFunc(func() { order = append(order, 0) })
	m.ProcessDeletions()
	m.MarkFunc(func() { order = append(order, 1) })
	m.ProcessDeletions()
	m.MarkFunc(func() { order = append(order, 2) })

	if got := m.Flush(); got != 3 {
		t.Errorf("Flush() = %d, want 3", got)
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("Flush() order = %v, want [0 1 2]", order)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() after Flush = %d, want 0", m.Pending())
	}
}

func TestReleaserMayMark(t *testing.T) {
	m := New(1)
	inner := &counter{}
	m.MarkFunc(func() { m.MarkForDelete(inner) })

	m.ProcessDeletions()
	if inner.released != 0 {
		t.Fatal("object marked during release was released in the same pass")
	}
	m.ProcessDeletions()
	if inner.released != 1 {
		t.Errorf("inner released %d times, want 1", inner.released)
	}
}

func TestNilIgnored(t *testing.T) {
	m := New(0)
	m.MarkForDelete(nil)
	m.MarkFunc(nil)
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
	if m.FramesInFlight() != 1 {
		t.Errorf("FramesInFlight() = %d, want 1", m.FramesInFlight())
	}
}

func TestBufferReleaser(t *testing.T) {
	dev := software.New()
	id, err := dev.CreateBuffer(&gpucore.BufferDescriptor{Size: 16, Usage: gpucore.BufferUsageCopyDst})
	if err != nil {
		t.Fatal(err)
	}
	m := New(2)
	m.MarkForDelete(Buffer(dev, id))

	m.ProcessDeletions()
	if !dev.IsLive(id) {
		t.Fatal("buffer destroyed after 1 of 2 frames")
	}
	m.ProcessDeletions()
	if dev.IsLive(id) {
		t.Error("buffer still live after 2 frames")
	}
}

func TestConcurrentMark(t *testing.T) {
	m := New(2)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.MarkFunc(func() {})
			}
		}()
	}
	wg.Wait()
	if got := m.Flush(); got != 800 {
		t.Errorf("Flush() = %d, want 800", got)
	}
}
