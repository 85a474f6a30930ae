package buffer

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/gogpu/gpures/backend/software"
	"github.com/gogpu/gpures/descriptor"
	"github.com/gogpu/gpures/gpucore"
)

func newSorted(t *testing.T, h *harness, cfg SortedConfig) *SortedUintBuffer {
	t.Helper()
	b, err := NewSortedUintBuffer(h.mgr, cfg)
	if err != nil {
		t.Fatalf("NewSortedUintBuffer() error = %v", err)
	}
	return b
}

func mustInsert(t *testing.T, b *SortedUintBuffer, x uint32) bool {
	t.Helper()
	ok, err := b.Insert(x)
	if err != nil {
		t.Fatalf("Insert(%d) error = %v", x, err)
	}
	return ok
}

func TestSortedInsert(t *testing.T) {
	h := newHarness(t)
	b := newSorted(t, h, SortedConfig{InitialCapacity: 4})

	inserts := []struct {
		x    uint32
		want bool
	}{
		{10, true},
		{5, true},
		{20, true},
		{5, false},
	}
	for _, tt := range inserts {
		if got := mustInsert(t, b, tt.x); got != tt.want {
			t.Errorf("Insert(%d) = %v, want %v", tt.x, got, tt.want)
		}
	}

	if got, want := b.Values(), []uint32{5, 10, 20}; !slices.Equal(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if got := b.EarliestModifiedIndex(); got != 0 {
		t.Errorf("EarliestModifiedIndex() = %d, want 0", got)
	}

	h.endFrame(t)
	if got := h.readUints(t, b.Backing(), 3); !slices.Equal(got, []uint32{5, 10, 20}) {
		t.Errorf("GPU contents = %v, want [5 10 20]", got)
	}
}

func TestSortedRemove(t *testing.T) {
	tests := []struct {
		name      string
		policy    TrailingSlotPolicy
		wantSlots []uint32
	}{
		{"zero trailing slot", ZeroTrailingSlot, []uint32{1, 3, 0, 0}},
		{"keep trailing slot", KeepTrailingSlot, []uint32{1, 3, 3, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := newSorted(t, h, SortedConfig{InitialCapacity: 4, TrailingSlot: tt.policy})
			for _, x := range []uint32{1, 2, 3} {
				mustInsert(t, b, x)
			}
			h.endFrame(t)
			b.AcknowledgeSync()

			removed, err := b.Remove(2)
			if err != nil || !removed {
				t.Fatalf("Remove(2) = %v, %v, want true, nil", removed, err)
			}
			if got := b.EarliestModifiedIndex(); got != 1 {
				t.Errorf("EarliestModifiedIndex() = %d, want 1", got)
			}
			h.endFrame(t)
			if got := h.readUints(t, b.Backing(), 4); !slices.Equal(got, tt.wantSlots) {
				t.Errorf("GPU slots = %v, want %v", got, tt.wantSlots)
			}

			removed, err = b.Remove(7)
			if err != nil || removed {
				t.Errorf("Remove(absent) = %v, %v, want false, nil", removed, err)
			}
		})
	}
}

func TestSortedEarliestModified(t *testing.T) {
	h := newHarness(t)
	b := newSorted(t, h, SortedConfig{})

	if got := b.EarliestModifiedIndex(); got != NoModification {
		t.Fatalf("EarliestModifiedIndex() on new buffer = %d, want NoModification", got)
	}
	for _, x := range []uint32{10, 20, 30} {
		mustInsert(t, b, x)
	}
	b.AcknowledgeSync()

	steps := []struct {
		insert uint32
		want   int
	}{
		{40, 3},
		{25, 2},
		{50, 2}, // never increases before an acknowledgement
		{5, 0},
	}
	for _, s := range steps {
		mustInsert(t, b, s.insert)
		if got := b.EarliestModifiedIndex(); got != s.want {
			t.Errorf("after Insert(%d) EarliestModifiedIndex() = %d, want %d", s.insert, got, s.want)
		}
	}

	// Duplicates and absent removals leave the mark alone.
	b.AcknowledgeSync()
	mustInsert(t, b, 25)
	_, _ = b.Remove(99)
	if got := b.EarliestModifiedIndex(); got != NoModification {
		t.Errorf("EarliestModifiedIndex() after no-op changes = %d, want NoModification", got)
	}
}

func TestSortedGrowth(t *testing.T) {
	h := newHarness(t)
	b := newSorted(t, h, SortedConfig{InitialCapacity: 2, EnableUAV: true})

	var calls []int
	b.SetOnResized(func(id uint64, newCapacity int, buf *SortedUintBuffer) {
		if id != b.ID() || buf != b {
			t.Errorf("resize callback id = %d, want %d", id, b.ID())
		}
		calls = append(calls, newCapacity)
	})
	oldSRV := b.DescriptorIndex(gpucore.ViewKindSRV)

	mustInsert(t, b, 3)
	mustInsert(t, b, 1)
	h.endFrame(t) // [1 3] lives only in the first backing
	mustInsert(t, b, 2)
	for x := uint32(10); x < 15; x++ {
		mustInsert(t, b, x)
	}

	if !slices.Equal(calls, []int{4, 8}) {
		t.Errorf("resize callbacks = %v, want [4 8]", calls)
	}
	if b.Capacity() != 8 || b.Growths() != 2 {
		t.Errorf("Capacity()/Growths() = %d/%d, want 8/2", b.Capacity(), b.Growths())
	}
	if b.DescriptorIndex(gpucore.ViewKindSRV) == oldSRV {
		t.Error("SRV index unchanged after growth")
	}

	h.endFrame(t)
	want := []uint32{1, 2, 3, 10, 11, 12, 13, 14}
	if got := h.readUints(t, b.Backing(), 8); !slices.Equal(got, want) {
		t.Errorf("GPU contents = %v, want %v", got, want)
	}
}

func TestSortedMatchesReference(t *testing.T) {
	h := newHarness(t)
	b := newSorted(t, h, SortedConfig{InitialCapacity: 8})
	rng := rand.New(rand.NewSource(3))
	ref := map[uint32]bool{}

	for i := 0; i < 2000; i++ {
		x := uint32(rng.Intn(200))
		if rng.Intn(3) == 0 {
			got, err := b.Remove(x)
			if err != nil {
				t.Fatal(err)
			}
			if got != ref[x] {
				t.Fatalf("op %d: Remove(%d) = %v, want %v", i, x, got, ref[x])
			}
			delete(ref, x)
		} else {
			got := mustInsert(t, b, x)
			if got == ref[x] {
				t.Fatalf("op %d: Insert(%d) = %v, want %v", i, x, got, !ref[x])
			}
			ref[x] = true
		}
		if i%100 == 99 {
			h.endFrame(t)
		}
	}

	want := make([]uint32, 0, len(ref))
	for x := range ref {
		want = append(want, x)
	}
	slices.Sort(want)
	if got := b.Values(); !slices.Equal(got, want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	h.endFrame(t)
	if got := h.readUints(t, b.Backing(), len(want)); !slices.Equal(got, want) {
		t.Errorf("GPU contents diverge from Values()")
	}
}

func TestSortedGrowFailure(t *testing.T) {
	h := newHarness(t, software.WithMaxBufferSize(16))
	b := newSorted(t, h, SortedConfig{InitialCapacity: 4})
	for x := uint32(0); x < 4; x++ {
		mustInsert(t, b, x)
	}

	_, err := b.Insert(100)
	if !errors.Is(err, ErrGrowFailed) {
		t.Fatalf("Insert() past device limit error = %v, want ErrGrowFailed", err)
	}
	if b.Len() != 4 || b.Contains(100) {
		t.Errorf("failed Insert changed the sequence: %v", b.Values())
	}
}

func TestSortedGrowWithFullHeap(t *testing.T) {
	h := newHarness(t)
	h.shrinkHeap(1)
	b := newSorted(t, h, SortedConfig{InitialCapacity: 2})
	mustInsert(t, b, 1)
	mustInsert(t, b, 2)
	srv := b.DescriptorIndex(gpucore.ViewKindSRV)

	_, err := b.Insert(3)
	if !errors.Is(err, ErrGrowFailed) || !errors.Is(err, descriptor.ErrHeapFull) {
		t.Fatalf("Insert() with full heap error = %v, want ErrGrowFailed wrapping ErrHeapFull", err)
	}
	if b.Capacity() != 2 || b.Growths() != 0 || !slices.Equal(b.Values(), []uint32{1, 2}) {
		t.Errorf("failed growth changed the buffer: cap=%d values=%v", b.Capacity(), b.Values())
	}
	if got := b.DescriptorIndex(gpucore.ViewKindSRV); got != srv || !h.mgr.Descriptors.IsLive(got) {
		t.Errorf("SRV = %d, want live slot %d", got, srv)
	}
}

func TestSortedDestroy(t *testing.T) {
	h := newHarness(t)
	b := newSorted(t, h, SortedConfig{})
	mustInsert(t, b, 1)

	b.Destroy()
	b.Destroy()
	if _, err := b.Insert(2); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Insert() after Destroy error = %v, want ErrDestroyed", err)
	}
	if _, err := b.Remove(1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Remove() after Destroy error = %v, want ErrDestroyed", err)
	}
	if n := len(h.mgr.Registry.SortedBuffers()); n != 0 {
		t.Errorf("SortedBuffers() has %d entries, want 0", n)
	}
}

func TestSortedUnsupportedAlignment(t *testing.T) {
	h := newHarness(t, software.WithCopyAlignment(8))
	if _, err := NewSortedUintBuffer(h.mgr, SortedConfig{}); !errors.Is(err, ErrUnsupportedAlignment) {
		t.Errorf("NewSortedUintBuffer() error = %v, want ErrUnsupportedAlignment", err)
	}
}
