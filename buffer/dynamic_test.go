package buffer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpures/backend/software"
	"github.com/gogpu/gpures/descriptor"
	"github.com/gogpu/gpures/gpucore"
)

func newStructured(t *testing.T, h *harness, capacity uint64) *DynamicBuffer {
	t.Helper()
	b, err := NewDynamicBuffer(h.mgr, Config{Label: "test", InitialCapacity: capacity, ElementSize: 16})
	if err != nil {
		t.Fatalf("NewDynamicBuffer() error = %v", err)
	}
	return b
}

func TestFifthAddTriggersSingleGrowth(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)

	var resizes int
	var gotCap uint64
	b.SetOnResized(func(id uint64, stride uint32, newCapacity uint64, buf *DynamicBuffer) {
		resizes++
		gotCap = newCapacity
		if id != b.ID() || stride != 16 || buf != b {
			t.Errorf("resize callback args = (%d, %d, %p), want (%d, 16, %p)", id, stride, buf, b.ID(), b)
		}
	})

	views := make([]View, 5)
	for i := range views {
		v, err := b.Add(element(byte(i + 1)))
		if err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
		views[i] = v
		if want := uint64(i * 16); v.Offset() != want {
			t.Errorf("Add(%d).Offset() = %d, want %d", i, v.Offset(), want)
		}
	}

	if resizes != 1 || b.Growths() != 1 {
		t.Fatalf("resizes = %d, Growths() = %d, want exactly one growth", resizes, b.Growths())
	}
	if gotCap < 80 || b.Capacity() < 80 {
		t.Errorf("capacity after growth = %d, want >= 80", b.Capacity())
	}

	h.endFrame(t)
	for i, v := range views {
		got := h.read(t, b.Backing(), v.Offset(), 16)
		if !bytes.Equal(got, element(byte(i+1))) {
			t.Errorf("element %d = %v, want all %d", i, got, i+1)
		}
	}
}

func TestGrowthPreservesFlushedContent(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)

	for i := 0; i < 4; i++ {
		if _, err := b.Add(element(byte(0xA0 + i))); err != nil {
			t.Fatal(err)
		}
	}
	h.endFrame(t) // first four elements now live only in the old backing
	old := b.Backing()

	if _, err := b.Add(element(0xEE)); err != nil {
		t.Fatal(err)
	}
	if b.Backing() == old {
		t.Fatal("Backing() unchanged after growth")
	}
	h.endFrame(t)

	want := append(append(append(append(element(0xA0), element(0xA1)...), element(0xA2)...), element(0xA3)...), element(0xEE)...)
	if got := h.read(t, b.Backing(), 0, 80); !bytes.Equal(got, want) {
		t.Errorf("grown backing = %v, want %v", got, want)
	}

	// The old backing is retired one frame-latency after the copy was submitted.
	if !h.dev.IsLive(old) {
		t.Fatal("old backing destroyed before frames in flight drained")
	}
	h.endFrame(t)
	if h.dev.IsLive(old) {
		t.Error("old backing still live after frames in flight drained")
	}
}

func TestDescriptorsReassignedOnGrowth(t *testing.T) {
	h := newHarness(t)
	b, err := NewDynamicBuffer(h.mgr, Config{InitialCapacity: 16, ElementSize: 16, EnableUAV: true})
	if err != nil {
		t.Fatal(err)
	}
	srv0 := b.DescriptorIndex(gpucore.ViewKindSRV)
	uav0 := b.DescriptorIndex(gpucore.ViewKindUAV)
	if srv0 == descriptor.InvalidIndex || uav0 == descriptor.InvalidIndex {
		t.Fatalf("initial descriptors = %d/%d, want both assigned", srv0, uav0)
	}
	if got := b.DescriptorIndex(gpucore.ViewKindCBV); got != descriptor.InvalidIndex {
		t.Errorf("DescriptorIndex(CBV) = %d, want InvalidIndex", got)
	}

	var published uint32
	b.SetOnResized(func(_ uint64, _ uint32, _ uint64, buf *DynamicBuffer) {
		published = buf.DescriptorIndex(gpucore.ViewKindSRV)
	})
	_, _ = b.Add(element(1))
	_, _ = b.Add(element(2)) // grows

	srv1 := b.DescriptorIndex(gpucore.ViewKindSRV)
	if srv1 == srv0 || srv1 == uav0 {
		t.Errorf("SRV after growth = %d, want a fresh slot (old %d/%d)", srv1, srv0, uav0)
	}
	if published != srv1 {
		t.Errorf("callback saw SRV %d, want %d", published, srv1)
	}
	if h.mgr.Descriptors.IsLive(srv0) {
		t.Error("old SRV slot still live after growth")
	}
	view, ok := h.mgr.Descriptors.View(srv1)
	if !ok {
		t.Fatal("new SRV slot has no view")
	}
	desc, _ := h.dev.View(view)
	if desc.Buffer != b.Backing() || desc.Size != b.Capacity() || desc.Stride != 16 {
		t.Errorf("new SRV view = %+v, want whole new backing with stride 16", desc)
	}
}

func TestRemoveReusesHole(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)

	views := make([]View, 3)
	for i := range views {
		views[i], _ = b.Add(element(byte(i)))
	}
	if err := b.Remove(views[1]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if b.Len() != 2 || b.Size() != 32 {
		t.Errorf("Len()/Size() = %d/%d, want 2/32", b.Len(), b.Size())
	}

	v, err := b.Add(element(9))
	if err != nil {
		t.Fatal(err)
	}
	if v.Offset() != 16 {
		t.Errorf("Add() after Remove offset = %d, want 16 (first hole)", v.Offset())
	}
	if v.Index() != 1 {
		t.Errorf("Index() = %d, want 1", v.Index())
	}
}

func TestRemovedViewIsStale(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)
	old, _ := b.Add(element(1))
	_ = b.Remove(old)
	reused, _ := b.Add(element(2)) // same offset, new owner

	if err := b.UpdateView(old, element(3)); !errors.Is(err, ErrStaleView) {
		t.Errorf("UpdateView(removed) error = %v, want ErrStaleView", err)
	}
	if err := b.UpdateView(reused, element(4)); err != nil {
		t.Errorf("UpdateView(reused) error = %v", err)
	}
}

func TestStaleViewAfterSerialPasses32Bits(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)
	old, _ := b.Add(element(1))
	_ = b.Remove(old)

	b.serial = 1 << 32
	reused, _ := b.Add(element(2))
	if reused.Offset() != old.Offset() {
		t.Fatalf("reused offset = %d, want %d", reused.Offset(), old.Offset())
	}
	if err := b.UpdateView(old, element(3)); !errors.Is(err, ErrStaleView) {
		t.Errorf("UpdateView(removed) error = %v, want ErrStaleView", err)
	}
}

func TestUpdateView(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)
	v, _ := b.Add(element(0xFF))
	h.endFrame(t)

	if err := b.UpdateView(v, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("UpdateView() error = %v", err)
	}
	h.endFrame(t)
	want := append([]byte{1, 2, 3, 4}, make([]byte, 12)...)
	if got := h.read(t, b.Backing(), v.Offset(), 16); !bytes.Equal(got, want) {
		t.Errorf("after UpdateView = %v, want %v", got, want)
	}

	if err := b.UpdateView(v, make([]byte, 17)); !errors.Is(err, ErrDataTooLarge) {
		t.Errorf("UpdateView(17 bytes) error = %v, want ErrDataTooLarge", err)
	}
}

func TestForeignAndDestroyedViews(t *testing.T) {
	h := newHarness(t)
	a := newStructured(t, h, 64)
	b := newStructured(t, h, 64)
	va, _ := a.Add(element(1))

	if err := b.UpdateView(va, element(2)); !errors.Is(err, ErrForeignView) {
		t.Errorf("UpdateView(foreign) error = %v, want ErrForeignView", err)
	}
	if err := b.Remove(va); !errors.Is(err, ErrForeignView) {
		t.Errorf("Remove(foreign) error = %v, want ErrForeignView", err)
	}
	if got, err := h.mgr.Registry.Resolve(va); err != nil || got != a {
		t.Errorf("Resolve() = %p, %v, want %p", got, err, a)
	}

	a.Destroy()
	a.Destroy() // idempotent
	if _, err := h.mgr.Registry.Resolve(va); !errors.Is(err, ErrStaleView) {
		t.Errorf("Resolve() after Destroy error = %v, want ErrStaleView", err)
	}
	if err := b.Remove(va); !errors.Is(err, ErrStaleView) {
		t.Errorf("Remove(view of destroyed buffer) error = %v, want ErrStaleView", err)
	}
	if err := a.Remove(va); !errors.Is(err, ErrStaleView) {
		t.Errorf("destroyed.Remove() error = %v, want ErrStaleView", err)
	}
	if _, err := a.Add(element(1)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("destroyed.Add() error = %v, want ErrDestroyed", err)
	}
	if err := b.Remove(View{}); !errors.Is(err, ErrStaleView) {
		t.Errorf("Remove(View{}) error = %v, want ErrStaleView", err)
	}
}

func TestConstructionErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		mgr     Managers
		cfg     Config
		wantErr error
	}{
		{"zero element", h.mgr, Config{ElementSize: 0}, ErrZeroElement},
		{"unaligned element", h.mgr, Config{ElementSize: 6}, ErrUnalignedElement},
		{"missing managers", Managers{Device: h.dev}, Config{ElementSize: 16}, ErrIncompleteManagers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDynamicBuffer(tt.mgr, tt.cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewDynamicBuffer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRawBuffer(t *testing.T) {
	h := newHarness(t)
	b, err := NewDynamicBuffer(h.mgr, Config{Raw: true, InitialCapacity: 30})
	if err != nil {
		t.Fatal(err)
	}
	if b.Capacity() != 32 {
		t.Errorf("Capacity() = %d, want 32 (aligned)", b.Capacity())
	}

	v1, _ := b.Add([]byte{1, 2, 3, 4, 5})
	v2, _ := b.Add([]byte{6, 7, 8})
	if v1.Size() != 8 || v2.Offset() != 8 || v2.Size() != 4 {
		t.Errorf("raw views = %s %s, want [0,8) and [8,12)", v1, v2)
	}
	if v1.ElementSize() != 0 || v2.Index() != 8 {
		t.Errorf("raw view stride/index = %d/%d, want 0/8", v1.ElementSize(), v2.Index())
	}
	if _, err := b.Add(nil); !errors.Is(err, ErrZeroElement) {
		t.Errorf("Add(nil) error = %v, want ErrZeroElement", err)
	}

	padded, err := b.AddSized([]byte{9}, 12)
	if err != nil {
		t.Fatal(err)
	}
	h.endFrame(t)
	want := []byte{9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if got := h.read(t, b.Backing(), padded.Offset(), 12); !bytes.Equal(got, want) {
		t.Errorf("AddSized payload = %v, want %v", got, want)
	}
}

func TestGrowFailureLeavesBufferIntact(t *testing.T) {
	h := newHarness(t, software.WithMaxBufferSize(128))
	b := newStructured(t, h, 64)

	for i := 0; i < 8; i++ {
		if _, err := b.Add(element(byte(i))); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	backing := b.Backing()

	_, err := b.Add(element(9))
	if !errors.Is(err, ErrGrowFailed) || !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Fatalf("Add() past device limit error = %v, want ErrGrowFailed wrapping ErrOutOfMemory", err)
	}
	if b.Capacity() != 128 || b.Len() != 8 || b.Backing() != backing {
		t.Errorf("buffer changed by failed growth: cap=%d len=%d", b.Capacity(), b.Len())
	}
}

func TestGrowWithFullHeapLeavesBufferIntact(t *testing.T) {
	h := newHarness(t)
	h.shrinkHeap(1)
	b := newStructured(t, h, 16)

	var resized bool
	b.SetOnResized(func(uint64, uint32, uint64, *DynamicBuffer) { resized = true })

	first, err := b.Add(element(1))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	srv := b.DescriptorIndex(gpucore.ViewKindSRV)
	backing := b.Backing()

	_, err = b.Add(element(2))
	if !errors.Is(err, ErrGrowFailed) || !errors.Is(err, descriptor.ErrHeapFull) {
		t.Fatalf("Add() with full heap error = %v, want ErrGrowFailed wrapping ErrHeapFull", err)
	}
	if b.Capacity() != 16 || b.Growths() != 0 || b.Len() != 1 || b.Backing() != backing {
		t.Errorf("buffer changed by failed growth: cap=%d growths=%d len=%d", b.Capacity(), b.Growths(), b.Len())
	}
	if resized {
		t.Error("resize callback fired for a failed growth")
	}

	for i := 0; i <= testFrames; i++ {
		h.endFrame(t)
	}
	if got := b.DescriptorIndex(gpucore.ViewKindSRV); got != srv || !h.mgr.Descriptors.IsLive(got) {
		t.Errorf("SRV = %d (live %v), want live slot %d", got, h.mgr.Descriptors.IsLive(got), srv)
	}
	if got := h.read(t, b.Backing(), first.Offset(), 16); !bytes.Equal(got, element(1)) {
		t.Errorf("first element = %v, want %v", got, element(1))
	}
	if st := h.dev.Stats(); st.DanglingViews != 0 {
		t.Errorf("DanglingViews = %d, want 0", st.DanglingViews)
	}
}

func TestEnsureCapacity(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)

	if err := b.EnsureCapacity(32); err != nil || b.Growths() != 0 {
		t.Errorf("EnsureCapacity(32) = %v with %d growths, want no-op", err, b.Growths())
	}
	if err := b.EnsureCapacity(200); err != nil {
		t.Fatalf("EnsureCapacity(200) error = %v", err)
	}
	// max(64, 200) + 64
	if b.Capacity() != 264 {
		t.Errorf("Capacity() = %d, want 264", b.Capacity())
	}
	if got := b.Blocks(); len(got) != 1 || !got[0].Free || got[0].Size != 264 {
		t.Errorf("Blocks() = %v, want one free block of 264", got)
	}
}

func TestDestroyRetiresBacking(t *testing.T) {
	h := newHarness(t)
	b := newStructured(t, h, 64)
	backing := b.Backing()
	srv := b.DescriptorIndex(gpucore.ViewKindSRV)

	b.Destroy()
	if h.mgr.Registry.Len() != 0 {
		t.Errorf("Registry.Len() = %d, want 0", h.mgr.Registry.Len())
	}
	if h.mgr.Descriptors.IsLive(srv) {
		t.Error("SRV still live after Destroy")
	}
	for i := 0; i < testFrames; i++ {
		if !h.dev.IsLive(backing) {
			t.Fatalf("backing destroyed after %d frames", i)
		}
		h.endFrame(t)
	}
	if h.dev.IsLive(backing) {
		t.Error("backing still live after frames in flight drained")
	}
	if got := h.dev.Stats().DanglingViews; got != 0 {
		t.Errorf("DanglingViews = %d, want 0 (views released before backing)", got)
	}
}

func BenchmarkAddRemove(b *testing.B) {
	h := newHarness(b)
	buf, _ := NewDynamicBuffer(h.mgr, Config{InitialCapacity: 1 << 16, ElementSize: 16})
	payload := element(7)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v, err := buf.Add(payload)
		if err != nil {
			b.Fatal(err)
		}
		_ = buf.Remove(v)
		if i%1024 == 0 {
			_ = h.mgr.Uploads.Flush()
		}
	}
}
