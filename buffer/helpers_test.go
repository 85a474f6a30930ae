package buffer

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gogpu/gpures/backend/software"
	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/descriptor"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/upload"
)

const testFrames = 2

type harness struct {
	dev *software.Device
	mgr Managers
}

func newHarness(t testing.TB, opts ...software.Option) *harness {
	t.Helper()
	dev := software.New(opts...)
	dm := deletion.New(testFrames)
	h := &harness{
		dev: dev,
		mgr: Managers{
			Device:      dev,
			Uploads:     upload.New(dev, dm),
			Deletion:    dm,
			Descriptors: descriptor.NewHeap(dev, dm, 64),
			Registry:    NewRegistry(),
		},
	}
	t.Cleanup(func() {
		h.mgr.Uploads.Close()
		h.mgr.Descriptors.Close()
		dm.Flush()
		dev.Close()
	})
	return h
}

// shrinkHeap replaces the descriptor heap with one of capacity n.
func (h *harness) shrinkHeap(n uint32) {
	h.mgr.Descriptors.Close()
	h.mgr.Descriptors = descriptor.NewHeap(h.dev, h.mgr.Deletion, n)
}

// endFrame flushes uploads and advances the deletion ring.
func (h *harness) endFrame(t testing.TB) {
	t.Helper()
	if err := h.mgr.Uploads.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	h.mgr.Deletion.ProcessDeletions()
}

func (h *harness) read(t testing.TB, id gpucore.BufferID, off, size uint64) []byte {
	t.Helper()
	got, err := h.dev.ReadBuffer(id, off, size)
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	return got
}

func (h *harness) readUints(t testing.TB, id gpucore.BufferID, n int) []uint32 {
	t.Helper()
	raw := h.read(t, id, 0, uint64(n)*4)
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out
}

// element returns a 16-byte payload filled with b.
func element(b byte) []byte {
	return bytes.Repeat([]byte{b}, 16)
}
