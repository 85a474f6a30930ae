package buffer

import (
	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/descriptor"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/upload"
)

// Managers bundles the per-session collaborators a buffer works with.
// Descriptors may be nil, in which case no descriptor slots are assigned.
type Managers struct {
	Device      gpucore.Device
	Uploads     *upload.Manager
	Deletion    *deletion.Manager
	Descriptors *descriptor.Heap
	Registry    *Registry
}

func (m *Managers) validate() error {
	if m.Device == nil || m.Uploads == nil || m.Deletion == nil || m.Registry == nil {
		return ErrIncompleteManagers
	}
	return nil
}

// descriptorSet holds one slot index per view kind.
type descriptorSet [gpucore.NumViewKinds]uint32

func emptyDescriptorSet() descriptorSet {
	var s descriptorSet
	for i := range s {
		s[i] = descriptor.InvalidIndex
	}
	return s
}

// assign allocates a slot per kind over the whole backing. On failure the
// slots already taken are retired and the set is left empty.
func (s *descriptorSet) assign(h *descriptor.Heap, kinds []gpucore.ViewKind, backing gpucore.BufferID, size uint64, stride uint32, label string) error {
	*s = emptyDescriptorSet()
	if h == nil {
		return nil
	}
	for _, kind := range kinds {
		idx, err := h.Allocate(gpucore.BufferViewDescriptor{
			Kind:   kind,
			Buffer: backing,
			Size:   size,
			Stride: stride,
			Label:  label,
		})
		if err != nil {
			s.retire(h)
			return err
		}
		s[kind] = idx
	}
	return nil
}

// retire hands every assigned slot back to the heap.
func (s *descriptorSet) retire(h *descriptor.Heap) {
	if h == nil {
		return
	}
	for kind, idx := range s {
		if idx != descriptor.InvalidIndex {
			_ = h.Retire(idx)
			s[kind] = descriptor.InvalidIndex
		}
	}
}

func (s *descriptorSet) get(kind gpucore.ViewKind) uint32 {
	if kind >= gpucore.NumViewKinds {
		return descriptor.InvalidIndex
	}
	return s[kind]
}

// viewKinds lists the descriptor kinds a buffer publishes.
func viewKinds(uav, cbv bool) []gpucore.ViewKind {
	kinds := []gpucore.ViewKind{gpucore.ViewKindSRV}
	if uav {
		kinds = append(kinds, gpucore.ViewKindUAV)
	}
	if cbv {
		kinds = append(kinds, gpucore.ViewKindCBV)
	}
	return kinds
}

// backingUsage returns the usage flags of a backing buffer.
func backingUsage(extra gpucore.BufferUsage, cbv bool) gpucore.BufferUsage {
	usage := gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst | extra
	if cbv {
		usage |= gpucore.BufferUsageUniform
	}
	return usage
}
