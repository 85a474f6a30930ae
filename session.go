package gpures

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/buffer"
	"github.com/gogpu/gpures/deletion"
	"github.com/gogpu/gpures/descriptor"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/gpures/upload"
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("gpures: session closed")

// Stats is an aggregate snapshot of a Session.
type Stats struct {
	Frame            uint64
	FramesInFlight   int
	DynamicBuffers   int
	SortedBuffers    int
	PendingUploads   int
	PendingDeletions int
	Uploads          upload.Stats
	Descriptors      descriptor.Stats
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("frame=%d buffers=%d+%d pending uploads=%d deletions=%d descriptors=%d/%d (%d retiring) | %s",
		s.Frame, s.DynamicBuffers, s.SortedBuffers, s.PendingUploads, s.PendingDeletions,
		s.Descriptors.Live, s.Descriptors.Capacity, s.Descriptors.Retiring, s.Uploads)
}

// Session wires one device to the managers every buffer needs. It
// replaces process-wide singletons: two sessions never share state.
//
// A Session is driven from the submission goroutine. EndFrame must be
// called exactly once per frame, before the frame's own GPU work is
// submitted.
type Session struct {
	dev      gpucore.Device
	opts     options
	deletion *deletion.Manager
	uploads  *upload.Manager
	heap     *descriptor.Heap
	registry *buffer.Registry
	closed   bool
}

// NewSession creates a session over dev. The device stays owned by the
// caller unless WithDeviceOwnership is given.
func NewSession(dev gpucore.Device, opts ...Option) (*Session, error) {
	if dev == nil {
		return nil, backend.ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dm := deletion.New(o.framesInFlight)
	s := &Session{
		dev:      dev,
		opts:     o,
		deletion: dm,
		uploads: upload.New(dev, dm,
			upload.WithStagingPoolLimit(o.stagingPoolLimit),
			upload.WithParallelPackThreshold(o.parallelThreshold),
		),
		registry: buffer.NewRegistry(),
	}
	if o.descriptorCapacity > 0 {
		s.heap = descriptor.NewHeap(dev, dm, o.descriptorCapacity)
	}

	logging.Logger().Info("gpures: session created",
		"device", dev.Name(), "framesInFlight", o.framesInFlight, "descriptors", o.descriptorCapacity)
	return s, nil
}

// Open creates a device from the named backend and a session that owns
// it. An empty name selects the highest-priority registered backend.
// The backend package must be linked in, typically with a blank import.
func Open(backendName string, provider any, opts ...Option) (*Session, error) {
	var (
		dev gpucore.Device
		err error
	)
	if backendName == "" {
		dev, err = backend.OpenDefault(provider)
	} else {
		dev, err = backend.Open(backendName, provider)
	}
	if err != nil {
		return nil, err
	}
	return NewSession(dev, append(opts, WithDeviceOwnership())...)
}

// Device returns the session device.
func (s *Session) Device() gpucore.Device { return s.dev }

// Managers returns the collaborators handed to every buffer, for callers
// that construct buffers through the buffer package directly.
func (s *Session) Managers() buffer.Managers {
	return buffer.Managers{
		Device:      s.dev,
		Uploads:     s.uploads,
		Deletion:    s.deletion,
		Descriptors: s.heap,
		Registry:    s.registry,
	}
}

// Uploads returns the upload manager.
func (s *Session) Uploads() *upload.Manager { return s.uploads }

// Deletion returns the deferred deletion manager.
func (s *Session) Deletion() *deletion.Manager { return s.deletion }

// Descriptors returns the descriptor heap, or nil when disabled.
func (s *Session) Descriptors() *descriptor.Heap { return s.heap }

// NewDynamicBuffer creates a growable sub-allocated buffer.
func (s *Session) NewDynamicBuffer(cfg buffer.Config) (*buffer.DynamicBuffer, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return buffer.NewDynamicBuffer(s.Managers(), cfg)
}

// NewSortedUintBuffer creates a sorted uint32 set mirrored on the GPU.
func (s *Session) NewSortedUintBuffer(cfg buffer.SortedConfig) (*buffer.SortedUintBuffer, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return buffer.NewSortedUintBuffer(s.Managers(), cfg)
}

// Resolve returns the live buffer that issued v, or buffer.ErrStaleView.
func (s *Session) Resolve(v buffer.View) (*buffer.DynamicBuffer, error) {
	return s.registry.Resolve(v)
}

// EndFrame is the frame sync point: it submits every staged upload and
// copy, then advances the deletion ring. Objects retired N frames ago are
// released.
func (s *Session) EndFrame() error {
	if s.closed {
		return ErrSessionClosed
	}
	err := s.uploads.Flush()
	s.deletion.ProcessDeletions()
	if err != nil {
		return fmt.Errorf("gpures: end frame: %w", err)
	}
	return nil
}

// Stats returns an aggregate snapshot.
func (s *Session) Stats() Stats {
	st := Stats{
		Frame:            s.deletion.Frame(),
		FramesInFlight:   s.deletion.FramesInFlight(),
		DynamicBuffers:   len(s.registry.DynamicBuffers()),
		SortedBuffers:    len(s.registry.SortedBuffers()),
		PendingUploads:   s.uploads.Pending(),
		PendingDeletions: s.deletion.Pending(),
		Uploads:          s.uploads.Stats(),
	}
	if s.heap != nil {
		st.Descriptors = s.heap.Stats()
	}
	return st
}

// Close flushes pending uploads, destroys every live buffer and releases
// all deferred objects. It must be called once the GPU is idle. Close is
// idempotent; the first flush error is returned.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.uploads.Flush()
	s.closed = true

	for _, b := range s.registry.DynamicBuffers() {
		b.Destroy()
	}
	for _, b := range s.registry.SortedBuffers() {
		b.Destroy()
	}
	s.uploads.Close()
	if s.heap != nil {
		s.heap.Close()
	}
	released := s.deletion.Flush()

	if s.opts.closeDevice {
		s.dev.Close()
	}
	logging.Logger().Info("gpures: session closed", "released", released)
	if err != nil {
		return fmt.Errorf("gpures: close: %w", err)
	}
	return nil
}
