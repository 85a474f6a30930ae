package buffer

import "errors"

// Buffer errors.
var (
	// ErrZeroElement is returned for zero-size elements or allocations.
	ErrZeroElement = errors.New("buffer: zero-size element")

	// ErrUnalignedElement is returned when the element size is not a
	// multiple of the device copy alignment.
	ErrUnalignedElement = errors.New("buffer: element size not copy-aligned")

	// ErrGrowFailed wraps the device or descriptor heap error when growth
	// cannot allocate a new backing or its view slots. The buffer is left
	// unchanged; the caller cannot continue to use it for new allocations.
	ErrGrowFailed = errors.New("buffer: growth failed")

	// ErrStaleView is returned when a view's range or buffer no longer exists.
	ErrStaleView = errors.New("buffer: stale view")

	// ErrForeignView is returned when a view belongs to another buffer.
	ErrForeignView = errors.New("buffer: view belongs to another buffer")

	// ErrDataTooLarge is returned when data exceeds the allocation.
	ErrDataTooLarge = errors.New("buffer: data larger than allocation")

	// ErrDestroyed is returned by operations on a destroyed buffer.
	ErrDestroyed = errors.New("buffer: destroyed")

	// ErrIncompleteManagers is returned when a required manager is nil.
	ErrIncompleteManagers = errors.New("buffer: device, uploads, deletion and registry are required")

	// ErrUnsupportedAlignment is returned when the device copy alignment
	// exceeds the 4-byte granularity of a SortedUintBuffer.
	ErrUnsupportedAlignment = errors.New("buffer: copy alignment too large for uint32 elements")
)
