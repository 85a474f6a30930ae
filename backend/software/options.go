package software

// Option configures a software Device.
type Option func(*options)

type options struct {
	maxBufferSize uint64
	memoryBudget  uint64
	copyAlignment uint64
}

func defaultOptions() options {
	return options{
		maxBufferSize: DefaultMaxBufferSize,
		copyAlignment: 4,
	}
}

// DefaultMaxBufferSize is the largest buffer a default Device creates (256 MiB).
const DefaultMaxBufferSize = 256 << 20

// WithMaxBufferSize sets the largest buffer the device will create.
// Larger requests fail with gpucore.ErrOutOfMemory.
func WithMaxBufferSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBufferSize = n
		}
	}
}

// WithMemoryBudget caps the total size of live buffers. Creating a buffer
// that would exceed the budget fails with gpucore.ErrOutOfMemory.
// Zero means unlimited.
func WithMemoryBudget(n uint64) Option {
	return func(o *options) {
		o.memoryBudget = n
	}
}

// WithCopyAlignment sets the reported copy alignment. It must be a power
// of two; other values are ignored.
func WithCopyAlignment(n uint64) Option {
	return func(o *options) {
		if n > 0 && n&(n-1) == 0 {
			o.copyAlignment = n
		}
	}
}
