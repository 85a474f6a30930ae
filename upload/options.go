package upload

import "time"

// Defaults used by New.
const (
	// DefaultStagingPoolLimit is the number of idle staging buffers kept.
	DefaultStagingPoolLimit = 8

	// DefaultParallelPackThreshold is the batch size from which payloads
	// are packed by the worker pool instead of the calling goroutine.
	DefaultParallelPackThreshold = 1 << 20

	// MinStagingSize is the smallest staging buffer created.
	MinStagingSize = 64 << 10
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	poolLimit         int
	parallelThreshold uint64
	workers           int
	idleTimeout       time.Duration
}

func defaultOptions() options {
	return options{
		poolLimit:         DefaultStagingPoolLimit,
		parallelThreshold: DefaultParallelPackThreshold,
		workers:           4,
		idleTimeout:       time.Second,
	}
}

// WithStagingPoolLimit sets how many idle staging buffers are kept for reuse.
// Zero disables pooling.
func WithStagingPoolLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.poolLimit = n
		}
	}
}

// WithParallelPackThreshold sets the batch size in bytes from which
// payloads are packed in parallel. Zero disables parallel packing.
func WithParallelPackThreshold(n uint64) Option {
	return func(o *options) {
		o.parallelThreshold = n
	}
}

// WithPackWorkers sets the number of packing workers.
func WithPackWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}
