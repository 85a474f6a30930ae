package gpures

import "github.com/gogpu/gpures/upload"

// Session defaults.
const (
	// DefaultFramesInFlight is the number of frames the GPU may run behind
	// the CPU, and therefore the deletion latency.
	DefaultFramesInFlight = 3

	// DefaultDescriptorCapacity is the number of descriptor slots.
	DefaultDescriptorCapacity = 4096

	// DefaultStagingPoolLimit is the number of idle staging buffers kept.
	DefaultStagingPoolLimit = upload.DefaultStagingPoolLimit

	// DefaultParallelPackThreshold is the upload batch size from which
	// staging payloads are packed by worker goroutines.
	DefaultParallelPackThreshold = upload.DefaultParallelPackThreshold
)

// Option configures a Session during creation.
//
// Example:
//
//	s, err := gpures.NewSession(dev,
//	    gpures.WithFramesInFlight(2),
//	    gpures.WithDescriptorCapacity(1<<16),
//	)
type Option func(*options)

// options holds optional configuration for Session creation.
type options struct {
	framesInFlight     int
	descriptorCapacity uint32
	stagingPoolLimit   int
	parallelThreshold  uint64
	closeDevice        bool
}

// defaultOptions returns the default session options.
func defaultOptions() options {
	return options{
		framesInFlight:     DefaultFramesInFlight,
		descriptorCapacity: DefaultDescriptorCapacity,
		stagingPoolLimit:   DefaultStagingPoolLimit,
		parallelThreshold:  DefaultParallelPackThreshold,
	}
}

// WithFramesInFlight sets the deletion latency in frames. Values below 1
// are ignored.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.framesInFlight = n
		}
	}
}

// WithDescriptorCapacity sets the number of descriptor slots.
// Zero disables descriptor slot assignment entirely.
func WithDescriptorCapacity(n uint32) Option {
	return func(o *options) {
		o.descriptorCapacity = n
	}
}

// WithStagingPoolLimit sets how many idle staging buffers are kept.
func WithStagingPoolLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.stagingPoolLimit = n
		}
	}
}

// WithParallelPackThreshold sets the upload batch size in bytes from which
// payloads are packed in parallel. Zero disables parallel packing.
func WithParallelPackThreshold(n uint64) Option {
	return func(o *options) {
		o.parallelThreshold = n
	}
}

// WithDeviceOwnership makes Session.Close close the device. Sessions
// created by Open always own their device.
func WithDeviceOwnership() Option {
	return func(o *options) {
		o.closeDevice = true
	}
}
