package gpures

import "testing"

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.framesInFlight != DefaultFramesInFlight {
		t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultFramesInFlight)
	}
	if o.descriptorCapacity != DefaultDescriptorCapacity {
		t.Errorf("descriptorCapacity = %d, want %d", o.descriptorCapacity, DefaultDescriptorCapacity)
	}
	if o.stagingPoolLimit != DefaultStagingPoolLimit {
		t.Errorf("stagingPoolLimit = %d, want %d", o.stagingPoolLimit, DefaultStagingPoolLimit)
	}
	if o.parallelThreshold != DefaultParallelPackThreshold {
		t.Errorf("parallelThreshold = %d, want %d", o.parallelThreshold, DefaultParallelPackThreshold)
	}
	if o.closeDevice {
		t.Error("closeDevice = true, want false")
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		check func(options) bool
	}{
		{"frames in flight", WithFramesInFlight(2), func(o options) bool { return o.framesInFlight == 2 }},
		{"frames in flight below one ignored", WithFramesInFlight(0), func(o options) bool { return o.framesInFlight == DefaultFramesInFlight }},
		{"descriptor capacity", WithDescriptorCapacity(16), func(o options) bool { return o.descriptorCapacity == 16 }},
		{"descriptors disabled", WithDescriptorCapacity(0), func(o options) bool { return o.descriptorCapacity == 0 }},
		{"staging pool limit", WithStagingPoolLimit(1), func(o options) bool { return o.stagingPoolLimit == 1 }},
		{"negative pool limit ignored", WithStagingPoolLimit(-1), func(o options) bool { return o.stagingPoolLimit == DefaultStagingPoolLimit }},
		{"parallel threshold", WithParallelPackThreshold(4096), func(o options) bool { return o.parallelThreshold == 4096 }},
		{"device ownership", WithDeviceOwnership(), func(o options) bool { return o.closeDevice }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("option not applied: %+v", o)
			}
		})
	}
}
