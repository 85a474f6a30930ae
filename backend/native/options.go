//go:build !nogpu

package native

import (
	"time"

	"github.com/gogpu/gputypes"
)

// CopyBufferAlignment is the WebGPU copy offset and size granularity.
const CopyBufferAlignment = 4

// DefaultWaitTimeout bounds blocking waits at readback and Close.
const DefaultWaitTimeout = 5 * time.Second

// Option configures a Device.
type Option func(*options)

type options struct {
	limits      gputypes.Limits
	visibility  gputypes.ShaderStage
	waitTimeout time.Duration
	label       string
}

func defaultOptions() options {
	return options{
		limits:      gputypes.DefaultLimits(),
		visibility:  gputypes.ShaderStageCompute,
		waitTimeout: DefaultWaitTimeout,
		label:       "gpures",
	}
}

// WithLimits sets the adapter limits. Without it gputypes.DefaultLimits is
// assumed.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithVisibility sets the shader stages that see buffer views.
// The default is compute only.
func WithVisibility(stages gputypes.ShaderStage) Option {
	return func(o *options) {
		o.visibility = stages
	}
}

// WithWaitTimeout bounds the blocking waits of ReadBuffer and Close.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithLabel sets the prefix of every HAL debug label.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}
