//go:build !nogpu

package native

import (
	"errors"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/wgpu/hal"
)

// Provider errors.
var (
	// ErrNoHAL is returned when the provider does not expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL device and queue")

	// ErrNilHAL is returned when the provider exposes nil HAL objects.
	ErrNilHAL = errors.New("native: provider HAL device or queue is nil")
)

// halProvider is implemented by hosts that share their HAL device.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

func init() {
	backend.Register(backend.NameNative, func(provider any) (gpucore.Device, error) {
		return FromProvider(provider)
	})
}

// FromProvider creates a device over the HAL objects of a host provider.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. The device does not own them.
func FromProvider(provider any, opts ...Option) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNilHAL
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, ErrNilHAL
	}

	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		logging.Logger().Info("native: using shared device", "surfaceFormat", dp.SurfaceFormat())
	}
	return New(device, queue, opts...)
}
