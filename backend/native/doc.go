//go:build !nogpu

// Package native implements gpucore.Device on top of the gogpu/wgpu HAL.
//
// The device does not create a GPU instance of its own. It borrows the
// hal.Device and hal.Queue of a host application, usually through a
// gpucontext.DeviceProvider that also exposes HalDevice() and HalQueue():
//
//	dev, err := native.FromProvider(app)
//	s, err := gpures.NewSession(dev)
//
// Buffer views are realized as single-entry bind groups, one bind group
// layout per view kind (read-only storage, storage, uniform).
//
// Every submission is tracked by the index hal.Queue.Submit returns.
// Encoders are reset and reused once Queue.PollCompleted reaches that
// index; Submit never waits for the GPU.
package native
