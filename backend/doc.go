// Package backend provides a pluggable registry of GPU device backends.
//
// Each backend package registers a [Factory] from its init function, so
// importing the package is enough to make it selectable:
//
//	import _ "github.com/gogpu/gpures/backend/software"
//
// # Backend Selection
//
// Use Open with a name to request a specific backend, or OpenDefault to
// take the best registered one:
//
//	dev, err := backend.Open(backend.NameNative, provider)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// The provider argument is passed through to the factory unchanged.
// GPU backends expect a host application's device provider (see
// gpucontext.DeviceProvider); the software backend ignores it.
//
// # Available Backends
//
//   - "native": gogpu/wgpu HAL device (shared with a host application)
//   - "webgpu": cogentcore/webgpu device
//   - "software": host-memory device, always available
package backend
