// Package gpucore defines the narrow device abstraction the resource
// managers are written against.
//
// The [Device] interface covers exactly what dynamic buffers need from a
// GPU: creating and destroying buffers, queue writes, recording
// buffer-to-buffer copies into a command list, submitting that list, and
// creating shader-visible buffer views for descriptor slots. Everything
// else (pipelines, passes, textures) belongs to the caller's renderer.
//
//	              +-------------------+
//	              |  buffer / upload  |
//	              | descriptor / ...  |
//	              +---------+---------+
//	                        | gpucore.Device
//	      +-----------------+-----------------+
//	      |                 |                 |
//	+-----v-----+     +-----v-----+     +-----v-----+
//	|  native   |     |  webgpu   |     | software  |
//	|(wgpu/hal) |     |(cogentcore|     |(host RAM) |
//	+-----------+     +-----------+     +-----------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [ViewID]).
// Implementations track the mapping between IDs and backend objects.
// IDs are never reused by a device, so a stale ID is always detectable.
//
// # Ordering
//
// Commands recorded on one [CommandEncoder] execute in recording order.
// [Device.WriteBuffer] is a queue write: it lands before any command list
// submitted after it, and after every list submitted before it.
package gpucore
