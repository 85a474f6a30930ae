// Package software provides a host-memory implementation of gpucore.Device.
//
// Buffers are plain byte slices and command lists execute synchronously on
// Submit, so the device is deterministic and always available. It backs
// tests, tools and headless runs, and doubles as a validation layer:
//
//   - any command that references a destroyed buffer fails with
//     ErrUseAfterFree instead of silently reading freed memory
//   - copies and writes are bounds-checked against the buffer size
//   - destroying a buffer that still has live views is counted in
//     Stats.DanglingViews and logged at warn level
//
// The package registers itself as the "software" backend on import.
package software
