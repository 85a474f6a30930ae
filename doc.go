// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpures manages GPU-resident, growable, sparsely allocated
// buffers for a real-time renderer.
//
// # Overview
//
// The CPU records work for frame T while the GPU may still be executing
// frames T-1 .. T-N. gpures lets the CPU keep allocating, updating and
// freeing ranges of GPU buffers during that time without ever touching
// memory an in-flight frame can read:
//
//   - writes are staged and copied at the frame sync point, in call order
//   - a buffer that runs out of space grows into a new backing; the old
//     one is copied forward and destroyed only after N frames
//   - every buffer publishes stable descriptor slot indices that are
//     re-published through a resize callback when the backing changes
//   - destruction of any GPU object is deferred by the frames in flight
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpures"
//	    "github.com/gogpu/gpures/buffer"
//	    _ "github.com/gogpu/gpures/backend/software"
//	)
//
//	s, err := gpures.Open("software", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	instances, _ := s.NewDynamicBuffer(buffer.Config{ElementSize: 64})
//	v, _ := instances.Add(payload)
//
//	for running {
//	    // ... record and submit frame work using v.Index() ...
//	    if err := s.EndFrame(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Architecture
//
// The library is organized into:
//   - Public API: Session (this package), buffer.DynamicBuffer,
//     buffer.SortedUintBuffer, buffer.View
//   - Managers: upload (ordered staging), deletion (frame latency),
//     descriptor (slot heap)
//   - Device layer: gpucore interfaces, backend registry and the
//     software, native (gogpu/wgpu HAL) and webgpu backends
//   - Internal: alloc (first-fit allocator), slotmap (generational
//     handles), cache (staging pool), logging
//
// # Threading
//
// Buffers are mutated from a single submission goroutine. The managers
// carry their own locks so that readers of statistics and producers of
// deferred deletions may run elsewhere.
package gpures

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
