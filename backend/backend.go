// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/gpures/gpucore"
)

// Backend name constants.
const (
	// NameNative is the gogpu/wgpu HAL backend.
	NameNative = "native"
	// NameWebGPU is the cogentcore/webgpu backend.
	NameWebGPU = "webgpu"
	// NameSoftware is the host-memory backend.
	NameSoftware = "software"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNilDevice is returned when a factory reports success without a device.
	ErrNilDevice = errors.New("backend: factory returned nil device")
)

// Factory creates a device. provider is backend specific and may be nil.
type Factory func(provider any) (gpucore.Device, error)
