package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first that opens wins).
	backendPriority = []string{NameNative, NameWebGPU, NameSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open creates a device from the named backend.
func Open(name string, provider any) (gpucore.Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory(provider)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("backend %s: %w", name, ErrNilDevice)
	}
	return dev, nil
}

// OpenDefault opens the highest-priority backend that succeeds.
// Priority order: native > webgpu > software, then any other registered
// backend in name order. Failed attempts are logged at warn level.
func OpenDefault(provider any) (gpucore.Device, error) {
	tried := make(map[string]bool, len(backendPriority))
	order := append([]string(nil), backendPriority...)
	for _, name := range Available() {
		order = append(order, name)
	}

	for _, name := range order {
		if tried[name] || !IsRegistered(name) {
			continue
		}
		tried[name] = true

		dev, err := Open(name, provider)
		if err == nil {
			logging.Logger().Info("backend: device opened", "backend", name)
			return dev, nil
		}
		logging.Logger().Warn("backend: open failed, trying next", "backend", name, "err", err)
	}
	return nil, ErrBackendNotAvailable
}
