// Package cache provides a small LRU cache whose evictions are reported
// to the owner, so cached values that hold GPU objects can be destroyed
// rather than silently dropped.
//
//	pool := cache.New[gpucore.BufferID, uint64](8, func(id gpucore.BufferID, _ uint64) {
//	    device.DestroyBuffer(id)
//	})
//	pool.Put(id, size)
//	id, size, ok := pool.TakeBest(
//	    func(_ gpucore.BufferID, s uint64) bool { return s >= need },
//	    func(a, b uint64) bool { return a < b },
//	)
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
// Eviction callbacks run after the internal lock is released.
package cache
