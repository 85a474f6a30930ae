// Command gpuresdemo drives a simulated frame loop through gpures on the
// software device and reports buffer growth, uploads and deferred releases.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"os"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend/software"
	"github.com/gogpu/gpures/buffer"
	"github.com/gogpu/gpures/gpucore"
)

// instanceSize is the stride of one instance record: a 4x3 transform and
// a packed color.
const instanceSize = 64

func main() {
	var (
		frames   = flag.Int("frames", 120, "number of frames to simulate")
		spawn    = flag.Int("spawn", 48, "instances spawned per frame")
		despawn  = flag.Float64("despawn", 0.3, "chance an instance is removed each frame")
		inflight = flag.Int("frames-in-flight", gpures.DefaultFramesInFlight, "GPU frame latency")
		initial  = flag.Uint64("capacity", 4096, "initial instance buffer capacity in bytes")
		budget   = flag.Uint64("budget", 0, "device memory budget in bytes (0 = unlimited)")
		seed     = flag.Int64("seed", 1, "random seed")
		verbose  = flag.Bool("v", false, "enable debug logging")
		every    = flag.Int("report", 30, "print stats every N frames")
	)
	flag.Parse()

	if *verbose {
		gpures.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	var devOpts []software.Option
	if *budget > 0 {
		devOpts = append(devOpts, software.WithMemoryBudget(*budget))
	}
	dev := software.New(devOpts...)
	defer dev.Close()

	s, err := gpures.NewSession(dev, gpures.WithFramesInFlight(*inflight))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	instances, err := s.NewDynamicBuffer(buffer.Config{
		Label:           "instances",
		InitialCapacity: *initial,
		ElementSize:     instanceSize,
		Usage:           gpucore.BufferUsageVertex,
	})
	if err != nil {
		log.Fatalf("Failed to create instance buffer: %v", err)
	}
	visible, err := s.NewSortedUintBuffer(buffer.SortedConfig{Label: "visible"})
	if err != nil {
		log.Fatalf("Failed to create visibility buffer: %v", err)
	}

	// Renderers cache descriptor indices; refresh them on growth.
	srv := instances.DescriptorIndex(gpucore.ViewKindSRV)
	instances.SetOnResized(func(_ uint64, _ uint32, newCapacity uint64, b *buffer.DynamicBuffer) {
		srv = b.DescriptorIndex(gpucore.ViewKindSRV)
		log.Printf("instances grew to %d bytes, SRV slot now %d", newCapacity, srv)
	})

	rng := rand.New(rand.NewSource(*seed))
	live := make([]buffer.View, 0, *spawn**frames)
	record := make([]byte, instanceSize)

	for frame := 1; frame <= *frames; frame++ {
		kept := live[:0]
		for _, v := range live {
			if rng.Float64() >= *despawn {
				kept = append(kept, v)
				continue
			}
			if err := instances.Remove(v); err != nil {
				log.Fatalf("frame %d: remove: %v", frame, err)
			}
			if _, err := visible.Remove(uint32(v.Index())); err != nil {
				log.Fatalf("frame %d: hide: %v", frame, err)
			}
		}
		live = kept

		for i := 0; i < *spawn; i++ {
			fillInstance(record, rng, frame)
			v, err := instances.Add(record)
			if err != nil {
				log.Fatalf("frame %d: add: %v", frame, err)
			}
			live = append(live, v)
			if rng.Intn(2) == 0 {
				if _, err := visible.Insert(uint32(v.Index())); err != nil {
					log.Fatalf("frame %d: show: %v", frame, err)
				}
			}
		}

		// Animate a few survivors in place.
		for i := 0; i < len(live)/8; i++ {
			v := live[rng.Intn(len(live))]
			fillInstance(record, rng, frame)
			if err := instances.UpdateView(v, record); err != nil {
				log.Fatalf("frame %d: update: %v", frame, err)
			}
		}

		if from := visible.EarliestModifiedIndex(); from != buffer.NoModification {
			// A culling pass would re-scan visible[from:] here.
			visible.AcknowledgeSync()
		}

		if err := s.EndFrame(); err != nil {
			log.Fatalf("frame %d: %v", frame, err)
		}
		if *every > 0 && frame%*every == 0 {
			log.Printf("frame %d: live=%d visible=%d srv=%d | %s", frame, len(live), visible.Len(), srv, s.Stats())
		}
	}

	if err := s.Close(); err != nil {
		log.Fatalf("Failed to close session: %v", err)
	}
	log.Printf("Done: %d frames, device %s", *frames, dev.Stats())
}

// fillInstance writes a pseudo-random transform and a frame-tagged color.
func fillInstance(dst []byte, rng *rand.Rand, frame int) {
	for i := 0; i < 12; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(rng.Int31()))
	}
	binary.LittleEndian.PutUint32(dst[48:], uint32(frame))
	binary.LittleEndian.PutUint32(dst[52:], 0xff8040ff)
	clear(dst[56:])
}
