package allocator

import "sync/atomic"

// Stats is a diagnostic snapshot of an Allocator's bookkeeping.
// Diagnostics are explicitly out of scope for spec.md's core
// algorithms, but a snapshot this cheap is worth carrying, matching
// the teacher's AllocatorStats convention (internal/allocator/allocator.go).
type Stats struct {
	// MappedBytes is the total bytes ever obtained from the OS via
	// bump-region refills across every reserve. Never decreases: the
	// page-aligned tail of an abandoned bump region is unmapped without
	// being subtracted, and freed chunks are never returned to the OS.
	MappedBytes uint64
	// ConfiguredMemoryLimit is the Config.MemoryLimit this Allocator was
	// built with, informational only — nothing currently enforces it.
	ConfiguredMemoryLimit uintptr
}

type allocatorStats struct {
	mappedBytes atomic.Uint64
}

// Stats returns a point-in-time snapshot of a's bookkeeping.
func (a *Allocator) Stats() Stats {
	return Stats{
		MappedBytes:           a.stats.mappedBytes.Load(),
		ConfiguredMemoryLimit: a.cfg.MemoryLimit,
	}
}
