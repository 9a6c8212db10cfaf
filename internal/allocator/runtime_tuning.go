package allocator

import (
	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pbnjay/memory"
	_ "go.uber.org/automaxprocs" // container-aware GOMAXPROCS, applied at import time
)

// defaultMemoryLimitFraction is the divisor applied to detected
// physical RAM to get the MemoryLimit a host that never sets
// Config.MemoryLimit gets by default (a quarter of RAM).
const defaultMemoryLimitFraction = 4

// defaultMemoryLimit scales a sane default ceiling off total physical
// memory rather than hard-coding one, since parheap may run on
// anything from a laptop to a large container. Falls back to
// DefaultRefillSize*256 (32 MiB) if the host's memory size cannot be
// determined.
func defaultMemoryLimit() uintptr {
	total := memory.TotalMemory()
	if total == 0 {
		return DefaultRefillSize * 256
	}

	return uintptr(total / defaultMemoryLimitFraction)
}

// applyAutoMemLimit sets GOMEMLIMIT from the container's cgroup memory
// limit so the Go runtime's own GC ceiling doesn't fight parheap's
// MemoryLimit, which tracks bytes obtained via mmap/VirtualAlloc and is
// otherwise invisible to the Go runtime entirely. Best-effort: failure
// to detect a cgroup limit (e.g. running outside a container) is not
// an error, it just leaves GOMEMLIMIT untouched.
func applyAutoMemLimit() {
	_, _ = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(memlimit.FromCgroup),
	)
}
