package allocator

import (
	"sync"
	"time"
	"unsafe"
)

// Allocator is one instance of the three-tier allocator from
// SPEC_FULL.md: per-goroutine reserves, a background collector, and a
// global coalesced heap. The package-level Allocate/Free/Resize
// functions operate on a lazily constructed default instance; a host
// that wants an isolated allocator (tests, multiple independent
// arenas) should call New directly.
type Allocator struct {
	cfg       *Config
	reg       *registry
	heap      *globalHeap
	collector *collector
	startOnce sync.Once
	stats     allocatorStats
}

// New constructs an Allocator. The collector goroutine is not started
// until the first Allocate/Free call, matching spec.md's lazy
// collector spawn via gc_init.
func New(opts ...Option) (*Allocator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	if cfg.EnableAutoMemLimit {
		applyAutoMemLimit()
	}

	heap := &globalHeap{}
	reg := &registry{}

	return &Allocator{
		cfg:       cfg,
		reg:       reg,
		heap:      heap,
		collector: newCollector(heap, reg),
	}, nil
}

func (a *Allocator) ensureCollector() {
	a.startOnce.Do(a.collector.start)
}

// Allocate returns a pointer to at least bytes of writable memory, or
// nil if bytes is zero or the OS refused a mapping request. Never
// returns a Go error — spec.md §7 assigns this path no exception or
// fallback behavior.
func (a *Allocator) Allocate(bytes uintptr) unsafe.Pointer {
	if bytes == 0 {
		return nil
	}

	a.ensureCollector()

	needed := neededFor(bytes)
	r := a.reg.reserveFor()
	r.touch(time.Now().UnixNano())

	if c := r.popCache(needed); c != nil {
		return payload(c)
	}

	if c := a.heap.popHead(needed, r); c != nil {
		return payload(c)
	}

	if c := a.bump(r, needed); c != nil {
		return payload(c)
	}

	return nil
}

// Free returns ptr, previously obtained from Allocate or Resize, to
// the calling goroutine's reserve cache. Once the cache reaches
// DrainThreshold it is handed off to the collector and the collector
// is woken, matching spec.md §4.2's xfree cache-drain branch. A nil
// ptr is a no-op.
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	a.ensureCollector()

	c := chunkOf(ptr)
	r := a.reg.reserveFor()
	r.touch(time.Now().UnixNano())
	r.pushCache(c)

	if r.cacheSize >= a.cfg.DrainThreshold {
		r.drainToQueue()
		a.collector.wake()
	}
}

// Resize changes the usable size behind ptr. Shrinking, requesting the
// same size class, or requesting zero bytes is a no-op that returns
// ptr unchanged — even though that may leave more slack than the
// caller asked for — per spec.md §9 and original_source/par_malloc.c's
// xrealloc, where fix_size(0) is 16, always below a 32-byte-minimum
// old chunk's size. Growing allocates a new chunk, copies the old
// payload, and frees the old chunk.
func (a *Allocator) Resize(ptr unsafe.Pointer, bytes uintptr) unsafe.Pointer {
	if ptr == nil {
		return a.Allocate(bytes)
	}

	needed := neededFor(bytes)
	old := chunkOf(ptr)

	if chunkSize(old) >= needed {
		return ptr
	}

	next := a.Allocate(bytes)
	if next == nil {
		return nil
	}

	// Copies old.size-HeaderSize bytes, which can exceed the caller's
	// original request by up to RoundTo-1 bytes of rounding slack, plus
	// up to MinChunk-RoundTo more when the old chunk was served whole
	// from the global heap without a split. Safe since that slack was
	// always part of the old chunk's payload.
	copyMemory(next, ptr, chunkSize(old)-HeaderSize)
	a.Free(ptr)

	return next
}

// bump carves needed bytes off r's bump region, refilling it from a
// fresh OS mapping first if it is exhausted. Matches spec.md §4.4 step
// 5 and original_source/par_malloc.c's xmalloc bump-and-refill branch.
func (a *Allocator) bump(r *Reserve, needed uintptr) *chunk {
	if r.dataStart != nil {
		remaining := uintptr(r.dataEnd) - uintptr(r.dataStart)
		if remaining >= needed {
			c := chunkAt(r.dataStart)
			setChunkSize(c, needed)
			r.dataStart = unsafe.Add(r.dataStart, needed)

			return c
		}
	}

	releaseBumpTail(r.dataStart, r.dataEnd)

	size := refillSize(needed)

	mem := mapAnonymous(size)
	if mem == nil {
		r.dataStart = nil
		r.dataEnd = nil

		return nil
	}

	a.stats.mappedBytes.Add(uint64(size))

	r.dataStart = mem
	r.dataEnd = unsafe.Add(mem, size)

	c := chunkAt(r.dataStart)
	setChunkSize(c, needed)
	r.dataStart = unsafe.Add(r.dataStart, needed)

	return c
}

// ReleaseReserve drains the calling goroutine's reserve cache to the
// collector and wakes it. A goroutine that owns a long-lived reserve
// (for example a worker-pool goroutine allocating in a loop) should
// call this before it exits — see SPEC_FULL.md §5 for why parheap
// cannot do this on the goroutine's behalf.
func (a *Allocator) ReleaseReserve() {
	a.ensureCollector()

	r := a.reg.reserveFor()
	r.drainToQueue()
	a.collector.wake()
}

// Close stops the background collector goroutine. It does not unmap
// any memory obtained from the OS — freed chunks are never returned to
// the OS, matching spec.md's non-goals.
func (a *Allocator) Close() {
	a.collector.close()
}

var (
	defaultAllocator *Allocator
	defaultOnce      sync.Once
)

// defaultInstance lazily builds the package-level Allocator used by
// Allocate/Free/Resize/ReleaseReserve. defaultConfig() is always
// internally consistent, so NewConfig cannot fail here.
func defaultInstance() *Allocator {
	defaultOnce.Do(func() {
		a, err := New()
		if err != nil {
			panic(err)
		}

		defaultAllocator = a
	})

	return defaultAllocator
}

// Allocate is the package-level entry point over the default Allocator.
func Allocate(bytes uintptr) unsafe.Pointer {
	return defaultInstance().Allocate(bytes)
}

// Free is the package-level entry point over the default Allocator.
func Free(ptr unsafe.Pointer) {
	defaultInstance().Free(ptr)
}

// Resize is the package-level entry point over the default Allocator.
func Resize(ptr unsafe.Pointer, bytes uintptr) unsafe.Pointer {
	return defaultInstance().Resize(ptr, bytes)
}

// ReleaseReserve is the package-level entry point over the default
// Allocator.
func ReleaseReserve() {
	defaultInstance().ReleaseReserve()
}
