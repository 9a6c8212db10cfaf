package allocator

import (
	"sync/atomic"
	"unsafe"
)

// Reserve holds everything spec.md assigns to one OS thread: the LIFO
// free cache, the bump region carved out of the thread's last OS
// mapping, and the handoff queue the collector drains. In parheap a
// Reserve is keyed by goroutine affinity rather than true thread-local
// storage — see registry.go and SPEC_FULL.md §5 for why.
//
// cache/cacheEnd/cacheSize/dataStart/dataEnd are touched only by the
// owning goroutine. queue and queueLock are the one piece of state the
// collector also touches, always through queueLock.
type Reserve struct {
	cache     unsafe.Pointer // *chunk, LIFO head; nil when empty
	cacheEnd  *unsafe.Pointer
	cacheSize uintptr

	dataStart unsafe.Pointer
	dataEnd   unsafe.Pointer

	queueLock spinlock
	queue     unsafe.Pointer // *chunk, handoff list drained by the collector

	lastTouched atomic.Int64 // UnixNano, updated on every Allocate/Free; nothing in the package reads it
}

func newReserve() *Reserve {
	r := &Reserve{}
	r.cacheEnd = &r.cache

	return r
}

// pushCache links c at the head of the cache (LIFO) and folds its size
// into cacheSize. Matches spec.md §4.2 push_cache.
//
// cacheEnd must always point at the tail chunk's own next-slot once the
// cache is non-empty (or at &r.cache while it's empty), since
// drainToQueue and popCache's tail-append branch write through it
// directly. A push onto a non-empty cache only touches the head, so the
// existing tail and cacheEnd are untouched; the first push into an
// empty cache makes c both head and tail, so cacheEnd must move to c's
// own next-slot rather than stay pointed at the head pointer itself.
func (r *Reserve) pushCache(c *chunk) {
	wasEmpty := r.cache == nil

	setChunkNext(c, (*chunk)(r.cache))
	r.cache = unsafe.Pointer(c)
	r.cacheSize += chunkSize(c)

	if wasEmpty {
		r.cacheEnd = freeNextSlot(c)
	}
}

// popCache consults only the cache head; on a size hit it splits off a
// remainder when the remainder would still be a legal chunk, otherwise
// it hands out the entire head chunk. Returns nil without scanning
// further if the head is too small — the cache is a "freshest slot"
// guess, not a best-fit search (spec.md §4.2, §9).
func (r *Reserve) popCache(needed uintptr) *chunk {
	if r.cache == nil {
		return nil
	}

	head := (*chunk)(r.cache)
	headSize := chunkSize(head)

	if headSize < needed {
		return nil
	}

	next := chunkNext(head)
	remaining := headSize - needed

	if remaining < MinChunk {
		r.cache = unsafe.Pointer(next)
		if next == nil {
			r.cacheEnd = &r.cache
		}
		// The sub-MinChunk remainder is not worth representing as a
		// free node; it is folded into the served chunk's bookkeeping
		// loss. Matches original_source/par_malloc.c take_from_cache,
		// which always sets the returned size to `needed` here.
		setChunkSize(head, needed)
	} else {
		remainder := chunkAt(unsafe.Add(unsafe.Pointer(head), needed))
		setChunkSize(remainder, remaining)

		switch {
		case next == nil:
			r.cache = unsafe.Pointer(remainder)
			r.cacheEnd = freeNextSlot(remainder)
			setChunkNext(remainder, nil)
		case remaining < chunkSize(next):
			// Keep the bigger successor at the head; park the smaller
			// remainder at the tail in O(1) via cacheEnd.
			*r.cacheEnd = unsafe.Pointer(remainder)
			setChunkNext(remainder, nil)
			r.cacheEnd = freeNextSlot(remainder)
			r.cache = unsafe.Pointer(next)
		default:
			// Remainder is at least as large as the successor: keep
			// larger chunks near the head.
			setChunkNext(remainder, next)
			r.cache = unsafe.Pointer(remainder)
		}

		setChunkSize(head, needed)
	}

	r.cacheSize -= needed

	return head
}

// insertCacheBySize places c into the cache relative to the current
// head by size: head if c is at least as large as the current head,
// tail otherwise. This is the policy spec.md §4.4 step 3 specifies for
// the remainder the global heap hands back to a reserve on a split —
// distinct from pushCache's plain LIFO push, which is for freshly
// freed chunks instead.
func (r *Reserve) insertCacheBySize(c *chunk) {
	r.cacheSize += chunkSize(c)

	head := (*chunk)(r.cache)
	if head == nil || chunkSize(c) >= chunkSize(head) {
		setChunkNext(c, head)
		r.cache = unsafe.Pointer(c)

		if head == nil {
			r.cacheEnd = freeNextSlot(c)
		}

		return
	}

	*r.cacheEnd = unsafe.Pointer(c)
	setChunkNext(c, nil)
	r.cacheEnd = freeNextSlot(c)
}

// drainToQueue splices the entire cache onto the front of queue under
// queueLock, then empties the cache. Matches spec.md §4.2
// drain_to_queue and the cache-drain branch of xfree in
// original_source/par_malloc.c.
func (r *Reserve) drainToQueue() {
	if r.cache == nil {
		return
	}

	r.queueLock.lock()
	*r.cacheEnd = r.queue
	r.queue = r.cache
	r.queueLock.unlock()

	r.cache = nil
	r.cacheEnd = &r.cache
	r.cacheSize = 0
}

// detachQueue atomically takes the entire handoff queue for the
// collector to process, leaving the queue empty. Called only by the
// collector.
func (r *Reserve) detachQueue() *chunk {
	r.queueLock.lock()
	q := r.queue
	r.queue = nil
	r.queueLock.unlock()

	return (*chunk)(q)
}

// touch records that the owning goroutine just used this reserve. The
// timestamp is diagnostic only: the collector does not read it and
// performs no idle-reserve sweep (SPEC_FULL.md §5).
func (r *Reserve) touch(nowUnixNano int64) {
	r.lastTouched.Store(nowUnixNano)
}
