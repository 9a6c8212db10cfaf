package allocator

import "unsafe"

// globalHeap is the single size-descending sorted free-list shared by
// every goroutine, guarded by a spinlock. Only two operations touch
// it: popping the head for an allocation, and the collector's
// whole-list publish. Because publish swaps the entire list in one
// lock hold, any goroutine that takes the lock sees a complete,
// consistent free-list — never a half-updated one (spec.md §4.5).
type globalHeap struct {
	lock spinlock
	head unsafe.Pointer // *chunk
}

// popHead returns a chunk satisfying needed bytes from the heap's head.
// Only the head is ever consulted — like the per-goroutine cache, the
// global heap does not search past its first (largest) entry. The heap
// always advances to head's successor; it never gains a new entry here
// — the collector is the sole writer of the global heap's successor
// pointers (spec.md §3). When a split is worthwhile, the remainder is
// handed to the calling goroutine's reserve instead, following spec.md
// §4.4 step 3 and original_source/par_malloc.c's take_from_global_heap,
// which splices its leftover "left" chunk into reserve->cache rather
// than back into global_heap.
//
// Unlike the cache path, the no-split branch here does NOT truncate the
// served chunk's size down to needed: take_from_global_heap hands out
// the full head chunk unmodified when a split isn't worthwhile. This
// asymmetry is preserved deliberately.
func (g *globalHeap) popHead(needed uintptr, r *Reserve) *chunk {
	g.lock.lock()

	head := (*chunk)(g.head)
	if head == nil || chunkSize(head) < needed {
		g.lock.unlock()

		return nil
	}

	headSize := chunkSize(head)
	next := chunkNext(head)
	remaining := headSize - needed

	g.head = unsafe.Pointer(next)

	if remaining < MinChunk {
		g.lock.unlock()

		return head
	}

	remainder := chunkAt(unsafe.Add(unsafe.Pointer(head), needed))
	setChunkSize(remainder, remaining)
	setChunkSize(head, needed)

	g.lock.unlock()

	// Inserted after releasing the heap lock: the cache belongs solely
	// to the calling goroutine and needs no lock of its own.
	r.insertCacheBySize(remainder)

	return head
}

// publish installs a newly coalesced, size-descending sorted list as
// the global heap and returns whatever list was previously installed,
// so the collector can fold it into its next coalescing cycle
// (spec.md §4.6 step 5).
func (g *globalHeap) publish(sorted *chunk) *chunk {
	g.lock.lock()
	previous := (*chunk)(g.head)
	g.head = unsafe.Pointer(sorted)
	g.lock.unlock()

	return previous
}
