// Package allocator implements parheap, a concurrent general-purpose
// memory allocator with per-goroutine caches, a background collector,
// and a coalesced global heap.
package allocator

import "unsafe"

// Fixed constants from the specification. These are not meant to be
// tuned per call site; Config carries overridable copies of some of
// them (see config.go), but the allocator's hot path always uses the
// values below.
const (
	// PageSize is the granularity of OS page mappings.
	PageSize = 4096
	// HeaderSize is the number of bytes every chunk reserves for its
	// size field plus padding, before the caller's payload begins.
	HeaderSize = 16
	// MinChunk is the smallest chunk any free list may hold.
	MinChunk = 32
	// RoundTo is the granularity chunk sizes are rounded up to.
	RoundTo = 16
	// DrainThreshold is the cache_size at which a goroutine hands its
	// cache off to the collector.
	DrainThreshold = PageSize
	// DefaultRefillPages is the number of pages requested to refill an
	// exhausted bump region, absent a larger single request.
	DefaultRefillPages = 32
	// DefaultRefillSize is DefaultRefillPages * PageSize.
	DefaultRefillSize = DefaultRefillPages * PageSize
)

// chunk overlays the first two machine words of any chunk, live or
// free: size (total bytes including the header) followed by padding.
// A free chunk additionally uses the word after the size field (the
// padding word) as an intrusive "next" pointer — see chunkNext/setChunkNext. The chunk IS
// the list node; there is no separate node allocation.
type chunk struct {
	size uintptr
	_    uintptr // padding word, matches spec.md's two-word header
}

// roundUp rounds n up to the nearest multiple of to. to must be a
// power of two.
func roundUp(n, to uintptr) uintptr {
	return (n + to - 1) &^ (to - 1)
}

// neededFor computes the chunk size required to satisfy a caller
// request of b bytes: round_up(b+16,16) from spec.md §4.1.
func neededFor(b uintptr) uintptr {
	return roundUp(b+HeaderSize, RoundTo)
}

// chunkAt reinterprets the byte range starting at addr as a chunk
// header.
func chunkAt(addr unsafe.Pointer) *chunk {
	return (*chunk)(addr)
}

// chunkSize reads a chunk's total size.
func chunkSize(c *chunk) uintptr {
	return c.size
}

// setChunkSize writes a chunk's total size.
func setChunkSize(c *chunk, size uintptr) {
	c.size = size
}

// payload returns the address a caller may write to: chunk + 16.
func payload(c *chunk) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(c), HeaderSize)
}

// chunkOf recovers the chunk header from a payload pointer the caller
// handed back to Free/Resize: payload - 16.
func chunkOf(p unsafe.Pointer) *chunk {
	return (*chunk)(unsafe.Add(p, -HeaderSize))
}

// nextAdjacent returns the hypothetical neighbor immediately following
// c in address space: c + c.size.
func nextAdjacent(c *chunk) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(c), c.size)
}

// coalescable reports whether b begins exactly where a ends, i.e. the
// two chunks occupy a single contiguous range.
func coalescable(a, b *chunk) bool {
	return nextAdjacent(a) == unsafe.Pointer(b)
}

// freeNextSlot returns the address of c's intrusive successor pointer,
// the word immediately after the size field (the header's padding
// word). Only meaningful while c sits
// on a free list.
func freeNextSlot(c *chunk) *unsafe.Pointer {
	return (*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(c), unsafe.Sizeof(uintptr(0))))
}

// chunkNext reads a free chunk's successor pointer.
func chunkNext(c *chunk) *chunk {
	return (*chunk)(*freeNextSlot(c))
}

// setChunkNext writes a free chunk's successor pointer.
func setChunkNext(c *chunk, next *chunk) {
	*freeNextSlot(c) = unsafe.Pointer(next)
}

// copyMemory copies size bytes from src to dst, matching the teacher's
// allocator.go helper of the same name.
func copyMemory(dst, src unsafe.Pointer, size uintptr) {
	copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
}
