package allocator

import "unsafe"

// mapAnonymous and unmapPages are implemented per-OS in page_unix.go and
// page_windows.go, following the build-tag split the teacher uses for
// its zero-copy syscalls (internal/runtime/asyncio/zerocopy_unix_*.go
// vs zerocopy_windows_*.go).
//
// mapAnonymous requests a new anonymous, writable mapping of size
// bytes and returns its start address. size need not be a multiple of
// PageSize (refillSize passes a large request's needed size through
// unchanged); the OS rounds the mapping up to whole pages.
//
// unmapPages releases a previously mapped range starting on a page
// boundary back to the OS; the OS rounds size up to whole pages.

// TODO: a configurable return-to-OS path for coalesced global-heap
// chunks above some size threshold would hook in here, unmapping via
// unmapPages; not built, since returning memory to the OS is an
// explicit non-goal.

// refillSize picks how many bytes to request when a bump region is
// exhausted: max(32 pages, needed), per spec.md §4.4 step 5.
func refillSize(needed uintptr) uintptr {
	if needed > DefaultRefillSize {
		return needed
	}

	return DefaultRefillSize
}

// pageAlignedSuffix computes the page-aligned range to return to the
// OS when a bump region [dataStart, dataEnd) is abandoned: everything
// from round_up(dataStart, PAGE) up to dataEnd. The sub-page prefix
// before that boundary stays mapped and is never reused — see spec.md §9
// "Open question: bump-tail unmap", preserved as-is.
func pageAlignedSuffix(dataStart, dataEnd unsafe.Pointer) (start unsafe.Pointer, size uintptr) {
	alignedStart := roundUp(uintptr(dataStart), PageSize)
	end := uintptr(dataEnd)

	if alignedStart >= end {
		return nil, 0
	}

	return unsafe.Pointer(alignedStart), end - alignedStart
}

// releaseBumpTail unmaps the page-aligned suffix of an exhausted bump
// region, if any. Never fails loudly: an OS unmap failure here is not
// on the allocate/free fast path and spec.md assigns it no recovery
// behavior beyond "best effort".
func releaseBumpTail(dataStart, dataEnd unsafe.Pointer) {
	if dataStart == nil {
		return
	}

	start, size := pageAlignedSuffix(dataStart, dataEnd)
	if size == 0 {
		return
	}

	unmapPages(start, size)
}
