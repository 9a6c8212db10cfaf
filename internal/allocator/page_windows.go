//go:build windows

package allocator

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapAnonymous reserves and commits a fresh anonymous, writable region
// via VirtualAlloc. Returns nil on failure.
func mapAnonymous(size uintptr) unsafe.Pointer {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil
	}

	return unsafe.Pointer(addr)
}

// unmapPages releases a region obtained from mapAnonymous. Windows
// requires MEM_RELEASE to target the original allocation's base
// address with size 0; parheap only ever releases a page-aligned
// suffix of a bump region, which VirtualFree cannot decommit-and-free
// partially the way munmap can, so here we fall back to decommitting
// (MEM_DECOMMIT) the pages instead of releasing their address space.
func unmapPages(addr unsafe.Pointer, size uintptr) {
	if addr == nil || size == 0 {
		return
	}

	_ = windows.VirtualFree(uintptr(addr), size, windows.MEM_DECOMMIT)
}
