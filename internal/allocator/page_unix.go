//go:build unix

package allocator

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapAnonymous asks the kernel for a fresh anonymous, writable mapping.
// Returns nil on failure — the caller (policy.go) surfaces this as a
// null Allocate result per spec.md §7 ("OS mapping failure").
func mapAnonymous(size uintptr) unsafe.Pointer {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil
	}

	return unsafe.Pointer(&b[0])
}

// unmapPages releases a page-aligned range obtained from mapAnonymous.
func unmapPages(addr unsafe.Pointer, size uintptr) {
	if addr == nil || size == 0 {
		return
	}

	b := unsafe.Slice((*byte)(addr), size)
	_ = unix.Munmap(b)
}
