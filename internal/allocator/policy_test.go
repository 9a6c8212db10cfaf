package allocator

import (
	"testing"
	"unsafe"
)

func TestAllocateZeroReturnsNil(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if p := a.Allocate(0); p != nil {
		t.Fatal("Allocate(0) should return nil")
	}
}

func TestFreeNilIsNoop(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	a.Free(nil) // must not panic
}

func TestAllocateWriteReadRoundTrip(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p := a.Allocate(64)
	if p == nil {
		t.Fatal("Allocate(64) returned nil")
	}

	buf := unsafe.Slice((*byte)(p), 64)
	for i := range buf {
		buf[i] = byte(i)
	}

	for i := range buf {
		if buf[i] != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], i)
		}
	}

	a.Free(p)
}

func TestAllocateFreeReuseFromCache(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p1 := a.Allocate(40)
	if p1 == nil {
		t.Fatal("Allocate(40) returned nil")
	}

	a.Free(p1)

	p2 := a.Allocate(40)
	if p2 == nil {
		t.Fatal("second Allocate(40) returned nil")
	}

	if p2 != p1 {
		t.Fatalf("expected the cache to hand back the just-freed chunk, got %p want %p", p2, p1)
	}
}

func TestResizeShrinkReturnsSamePointer(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p := a.Allocate(100)
	if p == nil {
		t.Fatal("Allocate(100) returned nil")
	}

	shrunk := a.Resize(p, 10)
	if shrunk != p {
		t.Fatalf("Resize shrink returned %p, want unchanged %p", shrunk, p)
	}
}

func TestResizeGrowCopiesPayload(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p := a.Allocate(16)
	if p == nil {
		t.Fatal("Allocate(16) returned nil")
	}

	src := unsafe.Slice((*byte)(p), 16)
	for i := range src {
		src[i] = byte(i + 1)
	}

	grown := a.Resize(p, 256)
	if grown == nil {
		t.Fatal("Resize grow returned nil")
	}

	dst := unsafe.Slice((*byte)(grown), 16)
	for i := range dst {
		if dst[i] != byte(i+1) {
			t.Fatalf("byte %d = %d, want %d after grow", i, dst[i], i+1)
		}
	}
}

func TestResizeNilActsLikeAllocate(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p := a.Resize(nil, 32)
	if p == nil {
		t.Fatal("Resize(nil, 32) should behave like Allocate(32)")
	}
}

func TestResizeToZeroIsNoop(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p := a.Allocate(32)
	if p == nil {
		t.Fatal("Allocate(32) returned nil")
	}

	if got := a.Resize(p, 0); got != p {
		t.Fatalf("Resize(p, 0) = %p, want unchanged %p", got, p)
	}
}

func TestAllocateManySizesDoNotOverlap(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	sizes := []uintptr{8, 16, 33, 100, 4096, 10000}

	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, s := range sizes {
		ptrs[i] = a.Allocate(s)
		if ptrs[i] == nil {
			t.Fatalf("Allocate(%d) returned nil", s)
		}
	}

	for i, s := range sizes {
		buf := unsafe.Slice((*byte)(ptrs[i]), s)
		for j := range buf {
			buf[j] = byte(i + 1)
		}
	}

	for i, s := range sizes {
		buf := unsafe.Slice((*byte)(ptrs[i]), s)
		for j := range buf {
			if buf[j] != byte(i+1) {
				t.Fatalf("allocation %d corrupted at byte %d", i, j)
			}
		}
	}
}

func TestReleaseReserveDrainsCache(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	p := a.Allocate(32)
	a.Free(p)

	r := a.reg.reserveFor()
	if r.cache == nil {
		t.Fatal("expected the freed chunk to sit in the cache before release")
	}

	a.ReleaseReserve()

	if r.cache != nil {
		t.Fatal("expected ReleaseReserve to drain the cache")
	}
}
