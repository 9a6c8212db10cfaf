package allocator

import (
	"testing"
	"unsafe"
)

// rawBuf returns a pointer-aligned scratch buffer of at least n bytes,
// suitable for overlaying chunk headers in tests. A plain []byte does
// not carry the alignment guarantee chunk's uintptr fields need.
func rawBuf(n int) unsafe.Pointer {
	words := make([]uintptr, (n+int(unsafe.Sizeof(uintptr(0)))-1)/int(unsafe.Sizeof(uintptr(0))))

	return unsafe.Pointer(&words[0])
}

func TestRoundUp(t *testing.T) {
	cases := []struct{ n, to, want uintptr }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
	}

	for _, c := range cases {
		if got := roundUp(c.n, c.to); got != c.want {
			t.Errorf("roundUp(%d,%d) = %d, want %d", c.n, c.to, got, c.want)
		}
	}
}

func TestNeededFor(t *testing.T) {
	cases := []struct{ bytes, want uintptr }{
		{0, 16},
		{1, 32},
		{16, 32},
		{17, 48},
		{100, 128},
	}

	for _, c := range cases {
		if got := neededFor(c.bytes); got != c.want {
			t.Errorf("neededFor(%d) = %d, want %d", c.bytes, got, c.want)
		}
	}
}

func TestPayloadChunkOfRoundTrip(t *testing.T) {
	buf := rawBuf(64)
	c := chunkAt(buf)
	setChunkSize(c, 64)

	p := payload(c)
	if back := chunkOf(p); back != c {
		t.Fatalf("chunkOf(payload(c)) = %p, want %p", back, c)
	}

	if uintptr(p)-uintptr(buf) != HeaderSize {
		t.Fatalf("payload offset = %d, want %d", uintptr(p)-uintptr(buf), HeaderSize)
	}
}

func TestCoalescable(t *testing.T) {
	buf := rawBuf(128)
	a := chunkAt(buf)
	setChunkSize(a, 32)

	adjacent := chunkAt(unsafe.Add(buf, 32))
	setChunkSize(adjacent, 32)

	gap := chunkAt(unsafe.Add(buf, 64))
	setChunkSize(gap, 32)

	if !coalescable(a, adjacent) {
		t.Error("expected adjacent chunks to be coalescable")
	}

	if coalescable(a, gap) {
		t.Error("expected non-adjacent chunks to not be coalescable")
	}
}

func TestChunkNextRoundTrip(t *testing.T) {
	buf := rawBuf(64)
	a := chunkAt(buf)
	setChunkSize(a, 32)

	b := chunkAt(unsafe.Add(buf, 32))
	setChunkSize(b, 32)

	setChunkNext(a, b)

	if chunkNext(a) != b {
		t.Fatalf("chunkNext(a) = %p, want %p", chunkNext(a), b)
	}

	setChunkNext(a, nil)

	if chunkNext(a) != nil {
		t.Fatalf("chunkNext(a) = %p, want nil", chunkNext(a))
	}
}

func TestCopyMemory(t *testing.T) {
	src := rawBuf(16)
	dst := rawBuf(16)

	srcBytes := unsafe.Slice((*byte)(src), 16)
	for i := range srcBytes {
		srcBytes[i] = byte(i + 1)
	}

	copyMemory(dst, src, 16)

	dstBytes := unsafe.Slice((*byte)(dst), 16)
	for i := range dstBytes {
		if dstBytes[i] != byte(i+1) {
			t.Fatalf("byte %d = %d, want %d", i, dstBytes[i], i+1)
		}
	}
}
