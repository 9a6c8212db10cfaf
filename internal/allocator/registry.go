package allocator

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// registryNode is one entry in the reserve registry: a lock-free,
// insert-only singly linked list. Nodes are appended by CAS onto the
// head and are never removed or freed — the collector walks the list
// without ever needing to worry about a node disappearing underneath
// it (spec.md §4.3).
type registryNode struct {
	reserve *Reserve
	next    *registryNode
}

// registry is the process-wide set of reserves ever created.
type registry struct {
	head atomic.Pointer[registryNode]

	// byGoroutine caches the goroutine-id -> *Reserve mapping so a
	// goroutine's reserve is created and registered only once. The
	// goroutine id itself is still parsed from runtime.Stack on every
	// lookup. This stands in for true thread-local storage, which Go
	// does not expose — see SPEC_FULL.md §5.
	byGoroutine sync.Map // map[uint64]*Reserve
}

// register links a freshly created reserve onto the head of the
// registry via CAS, matching spec.md's push_free_list.
func (reg *registry) register(r *Reserve) {
	node := &registryNode{reserve: r}

	for {
		head := reg.head.Load()
		node.next = head

		if reg.head.CompareAndSwap(head, node) {
			return
		}
	}
}

// forEach walks every registered reserve. Safe to call concurrently
// with register: the list only grows, and nodes already observed are
// never mutated or freed.
func (reg *registry) forEach(fn func(*Reserve)) {
	for node := reg.head.Load(); node != nil; node = node.next {
		fn(node.reserve)
	}
}

// reserveFor returns the Reserve affiliated with the calling
// goroutine, creating and registering one on first use.
func (reg *registry) reserveFor() *Reserve {
	gid := currentGoroutineID()

	if v, ok := reg.byGoroutine.Load(gid); ok {
		return v.(*Reserve)
	}

	r := newReserve()

	// Two goroutines can race to create a reserve for the same id only
	// if the id is reused, which cannot happen while this goroutine is
	// still running it. LoadOrStore still guards against a redundant
	// registration if this function is ever called reentrantly.
	actual, loaded := reg.byGoroutine.LoadOrStore(gid, r)
	if loaded {
		return actual.(*Reserve)
	}

	reg.register(r)

	return r
}

// currentGoroutineID extracts the numeric id Go's runtime assigns the
// calling goroutine by parsing the header line of its own stack trace
// ("goroutine 123 [running]:"). This is the standard public-API
// technique for approximating thread-local identity in Go (see
// DESIGN.md — grounded on the goroutine-id convention the pack's
// joeycumines-go-utilpkg/goroutineid package names). reserveFor calls
// it on every lookup, so every Allocate and Free pays for one short
// runtime.Stack call; only the id -> *Reserve mapping is cached in
// registry.byGoroutine.
func currentGoroutineID() uint64 {
	var buf [64]byte

	n := runtime.Stack(buf[:], false)
	line := buf[:n]

	const prefix = "goroutine "
	if len(line) <= len(prefix) || string(line[:len(prefix)]) != prefix {
		return 0
	}

	line = line[len(prefix):]

	end := 0
	for end < len(line) && line[end] >= '0' && line[end] <= '9' {
		end++
	}

	id, err := strconv.ParseUint(string(line[:end]), 10, 64)
	if err != nil {
		return 0
	}

	return id
}
