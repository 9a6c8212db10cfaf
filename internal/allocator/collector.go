package allocator

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"
)

// collector is the single dedicated background worker described in
// spec.md §4.6: it waits for a coalescing wakeup, drains every
// reserve's handoff queue, merges the drained chunks into an
// address-sorted, adjacency-coalesced accumulator, re-sorts that
// accumulator by size descending, and publishes it to the global
// heap. Lifecycle (start/stop) is supervised by an errgroup so a host
// embedding parheap can shut it down deterministically.
type collector struct {
	mu   sync.Mutex
	cond *sync.Cond

	awakenings atomic.Uint64

	heap *globalHeap
	reg  *registry

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

func newCollector(heap *globalHeap, reg *registry) *collector {
	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{heap: heap, reg: reg, ctx: ctx, cancel: cancel}
	c.cond = sync.NewCond(&c.mu)

	return c
}

// start launches the collector goroutine. Called at most once, lazily,
// from the allocation front-end's sync.Once (policy.go).
func (c *collector) start() {
	g, ctx := errgroup.WithContext(c.ctx)
	c.group = g
	g.Go(func() error {
		c.loop(ctx)

		return nil
	})
}

// wake performs the coalescing-wakeup signal from spec.md §5: an
// atomic increment paired with a condition-variable signal. Many
// signals delivered before the collector wakes collapse into a single
// pass, since the collector resets the counter to zero and re-checks.
func (c *collector) wake() {
	c.awakenings.Add(1)

	c.mu.Lock()
	c.cond.Signal()
	c.mu.Unlock()
}

// close cancels the collector's context and wakes it so it can observe
// the cancellation, then waits for it to exit.
func (c *collector) close() {
	c.cancel()

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()

	if c.group != nil {
		_ = c.group.Wait()
	}
}

// loop is spec.md §4.6's cleanup loop.
func (c *collector) loop(ctx context.Context) {
	var accumulator *chunk

	for {
		c.mu.Lock()
		for c.awakenings.Load() == 0 {
			if ctx.Err() != nil {
				c.mu.Unlock()

				return
			}

			c.cond.Wait()
		}
		c.awakenings.Store(0)
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		c.reg.forEach(func(r *Reserve) {
			toInsert := r.detachQueue()
			for toInsert != nil {
				next := chunkNext(toInsert)
				accumulator = insertCoalesced(accumulator, toInsert)
				toInsert = next
			}
		})

		sorted := sortBySizeDesc(accumulator)
		// The previously published heap is folded into *this*
		// goroutine's next cycle, not discarded — spec.md §4.6 step 5.
		accumulator = c.heap.publish(sorted)
	}
}

// addrLess orders chunks by their own address, the ordering the
// collector's accumulator is built in.
func addrLess(a, b *chunk) bool {
	return uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b))
}

// insertCoalesced inserts x into the address-ordered accumulator
// headed by deleted, coalescing with whichever neighbors it touches.
// Matches spec.md §4.6 step 3 exactly, including the three-way merge
// when x bridges its predecessor and successor.
func insertCoalesced(deleted, x *chunk) *chunk {
	if deleted == nil {
		setChunkNext(x, nil)

		return x
	}

	if addrLess(x, deleted) {
		if coalescable(x, deleted) {
			setChunkSize(x, chunkSize(x)+chunkSize(deleted))
			setChunkNext(x, chunkNext(deleted))
		} else {
			setChunkNext(x, deleted)
		}

		return x
	}

	prev := deleted
	head := chunkNext(deleted)

	for head != nil && !addrLess(x, head) {
		prev = head
		head = chunkNext(head)
	}

	switch {
	case head == nil:
		if coalescable(prev, x) {
			setChunkSize(prev, chunkSize(prev)+chunkSize(x))
		} else {
			setChunkNext(prev, x)
			setChunkNext(x, nil)
		}
	case coalescable(x, head) && coalescable(prev, x):
		setChunkSize(prev, chunkSize(prev)+chunkSize(x)+chunkSize(head))
		setChunkNext(prev, chunkNext(head))
	case coalescable(x, head):
		setChunkSize(x, chunkSize(x)+chunkSize(head))
		setChunkNext(x, chunkNext(head))
		setChunkNext(prev, x)
	case coalescable(prev, x):
		setChunkSize(prev, chunkSize(prev)+chunkSize(x))
	default:
		setChunkNext(x, head)
		setChunkNext(prev, x)
	}

	return deleted
}

// sortBySizeDesc is a top-down merge sort over the intrusive free
// list, ordering by size descending so the global heap's head is
// always its largest chunk (spec.md §4.6 step 4).
func sortBySizeDesc(head *chunk) *chunk {
	if head == nil || chunkNext(head) == nil {
		return head
	}

	slow, fast := head, chunkNext(head)
	for fast != nil {
		fast = chunkNext(fast)
		if fast != nil {
			slow = chunkNext(slow)
			fast = chunkNext(fast)
		}
	}

	secondHalf := chunkNext(slow)
	setChunkNext(slow, nil)

	return mergeBySizeDesc(sortBySizeDesc(head), sortBySizeDesc(secondHalf))
}

func mergeBySizeDesc(a, b *chunk) *chunk {
	var head, tail *chunk

	link := func(n *chunk) {
		if head == nil {
			head = n
		} else {
			setChunkNext(tail, n)
		}

		tail = n
	}

	for a != nil && b != nil {
		if chunkSize(a) >= chunkSize(b) {
			next := chunkNext(a)
			link(a)
			a = next
		} else {
			next := chunkNext(b)
			link(b)
			b = next
		}
	}

	for a != nil {
		next := chunkNext(a)
		link(a)
		a = next
	}

	for b != nil {
		next := chunkNext(b)
		link(b)
		b = next
	}

	if tail != nil {
		setChunkNext(tail, nil)
	}

	return head
}
