// Command parheap-bench drives parheap's Allocate/Free/Resize entry
// points under configurable concurrency and prints basic throughput
// and mapped-byte figures.
package main

import (
	"flag"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/orizon-lang/parheap/internal/allocator"
)

func main() {
	goroutines := flag.Int("goroutines", 8, "number of concurrent mutator goroutines")
	iterations := flag.Int("iterations", 100000, "allocate/free iterations per goroutine")
	drainThreshold := flag.Uint64("drain-threshold", allocator.DrainThreshold, "bytes of cached frees before handoff to the collector")
	flag.Parse()

	a, err := allocator.New(allocator.WithDrainThreshold(uintptr(*drainThreshold)))
	if err != nil {
		fmt.Println("failed to construct allocator:", err)

		return
	}
	defer a.Close()

	sizes := []uintptr{8, 24, 64, 256, 4096}

	var wg sync.WaitGroup

	start := time.Now()

	for g := 0; g < *goroutines; g++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer a.ReleaseReserve()

			for i := 0; i < *iterations; i++ {
				size := sizes[i%len(sizes)]

				p := a.Allocate(size)
				if p == nil {
					continue
				}

				buf := unsafe.Slice((*byte)(p), size)
				buf[0] = byte(i)

				a.Free(p)
			}
		}()
	}

	wg.Wait()

	elapsed := time.Since(start)
	total := *goroutines * *iterations

	fmt.Printf("parheap-bench: %d goroutines, %d iterations each\n", *goroutines, *iterations)
	fmt.Printf("  total operations: %d\n", total*2)
	fmt.Printf("  elapsed: %v\n", elapsed)
	fmt.Printf("  throughput: %.0f ops/sec\n", float64(total*2)/elapsed.Seconds())

	stats := a.Stats()
	fmt.Printf("  mapped bytes: %d\n", stats.MappedBytes)
	fmt.Printf("  configured memory limit: %d\n", stats.ConfiguredMemoryLimit)
}
