package dynamo

import (
	"runtime"
	"sync"
)

// ParallelFor executes fn over [0, n) split into contiguous chunks of at
// least minChunk indices, one goroutine per chunk.
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	minChunk = max(minChunk, 1)
	workers := min(runtime.NumCPU(), n/minChunk)
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(start, min(start+chunk, n))
	}
	wg.Wait()
}
