// Package parallel splits sample ranges across worker goroutines.
//
// Kernels in internal/ann are single-threaded and never share state, so
// callers parallelize by giving every worker its own buffers and handing
// it a contiguous range of samples.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 16,
	}
}

// Workers returns how many distinct worker indices Chunks passes to f
// for n items. Callers size per-worker state with it.
func (c Config) Workers(n int) int {
	if !c.Enabled || c.NumWorkers <= 1 || n < 2*max(c.MinChunkSize, 1) {
		return 1
	}
	return min(c.NumWorkers, n/max(c.MinChunkSize, 1))
}

// Chunks calls f(worker, start, end) over contiguous ranges covering [0, n)
// and waits for all of them. worker is in [0, cfg.Workers(n)) and no two
// concurrent calls share it. Falls back to one sequential call when
// parallelism is disabled or n is too small.
func Chunks(n int, f func(worker, start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := cfg.Workers(n)
	if workers == 1 {
		f(0, 0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers
	for w := range workers {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(w, start, end)
		}()
	}
	wg.Wait()
}
