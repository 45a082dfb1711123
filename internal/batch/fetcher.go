// Package batch provides bounded-concurrency fan-out over a list of
// tickers, matching the worker-pool pattern used elsewhere in this project:
// a fixed goroutine count draining a jobs channel and publishing indexed
// results, with admission to any shared rate-limited resource serialized
// by the operation itself (not by this package).
package batch

import (
	"sync"

	"github.com/rs/zerolog"
)

// Operation is a per-ticker fetch. It is expected to apply its own rate
// limiting and retry policy internally; this package only
// bounds concurrency and aggregates results.
type Operation[T any] func(ticker string) (T, error)

// Fetcher runs an Operation across many tickers with a fixed worker count.
type Fetcher[T any] struct {
	Workers         int
	ProgressEvery   int // report every N completions; 0 disables reporting
	Log             zerolog.Logger
}

// New builds a Fetcher with the given worker count (minimum 1).
func New[T any](workers int, log zerolog.Logger) *Fetcher[T] {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher[T]{Workers: workers, ProgressEvery: 25, Log: log}
}

type job struct {
	index  int
	ticker string
}

type outcome[T any] struct {
	index  int
	ticker string
	value  T
	err    error
}

// Run fans op out across tickers with f.Workers goroutines. Per-ticker
// failures are logged and excluded from the returned map.
func (f *Fetcher[T]) Run(tickers []string, op Operation[T]) map[string]T {
	n := len(tickers)
	results := make(map[string]T, n)
	if n == 0 {
		return results
	}

	workers := f.Workers
	if n < workers {
		workers = n
	}

	jobs := make(chan job, n)
	outcomes := make(chan outcome[T], n)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				v, err := op(j.ticker)
				outcomes <- outcome[T]{index: j.index, ticker: j.ticker, value: v, err: err}
			}
		}()
	}

	for idx, ticker := range tickers {
		jobs <- job{index: idx, ticker: ticker}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	completed := 0
	for o := range outcomes {
		completed++
		if o.err != nil {
			f.Log.Warn().Err(o.err).Str("ticker", o.ticker).Msg("batch operation failed, excluding from results")
		} else {
			results[o.ticker] = o.value
		}
		if f.ProgressEvery > 0 && completed%f.ProgressEvery == 0 {
			f.Log.Info().Int("completed", completed).Int("total", n).Msg("batch fetch progress")
		}
	}

	return results
}
