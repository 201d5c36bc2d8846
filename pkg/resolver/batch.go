package resolver

import (
	"context"
	"runtime"
	"sync"

	"github.com/devicelab-dev/uiresolve/pkg/selector"
)

// Target is one named entry of a batch.
type Target struct {
	Name string        `yaml:"name" json:"name"`
	Spec selector.Spec `yaml:"target" json:"target"`
}

// BatchResult is the outcome for one Target, in input order.
type BatchResult struct {
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
	Error  string  `json:"error,omitempty"`
}

// workItem represents a target and its index in the original list.
type workItem struct {
	target Target
	index  int
}

// ResolveBatch resolves targets against one snapshot using a pool of
// workers pulling from a shared queue. The tree is built once and shared
// through the cache. Targets not started before ctx is done get ctx.Err().
func (r *Resolver) ResolveBatch(ctx context.Context, snapshot string, targets []Target, cfg Config, workers int) []BatchResult {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(targets))

	workQueue := make(chan workItem, len(targets))
	for i, t := range targets {
		workQueue <- workItem{target: t, index: i}
	}
	close(workQueue)

	results := make([]BatchResult, len(targets))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workQueue {
				br := BatchResult{Name: item.target.Name}
				if err := ctx.Err(); err != nil {
					br.Err = err
				} else {
					br.Result, br.Err = r.Resolve(snapshot, item.target.Spec, cfg)
				}
				if br.Err != nil {
					br.Error = br.Err.Error()
				}
				// Each index is written by exactly one worker
				results[item.index] = br
			}
		}()
	}

	wg.Wait()
	return results
}
