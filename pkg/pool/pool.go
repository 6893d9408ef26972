package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// MapFunc processes one item into a result.
type MapFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result pairs an item's output with its error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over items with numWorkers goroutines. The results line up
// with items by index. Items never started because ctx ended carry ctx.Err().
func Map[T, R any](ctx context.Context, items []T, numWorkers int, fn MapFunc[T, R]) []Result[R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	results := make([]Result[R], len(items))
	started := make([]bool, len(items))
	indexes := make(chan int, numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				if ctx.Err() != nil {
					continue
				}
				started[idx] = true
				v, err := fn(ctx, items[idx])
				results[idx] = Result[R]{Value: v, Err: err}
			}
		}()
	}

OUT:
	for idx := range items {
		select {
		case indexes <- idx:
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(indexes)
	wg.Wait()

	for idx := range results {
		if !started[idx] {
			results[idx].Err = ctx.Err()
		}
	}
	return results
}

// Run executes workerFunc over items and returns the errors in item order.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	results := Map(ctx, items, numWorkers, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, workerFunc(ctx, item)
	})
	var allErrors []error
	for _, r := range results {
		if r.Err != nil {
			allErrors = append(allErrors, r.Err)
		}
	}
	return allErrors
}
