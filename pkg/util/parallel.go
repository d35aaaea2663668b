package util

import (
	"context"
	"errors"
	"sync"
)

// Parallel runs fn over inputs with at most workerLimit calls in flight.
// A failing item does not stop the others; all errors are joined. Items not
// yet started when ctx is done are skipped and ctx.Err() is reported once.
func Parallel[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if workerLimit <= 0 {
		workerLimit = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	tasks := make(chan T)
	for i := 0; i < min(workerLimit, len(inputs)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				if err := fn(ctx, item); err != nil {
					fail(err)
				}
			}
		}()
	}

feed:
	for _, item := range inputs {
		select {
		case <-ctx.Done():
			fail(ctx.Err())
			break feed
		case tasks <- item:
		}
	}
	close(tasks)
	wg.Wait()

	return errors.Join(errs...)
}
