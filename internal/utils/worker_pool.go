package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type CompletedTask[In any, Out any] struct {
	Input  In
	Result Out
	Error  error
}

// RunInPool runs worker over items with at most maxWorkers in flight and
// returns one CompletedTask per item, in the order of items. A failing item
// does not stop the others. Items not yet started when ctx is done are
// reported with the context's error.
func RunInPool[In any, Out any](ctx context.Context, items []In, maxWorkers int, worker func(context.Context, In) (Out, error)) []CompletedTask[In, Out] {
	results := make([]CompletedTask[In, Out], len(items))

	var group errgroup.Group
	group.SetLimit(max(maxWorkers, 1))

	for i, item := range items {
		results[i].Input = item
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				return nil
			}
			results[i].Result, results[i].Error = worker(ctx, item)
			return nil
		})
	}

	_ = group.Wait()
	return results
}

// Failures returns the tasks that ended in an error.
func Failures[In any, Out any](tasks []CompletedTask[In, Out]) []CompletedTask[In, Out] {
	var failed []CompletedTask[In, Out]
	for _, task := range tasks {
		if task.Error != nil {
			failed = append(failed, task)
		}
	}
	return failed
}
