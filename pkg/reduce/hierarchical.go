package reduce

import (
	"context"
	"fmt"
)

// DefaultThreshold and DefaultBatchSize are the spec §4.7(b) defaults:
// "If input count <= threshold (10) ... Else: partition into batches of 5".
const (
	DefaultThreshold = 10
	DefaultBatchSize = 5
)

// CombineFunc merges a batch of per-chunk (or per-batch) summaries into
// one summary, typically via an LLMClient "combine summaries" call.
type CombineFunc[T any] func(ctx context.Context, items []T) (T, error)

// HierarchicalReduce implements spec §4.7(b): if the input count is at or
// below threshold, a single combine call merges everything; otherwise the
// input is partitioned into batches of batchSize, each batch is reduced in
// parallel (bounded by concurrency), and the smaller result list recurses
// until one item remains.
//
// Pure given a pure/deterministic combine: HierarchicalReduce itself holds
// no state beyond its arguments, so it is replayable.
func HierarchicalReduce[T any](
	ctx context.Context,
	items []T,
	combine CombineFunc[T],
	threshold, batchSize, concurrency int,
) (T, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	var zero T

	if len(items) == 0 {
		return zero, nil
	}

	if len(items) == 1 {
		return items[0], nil
	}

	if len(items) <= threshold {
		result, err := combine(ctx, items)
		if err != nil {
			return zero, fmt.Errorf("reduce: combine failed: %w", err)
		}

		return result, nil
	}

	batches := partition(items, batchSize)
	reduced, err := reduceBatchesParallel(ctx, batches, combine, concurrency)
	if err != nil {
		return zero, err
	}

	return HierarchicalReduce(ctx, reduced, combine, threshold, batchSize, concurrency)
}

func partition[T any](items []T, size int) [][]T {
	batches := make([][]T, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}

	return batches
}

func reduceBatchesParallel[T any](
	ctx context.Context,
	batches [][]T,
	combine CombineFunc[T],
	concurrency int,
) ([]T, error) {
	results := make([]T, len(batches))
	errs := make([]error, len(batches))

	sem := make(chan struct{}, concurrency)
	done := make(chan int, len(batches))

	for i, batch := range batches {
		sem <- struct{}{}

		go func(i int, batch []T) {
			defer func() { <-sem }()

			result, err := combine(ctx, batch)
			results[i] = result
			errs[i] = err
			done <- i
		}(i, batch)
	}

	for range batches {
		<-done
	}

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("reduce: batch %d combine failed: %w", i, err)
		}
	}

	return results, nil
}
