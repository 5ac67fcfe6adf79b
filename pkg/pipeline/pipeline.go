// Package pipeline implements the Pipeline Executor (spec §4.6): the map
// phase that runs a map function over all chunks with bounded concurrency,
// per-chunk retry with exponential backoff, degraded fallback, checkpointed
// resumability, and cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quillforge/modelrouter/pkg/checkpoint"
	"github.com/quillforge/modelrouter/pkg/chunk"
	"github.com/quillforge/modelrouter/pkg/observability"
)

// DefaultConcurrency is the spec-mandated default worker pool size
// ("semaphore caps active tasks at concurrency (default 3)").
const DefaultConcurrency = 3

// MapFunc performs the per-chunk work, e.g. an LLM extraction call.
type MapFunc[R any] func(ctx context.Context, c chunk.Chunk) (R, error)

// FallbackFunc produces a degraded result for a chunk whose primary map
// function exhausted its retries. A FallbackFunc that itself returns an
// error means the chunk has no recoverable result at all.
type FallbackFunc[R any] func(c chunk.Chunk, cause error) (R, error)

// Policy bounds one Run call's retry/concurrency behavior.
type Policy[R any] struct {
	Concurrency int
	MaxRetries  int
	BaseDelay   time.Duration
	Fallback    FallbackFunc[R]
}

func (p Policy[R]) withDefaults() Policy[R] {
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}

	return p
}

// Executor runs the map phase, checkpointing to a checkpoint.Manager[R].
type Executor[R any] struct {
	manager *checkpoint.Manager[R]
	metrics *observability.PipelineMetrics
}

// New creates an Executor. metrics may be nil (all recorder calls become
// no-ops, per PipelineMetrics' nil-receiver contract).
func New[R any](manager *checkpoint.Manager[R], metrics *observability.PipelineMetrics) *Executor[R] {
	return &Executor[R]{manager: manager, metrics: metrics}
}

// Run executes mapFn over chunks under policy, resuming from any existing
// checkpoint matching fingerprint. Completed chunks are skipped; failed
// chunks from a prior run are retried (spec §4.6: "default behavior is to
// retry failed ones"). Returns the final ProcessingState, which is also
// the last state persisted to the checkpoint manager.
func (e *Executor[R]) Run(
	ctx context.Context,
	fingerprint string,
	chunks []chunk.Chunk,
	mapFn MapFunc[R],
	policy Policy[R],
) (*checkpoint.ProcessingState[R], error) {
	policy = policy.withDefaults()

	state, err := e.loadOrInit(fingerprint, len(chunks))
	if err != nil {
		return nil, err
	}

	var (
		stateMu sync.Mutex
		wg      sync.WaitGroup
	)

	sem := make(chan struct{}, policy.Concurrency)

	for _, c := range chunks {
		stateMu.Lock()
		resolved := state.Completed[c.Index]
		stateMu.Unlock()

		if resolved {
			continue
		}

		if ctx.Err() != nil {
			break // Cancellation: stop dispatching new chunks.
		}

		wg.Add(1)

		go func(c chunk.Chunk) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			e.runChunk(ctx, c, mapFn, policy, state, &stateMu)
		}(c)
	}

	wg.Wait()

	stateMu.Lock()
	saveErr := e.manager.Save(state)
	stateMu.Unlock()

	if saveErr != nil {
		// Checkpoint write errors are never fatal (spec §7): logged by the
		// caller via the returned error wrapper, but the run's results stand.
		return state, fmt.Errorf("pipeline: final checkpoint write failed: %w", saveErr)
	}

	return state, nil
}

func (e *Executor[R]) loadOrInit(fingerprint string, total int) (*checkpoint.ProcessingState[R], error) {
	existing, err := e.manager.Load(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load checkpoint: %w", err)
	}

	if existing != nil {
		return existing, nil
	}

	return checkpoint.NewState[R](fingerprint, total, time.Now().Unix()), nil
}

// runChunk executes one chunk's full retry/fallback lifecycle and records
// its terminal outcome to state, writing a checkpoint after every terminal
// outcome (spec §4.6: "Written after every terminal outcome per chunk").
func (e *Executor[R]) runChunk(
	ctx context.Context,
	c chunk.Chunk,
	mapFn MapFunc[R],
	policy Policy[R],
	state *checkpoint.ProcessingState[R],
	stateMu *sync.Mutex,
) {
	start := time.Now()

	result, attemptErr := e.attempt(ctx, c, mapFn, policy)

	if attemptErr == nil {
		e.commitCompleted(c, result, state, stateMu)
		e.metrics.RecordChunk(ctx, "completed", time.Since(start))

		return
	}

	if errors.Is(attemptErr, context.Canceled) || errors.Is(attemptErr, context.DeadlineExceeded) {
		// Cancellation aborts the chunk without a terminal outcome, so a
		// future resume retries it rather than treating it as failed.
		return
	}

	if policy.Fallback != nil {
		fallbackResult, fallbackErr := policy.Fallback(c, attemptErr)
		if fallbackErr == nil {
			e.commitCompleted(c, fallbackResult, state, stateMu)
			e.metrics.RecordFallback(ctx)
			e.metrics.RecordChunk(ctx, "completed", time.Since(start))

			return
		}
	}

	e.commitFailed(c, state, stateMu)
	e.metrics.RecordChunk(ctx, "failed", time.Since(start))
}

// attempt runs mapFn with retry-with-exponential-backoff up to
// policy.MaxRetries additional attempts after the first.
func (e *Executor[R]) attempt(ctx context.Context, c chunk.Chunk, mapFn MapFunc[R], policy Policy[R]) (R, error) {
	var (
		result R
		lastErr error
	)

	for try := 0; try <= policy.MaxRetries; try++ {
		if ctx.Err() != nil {
			var zero R

			return zero, ctx.Err()
		}

		result, lastErr = mapFn(ctx, c)
		if lastErr == nil {
			return result, nil
		}

		if try == policy.MaxRetries {
			break
		}

		e.metrics.RecordRetry(ctx)

		delay := policy.BaseDelay * time.Duration(1<<uint(try))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			var zero R

			return zero, ctx.Err()
		}
	}

	var zero R

	return zero, errors.Join(errSourceExhausted, lastErr)
}

// errSourceExhausted marks an error as having exhausted all retries.
var errSourceExhausted = errors.New("pipeline: retries exhausted")

func (e *Executor[R]) commitCompleted(c chunk.Chunk, result R, state *checkpoint.ProcessingState[R], mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()

	state.MarkCompleted(c.Index, result, time.Now().Unix())
	_ = e.manager.Save(state)
}

func (e *Executor[R]) commitFailed(c chunk.Chunk, state *checkpoint.ProcessingState[R], mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()

	state.MarkFailed(c.Index, time.Now().Unix())
	_ = e.manager.Save(state)
}
