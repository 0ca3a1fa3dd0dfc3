package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
	"github.com/orchestrator/swarmgate/internal/worker"
)

// maxAttempts bounds per-item attempts. Only Transient failures (a
// WorkerFailed: the worker ran and exited nonzero) are retried; any other
// error (the worker could not be launched) and a cancelled or expired
// context end the item's attempts at once (spec §7).
const maxAttempts = 3

// ProgressFunc is invoked after every completed item with the running
// count and the total for the current MapItems call; the engine's reporter
// turns that into a progress event every SwarmSpec.ProgressInterval items.
type ProgressFunc func(completed, total int)

// MapItems runs agent over every item in items using a bounded worker pool
// sized at concurrency, retrying Transient failures up to maxAttempts, and
// reporting progress via onProgress. It tolerates partial failure: an item
// that never succeeds is recorded with its last error, and MapItems only
// returns orcherrors.ErrAllBatchesFailed if every single item failed.
func MapItems(ctx context.Context, inv *worker.Invoker, agent config.AgentSpec, promptTemplate string, items []string, concurrency int, onProgress ProgressFunc) ([]ItemResult, error) {
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make([]ItemResult, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var completed int64

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item string) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = mapOne(ctx, inv, agent, promptTemplate, i, item)

			n := atomic.AddInt64(&completed, 1)
			if onProgress != nil {
				onProgress(int(n), len(items))
			}
		}(i, item)
	}
	wg.Wait()

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	if failures == len(results) && len(results) > 0 {
		return results, orcherrors.ErrAllBatchesFailed
	}
	return results, nil
}

func mapOne(ctx context.Context, inv *worker.Invoker, agent config.AgentSpec, promptTemplate string, index int, item string) ItemResult {
	prompt := RenderPrompt(promptTemplate, item)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := inv.Invoke(ctx, worker.Request{
			AgentID:    agent.ID,
			Provider:   agent.Provider,
			Model:      agent.Model,
			WorkingDir: agent.WorkingDirectory,
			Prompt:     prompt,
		})
		if err == nil {
			return ItemResult{Index: index, Item: item, Output: out, Attempt: attempt}
		}
		lastErr = err

		var wf *orcherrors.WorkerFailed
		if !errors.As(err, &wf) {
			break // not a worker exit (e.g. launch failure): retrying won't help
		}
		if ctx.Err() != nil {
			break // context cancelled/deadline: no point retrying
		}
	}
	return ItemResult{Index: index, Item: item, Err: lastErr, Attempt: maxAttempts}
}
