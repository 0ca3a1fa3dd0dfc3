package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/events"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
	"github.com/orchestrator/swarmgate/internal/worker"
	"github.com/orchestrator/swarmgate/pkg/protocol"
)

// Engine runs SwarmSpecs end to end: input resolution, batch split, the
// mapped worker pool, optional shuffle, reduce, and output rendering.
type Engine struct {
	cfg          *config.Config
	invoker      *worker.Invoker
	sink         *events.Sink
	workspaceDir string
}

// New builds an Engine.
func New(cfg *config.Config, invoker *worker.Invoker, sink *events.Sink, workspaceDir string) *Engine {
	return &Engine{cfg: cfg, invoker: invoker, sink: sink, workspaceDir: workspaceDir}
}

// Run executes spec against message/attachments and returns the rendered
// Output, or an error for a swarm that could not even start (bad input,
// unknown agent). A swarm where every mapped item failed produces no
// Output: Run returns orcherrors.ErrAllBatchesFailed.
func (e *Engine) Run(ctx context.Context, spec config.SwarmSpec, message string, attachments []string) (Output, error) {
	jobID := uuid.NewString()
	started := time.Now()
	e.sink.Info("swarm", protocol.EventSwarmJobStart, map[string]interface{}{"job_id": jobID, "swarm_id": spec.ID})

	agent, ok := e.cfg.AgentByID(spec.Agent)
	if !ok {
		return Output{}, fmt.Errorf("swarm %s: unknown agent %q", spec.ID, spec.Agent)
	}

	items, err := ResolveInput(spec, message, attachments)
	if err != nil {
		e.sink.Warn("swarm", protocol.EventSwarmJobFailed, map[string]interface{}{"job_id": jobID, "error": err.Error()})
		return Output{}, err
	}

	batches := SplitBatches(items, spec.BatchSize)
	e.sink.Info("swarm", protocol.EventSwarmSplitDone, map[string]interface{}{
		"job_id": jobID, "items": len(items), "batches": len(batches),
	})

	var allResults []ItemResult
	for bi, batch := range batches {
		onProgress := e.progressReporter(jobID, spec.ProgressInterval, bi, len(batches))
		results, err := MapItems(ctx, e.invoker, agent, spec.PromptTemplate, batch, spec.Concurrency, onProgress)
		if err != nil && len(batches) == 1 {
			// A lone batch that fails entirely surfaces AllBatchesFailed;
			// with more than one batch, partial progress still counts.
			e.sink.Warn("swarm", protocol.EventSwarmJobFailed, map[string]interface{}{"job_id": jobID, "error": err.Error()})
		}
		allResults = append(allResults, results...)
	}

	succeeded, failed := tally(allResults)
	if succeeded == 0 {
		e.sink.Warn("swarm", protocol.EventSwarmJobFailed, map[string]interface{}{"job_id": jobID})
		return Output{}, orcherrors.ErrAllBatchesFailed
	}

	var report string
	if spec.Shuffle != nil {
		report, err = e.shuffleAndReduce(ctx, jobID, spec, agent, allResults)
	} else {
		report, err = Reduce(ctx, e.invoker, reduceAgentFor(e.cfg, spec, agent), reduceSpecFor(spec), allResults)
	}
	if err != nil {
		e.sink.Warn("swarm", protocol.EventSwarmJobFailed, map[string]interface{}{"job_id": jobID, "error": err.Error()})
		return Output{}, err
	}

	out, err := RenderOutput(e.workspaceDir, jobID, len(items), succeeded, failed, report)
	if err != nil {
		return Output{}, err
	}

	e.sink.Info("swarm", protocol.EventSwarmJobDone, map[string]interface{}{
		"job_id": jobID, "succeeded": succeeded, "failed": failed,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return out, nil
}

func (e *Engine) shuffleAndReduce(ctx context.Context, jobID string, spec config.SwarmSpec, agent config.AgentSpec, results []ItemResult) (string, error) {
	partitions := GroupByKey(results, spec.Shuffle.KeyField, spec.Shuffle.MultiKey)
	partitions = SplitOversized(partitions, spec.Shuffle.MaxPartitionSize)
	e.sink.Info("swarm", protocol.EventSwarmShuffleDone, map[string]interface{}{
		"job_id": jobID, "partitions": len(partitions),
	})

	e.sink.Info("swarm", protocol.EventSwarmShuffleReduceStart, map[string]interface{}{"job_id": jobID})
	report, err := ReducePartitions(ctx, e.invoker, agent, spec.Shuffle.ReducePrompt, spec.Shuffle.MergePrompt, partitions)
	if err != nil {
		return "", err
	}
	e.sink.Info("swarm", protocol.EventSwarmShuffleReduceDone, map[string]interface{}{"job_id": jobID})
	return report, nil
}

// progressReporter builds a ProgressFunc that emits a swarm_progress event
// every interval completed items within batch batchIndex (of nBatches),
// counted from the start of that batch, and once more when the batch
// completes; it returns nil if progress reporting is disabled (interval <= 0).
func (e *Engine) progressReporter(jobID string, interval, batchIndex, nBatches int) ProgressFunc {
	if interval <= 0 {
		return nil
	}
	return func(completed, total int) {
		if completed%interval != 0 && completed != total {
			return
		}
		e.sink.Info("swarm", "swarm_progress", map[string]interface{}{
			"job_id": jobID, "batch": batchIndex + 1, "of_batches": nBatches,
			"completed": completed, "total": total,
		})
	}
}

func tally(results []ItemResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return
}

// reduceAgentFor resolves the agent that performs the no-shuffle reduce:
// reduce.agent if set, otherwise the swarm's own mapping agent.
func reduceAgentFor(cfg *config.Config, spec config.SwarmSpec, mapAgent config.AgentSpec) config.AgentSpec {
	if spec.Reduce != nil && spec.Reduce.Agent != "" {
		if a, ok := cfg.AgentByID(spec.Reduce.Agent); ok {
			return a
		}
	}
	return mapAgent
}

func reduceSpecFor(spec config.SwarmSpec) config.SwarmReduceSpec {
	if spec.Reduce != nil {
		return *spec.Reduce
	}
	return config.SwarmReduceSpec{Strategy: "concatenate"}
}
