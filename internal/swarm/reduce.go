package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/worker"
)

// hierarchicalFanIn bounds how many pieces a single hierarchical-reduce
// invocation folds together before another reduce pass is needed over the
// intermediate summaries (spec §9 design notes).
const hierarchicalFanIn = 20

// Reduce combines mapped item outputs per the SwarmSpec's (no-shuffle)
// reduce strategy (spec §4.4):
//
//   - "concatenate" (default): join every successful item's output as-is.
//   - "summarize": one agent invocation over the concatenation, using
//     reduce.prompt (or a generic default) as the instruction.
//   - "hierarchical": fold outputs in groups of hierarchicalFanIn, reducing
//     each group with one invocation, then reduce the intermediate
//     summaries the same way until one remains.
func Reduce(ctx context.Context, inv *worker.Invoker, reduceAgent config.AgentSpec, spec config.SwarmReduceSpec, results []ItemResult) (string, error) {
	outputs := successfulOutputs(results)
	if len(outputs) == 0 {
		return "", nil
	}

	switch spec.Strategy {
	case "", "concatenate":
		return strings.Join(outputs, "\n\n"), nil
	case "summarize":
		return invokeReduce(ctx, inv, reduceAgent, spec.Prompt, outputs)
	case "hierarchical":
		return hierarchicalReduce(ctx, inv, reduceAgent, spec.Prompt, outputs)
	default:
		return strings.Join(outputs, "\n\n"), nil
	}
}

// ReducePartitions folds each shuffle Partition down to one summary (via
// reducePrompt), then folds the per-partition summaries into a single
// report via mergePrompt — the shuffle phase's own reduce+merge step,
// independent of the top-level SwarmReduceSpec.
func ReducePartitions(ctx context.Context, inv *worker.Invoker, agent config.AgentSpec, reducePrompt, mergePrompt string, partitions []Partition) (string, error) {
	keys := SortedKeys(partitions)
	byKey := map[string][]Partition{}
	for _, p := range partitions {
		byKey[p.Key] = append(byKey[p.Key], p)
	}

	summaries := make([]string, 0, len(keys))
	for _, key := range keys {
		var items []ItemResult
		for _, p := range byKey[key] {
			items = append(items, p.Items...)
		}
		prompt := RenderShuffleReducePrompt(reducePrompt, key, items)
		out, err := inv.Invoke(ctx, worker.Request{
			AgentID:    agent.ID,
			Provider:   agent.Provider,
			Model:      agent.Model,
			WorkingDir: agent.WorkingDirectory,
			Prompt:     prompt,
		})
		if err != nil {
			return "", fmt.Errorf("shuffle reduce for key %q: %w", key, err)
		}
		summaries = append(summaries, fmt.Sprintf("## %s\n\n%s", key, out))
	}

	if mergePrompt == "" {
		mergePrompt = "Merge the following group summaries into one report."
	}
	return invokeReduce(ctx, inv, agent, mergePrompt, summaries)
}

func successfulOutputs(results []ItemResult) []string {
	var outputs []string
	for _, r := range results {
		if r.Err == nil {
			outputs = append(outputs, r.Output)
		}
	}
	return outputs
}

func invokeReduce(ctx context.Context, inv *worker.Invoker, agent config.AgentSpec, prompt string, pieces []string) (string, error) {
	if prompt == "" {
		prompt = "Summarize the following results."
	}
	full := prompt + "\n\n" + strings.Join(pieces, "\n\n")
	return inv.Invoke(ctx, worker.Request{
		AgentID:    agent.ID,
		Provider:   agent.Provider,
		Model:      agent.Model,
		WorkingDir: agent.WorkingDirectory,
		Prompt:     full,
	})
}

func hierarchicalReduce(ctx context.Context, inv *worker.Invoker, agent config.AgentSpec, prompt string, pieces []string) (string, error) {
	current := pieces
	for len(current) > 1 {
		var next []string
		for start := 0; start < len(current); start += hierarchicalFanIn {
			end := start + hierarchicalFanIn
			if end > len(current) {
				end = len(current)
			}
			out, err := invokeReduce(ctx, inv, agent, prompt, current[start:end])
			if err != nil {
				return "", err
			}
			next = append(next, out)
		}
		current = next
	}
	return current[0], nil
}
