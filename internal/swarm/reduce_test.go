package swarm

import (
	"context"
	"testing"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/worker"
)

type echoRunner struct{}

func (echoRunner) Run(ctx context.Context, dir, program string, args []string) (string, string, int, error) {
	return "reduced:" + args[len(args)-1], "", 0, nil
}

func TestReduceConcatenate(t *testing.T) {
	results := []ItemResult{{Output: "a"}, {Output: "b"}, {Err: assertErr()}}
	out, err := Reduce(context.Background(), worker.NewWithRunner(echoRunner{}), config.AgentSpec{}, config.SwarmReduceSpec{Strategy: "concatenate"}, results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a\n\nb" {
		t.Fatalf("got %q", out)
	}
}

func TestReduceSummarizeInvokesAgent(t *testing.T) {
	results := []ItemResult{{Output: "a"}, {Output: "b"}}
	out, err := Reduce(context.Background(), worker.NewWithRunner(echoRunner{}), config.AgentSpec{Provider: config.ProviderAnthropic}, config.SwarmReduceSpec{Strategy: "summarize", Prompt: "sum up"}, results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[:8] != "reduced:" {
		t.Fatalf("got %q", out)
	}
}

func TestReducePartitionsFoldsThenMerges(t *testing.T) {
	partitions := []Partition{
		{Key: "red", Items: []ItemResult{{Output: "r1"}}},
		{Key: "blue", Items: []ItemResult{{Output: "b1"}}},
	}
	out, err := ReducePartitions(context.Background(), worker.NewWithRunner(echoRunner{}), config.AgentSpec{Provider: config.ProviderAnthropic}, "reduce group", "merge groups", partitions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[:8] != "reduced:" {
		t.Fatalf("got %q", out)
	}
}

func assertErr() error {
	return errTest
}

var errTest = &testErr{}

type testErr struct{}

func (e *testErr) Error() string { return "boom" }
