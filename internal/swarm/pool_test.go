package swarm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
	"github.com/orchestrator/swarmgate/internal/worker"
)

type poolRunner struct {
	mu        sync.Mutex
	failItems map[string]int // item -> exit code to fail with, on every call
	calls     map[string]int
}

func (r *poolRunner) Run(ctx context.Context, dir, program string, args []string) (string, string, int, error) {
	prompt := args[len(args)-1]
	r.mu.Lock()
	r.calls[prompt]++
	r.mu.Unlock()
	if code, ok := r.failItems[prompt]; ok {
		return "", "bad item", code, nil
	}
	return "ok:" + prompt, "", 0, nil
}

func TestMapItemsAllSucceed(t *testing.T) {
	r := &poolRunner{calls: map[string]int{}}
	inv := worker.NewWithRunner(r)
	agent := config.AgentSpec{ID: "a", Provider: config.ProviderAnthropic}

	results, err := MapItems(context.Background(), inv, agent, "{{item}}", []string{"x", "y"}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %v", results)
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("item %v failed: %v", res.Item, res.Err)
		}
	}
}

func TestMapItemsPartialFailureTolerated(t *testing.T) {
	r := &poolRunner{calls: map[string]int{}, failItems: map[string]int{"bad": 1}}
	inv := worker.NewWithRunner(r)
	agent := config.AgentSpec{ID: "a", Provider: config.ProviderAnthropic}

	results, err := MapItems(context.Background(), inv, agent, "{{item}}", []string{"good", "bad"}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	succeeded, failed := tally(results)
	if succeeded != 1 || failed != 1 {
		t.Fatalf("got succeeded=%d failed=%d", succeeded, failed)
	}
	for _, res := range results {
		if res.Item == "bad" {
			var wf *orcherrors.WorkerFailed
			if !errors.As(res.Err, &wf) {
				t.Fatalf("expected WorkerFailed, got %v", res.Err)
			}
		}
	}
}

func TestMapItemsAllBatchesFailed(t *testing.T) {
	r := &poolRunner{calls: map[string]int{}, failItems: map[string]int{"bad1": 1, "bad2": 1}}
	inv := worker.NewWithRunner(r)
	agent := config.AgentSpec{ID: "a", Provider: config.ProviderAnthropic}

	_, err := MapItems(context.Background(), inv, agent, "{{item}}", []string{"bad1", "bad2"}, 2, nil)
	if err != orcherrors.ErrAllBatchesFailed {
		t.Fatalf("expected ErrAllBatchesFailed, got %v", err)
	}
}

func TestMapItemsRetriesWorkerFailed(t *testing.T) {
	r := &poolRunner{calls: map[string]int{}, failItems: map[string]int{"bad": 1}}
	inv := worker.NewWithRunner(r)
	agent := config.AgentSpec{ID: "a", Provider: config.ProviderAnthropic}

	_, _ = MapItems(context.Background(), inv, agent, "{{item}}", []string{"bad"}, 1, nil)
	if r.calls["bad"] != maxAttempts {
		t.Fatalf("expected exactly %d attempts for a Transient failure, got %d", maxAttempts, r.calls["bad"])
	}
}
