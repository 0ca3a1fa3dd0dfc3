package swarm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

func TestResolveInputFromAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.txt")
	if err := os.WriteFile(path, []byte("a\nb\n\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	items, err := ResolveInput(config.SwarmSpec{}, "go", []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %v", items)
	}
}

func TestResolveInputFromInlineJSONArray(t *testing.T) {
	items, err := ResolveInput(config.SwarmSpec{}, `run this: ["x", "y", "z"]`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 || items[0] != `"x"` {
		t.Fatalf("got %v", items)
	}
}

func TestResolveInputInlineJSONArrayBeatsAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.txt")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	items, err := ResolveInput(config.SwarmSpec{}, `run this: ["x", "y"]`, []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0] != `"x"` {
		t.Fatalf("expected inline JSON array to take priority over attachment, got %v", items)
	}
}

func TestResolveInputFromBacktickCommand(t *testing.T) {
	items, err := ResolveInput(config.SwarmSpec{}, "run `printf 'a\\nb\\n'`", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %v", items)
	}
}

func TestResolveInputNoInput(t *testing.T) {
	_, err := ResolveInput(config.SwarmSpec{}, "just a plain message", nil)
	if err != orcherrors.ErrNoInput {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestResolveInputTooManyItems(t *testing.T) {
	spec := config.SwarmSpec{Input: &config.SwarmInputSpec{Command: "seq 1 10001"}}
	_, err := ResolveInput(spec, "go", nil)
	if err != orcherrors.ErrTooManyItems {
		t.Fatalf("expected ErrTooManyItems, got %v", err)
	}
}

func TestSubstituteParamsRepoLimitAndKeyValue(t *testing.T) {
	got := substituteParams("report.sh --repo {{repo}} --limit {{limit}} --severity {{severity}}",
		"triage issues for acme/widgets limit 25 severity=high")
	want := "report.sh --repo 'acme/widgets' --limit '25' --severity 'high'"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSubstituteParamsUnknownKeyBlank(t *testing.T) {
	got := substituteParams("report.sh {{unknown}}", "no matching pair here")
	if got != "report.sh ''" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitBatches(t *testing.T) {
	items := []string{"1", "2", "3", "4", "5"}
	batches := SplitBatches(items, 2)
	if len(batches) != 3 || len(batches[0]) != 2 || len(batches[2]) != 1 {
		t.Fatalf("got %v", batches)
	}
}

func TestSplitBatchesZeroSizeIsOneBatch(t *testing.T) {
	items := []string{"1", "2", "3"}
	batches := SplitBatches(items, 0)
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("got %v", batches)
	}
}
