package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

type stubRunner struct {
	stdout, stderr string
	exitCode       int
	err            error
	gotProgram     string
	gotArgs        []string
}

func (s *stubRunner) Run(ctx context.Context, dir, program string, args []string) (string, string, int, error) {
	s.gotProgram = program
	s.gotArgs = args
	return s.stdout, s.stderr, s.exitCode, s.err
}

func TestInvokeAnthropic(t *testing.T) {
	r := &stubRunner{stdout: "hello back"}
	inv := NewWithRunner(r)

	out, err := inv.Invoke(context.Background(), Request{
		Provider: config.ProviderAnthropic,
		Model:    "claude-x",
		Prompt:   "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello back" {
		t.Fatalf("got %q", out)
	}
	if r.gotProgram != "claude" {
		t.Fatalf("program = %q", r.gotProgram)
	}
	joined := strings.Join(r.gotArgs, " ")
	if !strings.Contains(joined, "--model claude-x") || strings.Contains(joined, "-c ") {
		t.Fatalf("args = %v", r.gotArgs)
	}
}

func TestInvokeAnthropicContinue(t *testing.T) {
	r := &stubRunner{stdout: "ok"}
	inv := NewWithRunner(r)
	_, err := inv.Invoke(context.Background(), Request{
		Provider: config.ProviderAnthropic,
		Prompt:   "hi",
		Continue: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, a := range r.gotArgs {
		if a == "-c" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected -c in args, got %v", r.gotArgs)
	}
}

func TestInvokeOpenAIParsesLastAgentMessage(t *testing.T) {
	stdout := `{"type":"item.started","item":{"type":"agent_message"}}
{"type":"item.completed","item":{"type":"agent_message","text":"first"}}
{"type":"item.completed","item":{"type":"reasoning","text":"ignored"}}
{"type":"item.completed","item":{"type":"agent_message","text":"final answer"}}`
	r := &stubRunner{stdout: stdout}
	inv := NewWithRunner(r)

	out, err := inv.Invoke(context.Background(), Request{
		Provider: config.ProviderOpenAI,
		Prompt:   "do thing",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final answer" {
		t.Fatalf("got %q", out)
	}
	if r.gotProgram != "codex" {
		t.Fatalf("program = %q", r.gotProgram)
	}
}

func TestInvokeOpenAIFallback(t *testing.T) {
	r := &stubRunner{stdout: "not json at all"}
	inv := NewWithRunner(r)
	out, err := inv.Invoke(context.Background(), Request{Provider: config.ProviderOpenAI, Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != openAIFallback {
		t.Fatalf("got %q", out)
	}
}

func TestInvokeWorkerFailed(t *testing.T) {
	r := &stubRunner{stdout: "", stderr: "boom", exitCode: 1}
	inv := NewWithRunner(r)
	_, err := inv.Invoke(context.Background(), Request{Provider: config.ProviderAnthropic, Prompt: "x"})
	var wf *orcherrors.WorkerFailed
	if err == nil {
		t.Fatal("expected error")
	}
	if !as(err, &wf) {
		t.Fatalf("expected WorkerFailed, got %v", err)
	}
	if wf.ExitCode != 1 || wf.Stderr != "boom" {
		t.Fatalf("got %+v", wf)
	}
}

func TestInvokeUnknownProvider(t *testing.T) {
	inv := NewWithRunner(&stubRunner{})
	_, err := inv.Invoke(context.Background(), Request{Provider: "mystery", Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

// as is a tiny errors.As wrapper to keep the import list in this file small.
func as(err error, target **orcherrors.WorkerFailed) bool {
	wf, ok := err.(*orcherrors.WorkerFailed)
	if ok {
		*target = wf
		return true
	}
	return false
}

func TestExtractSendFiles(t *testing.T) {
	text := "here is a file [send_file: /tmp/does-not-exist-xyz] and more text"
	cleaned, files := ExtractSendFiles(text)
	if strings.Contains(cleaned, "send_file") {
		t.Fatalf("marker not stripped: %q", cleaned)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files for nonexistent path, got %v", files)
	}
}
