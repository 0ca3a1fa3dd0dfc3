// Package worker launches agent worker subprocesses (spec §4.6).
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

// maxCapturedBytes bounds per-invocation stdout/stderr buffering (Open
// Question 5: "Response buffer limits"). Output beyond this is discarded;
// the caller is not told truncation occurred since the tail rarely matters
// for a chat reply, but the cap exists so one runaway worker can't exhaust
// host memory.
const maxCapturedBytes = 10 << 20 // 10 MB

// Request describes one subprocess invocation.
type Request struct {
	AgentID    string
	Provider   config.Provider
	Model      string
	WorkingDir string
	Prompt     string
	// Continue, when true, asks the worker to resume its prior session
	// instead of starting fresh. Set to false whenever a reset flag fired.
	Continue bool
	Timeout  time.Duration // 0 = no deadline beyond ctx
}

// Runner abstracts subprocess execution so tests can stub it without
// spawning real CLIs.
type Runner interface {
	Run(ctx context.Context, dir, program string, args []string) (stdout, stderr string, exitCode int, err error)
}

// Invoker runs agent worker subprocesses and classifies their outcome.
type Invoker struct {
	runner Runner
}

// New returns an Invoker using the real os/exec runner.
func New() *Invoker {
	return &Invoker{runner: execRunner{}}
}

// NewWithRunner returns an Invoker using a caller-supplied Runner (tests).
func NewWithRunner(r Runner) *Invoker {
	return &Invoker{runner: r}
}

// Invoke launches the worker for req and returns its final text response.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (string, error) {
	program, args, err := buildArgs(req)
	if err != nil {
		return "", err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	stdout, stderr, exitCode, err := inv.runner.Run(ctx, req.WorkingDir, program, args)
	if err != nil {
		return "", fmt.Errorf("worker invoke: %w", err)
	}
	if exitCode != 0 {
		return "", &orcherrors.WorkerFailed{ExitCode: exitCode, Stderr: stderr}
	}

	switch req.Provider {
	case config.ProviderOpenAI:
		return parseOpenAIOutput(stdout), nil
	default:
		return stdout, nil
	}
}

// buildArgs derives the subprocess program and argument vector from the
// AgentSpec's provider variant (spec §4.6).
func buildArgs(req Request) (string, []string, error) {
	switch req.Provider {
	case config.ProviderAnthropic, "":
		args := []string{"--dangerously-skip-permissions"}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		if req.Continue {
			args = append(args, "-c")
		}
		args = append(args, "-p", req.Prompt)
		return "claude", args, nil
	case config.ProviderOpenAI:
		args := []string{"exec"}
		if req.Continue {
			args = append(args, "resume", "--last")
		}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		args = append(args, "--skip-git-repo-check", "--dangerously-bypass-approvals-and-sandbox", "--json", req.Prompt)
		return "codex", args, nil
	default:
		return "", nil, &orcherrors.UnknownProvider{Provider: string(req.Provider)}
	}
}

// openAIFallback is returned when an OpenAI worker's JSONL stream never
// emits an agent_message item.completed event.
const openAIFallback = "(no response)"

// parseOpenAIOutput scans codex's JSONL event stream for the last
// item.completed/agent_message event and returns its text.
func parseOpenAIOutput(stdout string) string {
	var last string
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt struct {
			Type string `json:"type"`
			Item struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"item"`
		}
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if evt.Type == "item.completed" && evt.Item.Type == "agent_message" {
			last = evt.Item.Text
		}
	}
	if last == "" {
		return openAIFallback
	}
	return last
}

// execRunner is the real os/exec-backed Runner implementation.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, program string, args []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{buf: &stdout, limit: maxCapturedBytes}
	cmd.Stderr = &boundedWriter{buf: &stderr, limit: maxCapturedBytes}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		} else {
			return stdout.String(), stderr.String(), -1, err
		}
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

// boundedWriter caps how much of a subprocess stream is captured (Open
// Question 5).
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}
