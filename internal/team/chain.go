// Package team implements the Team Chain Executor (spec §4.3): routing a
// message through a TeamSpec either as a sequential handoff between agents
// or as a parallel fan-out with leader synthesis, depending on how many
// teammates a given step's response addresses.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/routing"
	"github.com/orchestrator/swarmgate/internal/worker"
)

// warnDepth logs once a chain is probably looping without making progress;
// hardDepth aborts it outright so a mention cycle can't run forever.
const (
	warnDepth = 10
	hardDepth = 50
)

// Step is one agent turn recorded in a chain's transcript.
type Step struct {
	Index     int       `yaml:"index"`
	AgentID   string    `yaml:"agent_id"`
	Prompt    string    `yaml:"prompt"`
	Response  string    `yaml:"response"`
	SendFiles []string  `yaml:"send_files,omitempty"`
	Parallel  bool      `yaml:"parallel,omitempty"`
	Time      time.Time `yaml:"time"`
}

// Result is the outcome of running a team chain to completion.
type Result struct {
	TeamID      string
	FinalAgent  string
	Final       string
	Attachments []string
	Steps       []Step
}

// Executor drives team chains.
type Executor struct {
	cfg     *config.Config
	invoker *worker.Invoker
	resets  *worker.ResetFlags
}

// New builds an Executor over the given invoker and reset-flag store.
func New(cfg *config.Config, invoker *worker.Invoker, resets *worker.ResetFlags) *Executor {
	return &Executor{cfg: cfg, invoker: invoker, resets: resets}
}

// Run drives team through its chain starting from message, addressed
// initially to team.LeaderAgent. At each step the prior step's response is
// scanned for @mentions of other team members (routing.ExtractTeammateMentions):
// zero mentions terminates the chain, one mention hands off sequentially to
// that teammate, and more than one fans out to all mentioned teammates in
// parallel before looping the leader back in to synthesize their replies.
func (e *Executor) Run(ctx context.Context, team config.TeamSpec, message string) (Result, error) {
	res := Result{TeamID: team.ID}

	currentAgent := team.LeaderAgent
	currentMessage := message
	var isFirstStep = true

	for depth := 1; ; depth++ {
		if depth > hardDepth {
			return res, fmt.Errorf("team %s: chain exceeded %d steps, aborting", team.ID, hardDepth)
		}
		if depth == warnDepth {
			slog.Warn("team chain depth warning", "team", team.ID, "depth", depth)
		}

		step, err := e.step(ctx, currentAgent, currentMessage, isFirstStep)
		if err != nil {
			return res, err
		}
		isFirstStep = false
		step.Index = depth
		res.Steps = append(res.Steps, step)

		mentions := routing.ExtractTeammateMentions(step.Response, otherTeammates(team.Agents, currentAgent))
		res.Attachments = append(res.Attachments, step.SendFiles...)
		res.FinalAgent = currentAgent
		res.Final = step.Response

		switch len(mentions) {
		case 0:
			return res, nil
		case 1:
			currentAgent = mentions[0].AgentID
			currentMessage = mentions[0].Message
		default:
			fanSteps, synthesisPrompt, err := e.fanOut(ctx, team, mentions, depth)
			if err != nil {
				return res, err
			}
			res.Steps = append(res.Steps, fanSteps...)
			for _, fs := range fanSteps {
				res.Attachments = append(res.Attachments, fs.SendFiles...)
			}
			currentAgent = team.LeaderAgent
			currentMessage = synthesisPrompt
		}
	}
}

// step invokes one agent turn and extracts any teammate mentions and
// send-file markers from its response.
func (e *Executor) step(ctx context.Context, agentID, message string, isFirstStep bool) (Step, error) {
	spec, ok := e.cfg.AgentByID(agentID)
	if !ok {
		return Step{}, fmt.Errorf("team chain: unknown agent %q", agentID)
	}

	reset := e.resets.ShouldReset(agentID, isFirstStep)
	resp, err := e.invoker.Invoke(ctx, worker.Request{
		AgentID:    agentID,
		Provider:   spec.Provider,
		Model:      spec.Model,
		WorkingDir: spec.WorkingDirectory,
		Prompt:     message,
		Continue:   !reset,
	})
	if err != nil {
		return Step{}, err
	}

	cleaned, files := worker.ExtractSendFiles(resp)

	return Step{
		AgentID:   agentID,
		Prompt:    message,
		Response:  cleaned,
		SendFiles: files,
		Time:      time.Now(),
	}, nil
}

// otherTeammates returns members minus self, the set eligible for mention
// matching at a given step (an agent mentioning itself does not hand off).
func otherTeammates(members []string, self string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}

// fanOut invokes every mentioned teammate concurrently and returns their
// steps plus a synthesis prompt for the leader to fold their replies back
// into the chain.
func (e *Executor) fanOut(ctx context.Context, team config.TeamSpec, mentions []routing.Mention, depth int) ([]Step, string, error) {
	steps := make([]Step, len(mentions))
	errs := make([]error, len(mentions))

	var wg sync.WaitGroup
	for i, m := range mentions {
		wg.Add(1)
		go func(i int, m routing.Mention) {
			defer wg.Done()
			step, err := e.step(ctx, m.AgentID, m.Message, false)
			step.Index = depth
			step.Parallel = true
			steps[i] = step
			errs[i] = err
		}(i, m)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return steps, "", err
		}
	}

	var b strings.Builder
	b.WriteString("Your teammates replied:\n\n")
	for _, s := range steps {
		fmt.Fprintf(&b, "@%s: %s\n\n", s.AgentID, s.Response)
	}
	b.WriteString("Synthesize a single reply for the user.")
	return steps, b.String(), nil
}
