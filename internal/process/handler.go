// Package process wires routing, the team chain executor, the swarm
// engine, and the worker invoker together into a single queue.Handler
// (spec §4.1 "processor_start" / §4.2-§4.6): one inbound Message in, one
// outbound Response out, with memory context composed in, tracing spans
// wrapped around each direct agent invocation, team run and swarm run, and
// per-agent rate limiting gating direct single-agent invocations (team and
// swarm runs are not rate-limited).
package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/events"
	"github.com/orchestrator/swarmgate/internal/memory"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
	"github.com/orchestrator/swarmgate/internal/queue"
	"github.com/orchestrator/swarmgate/internal/ratelimit"
	"github.com/orchestrator/swarmgate/internal/routing"
	"github.com/orchestrator/swarmgate/internal/swarm"
	"github.com/orchestrator/swarmgate/internal/team"
	"github.com/orchestrator/swarmgate/internal/tracing"
	"github.com/orchestrator/swarmgate/internal/worker"
	"github.com/orchestrator/swarmgate/pkg/protocol"
)

// truncatedNotice is appended to a reply body that exceeds the response
// truncation threshold (spec §6).
const truncatedNotice = "\n\n[Response truncated...]"

// Processor implements queue.Handler by resolving a message's route and
// dispatching to the team chain executor, the swarm engine, or a direct
// single-agent worker invocation.
type Processor struct {
	cfg          *config.Config
	invoker      *worker.Invoker
	resets       *worker.ResetFlags
	teamExec     *team.Executor
	swarmEngine  *swarm.Engine
	limiter      *ratelimit.Limiter
	sink         *events.Sink
	workspaceDir string
	maxChars     int
}

// New builds a Processor. maxChars is the reply truncation threshold
// (spec §6, Gateway.MaxMessageChars, default 4000).
func New(cfg *config.Config, invoker *worker.Invoker, resets *worker.ResetFlags, teamExec *team.Executor, swarmEngine *swarm.Engine, limiter *ratelimit.Limiter, sink *events.Sink, workspaceDir string, maxChars int) *Processor {
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &Processor{
		cfg: cfg, invoker: invoker, resets: resets, teamExec: teamExec,
		swarmEngine: swarmEngine, limiter: limiter, sink: sink,
		workspaceDir: workspaceDir, maxChars: maxChars,
	}
}

// Handle implements queue.Handler.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) queue.Response {
	p.sink.Info("processor", protocol.EventProcessorStart, map[string]interface{}{"id": msg.ID, "channel": msg.Channel})

	decision := routing.Resolve(p.cfg, msg.Content, msg.AgentHint)
	base := queue.Response{
		MessageID:       msg.ID,
		Channel:         msg.Channel,
		Sender:          msg.Sender,
		OriginalMessage: msg.Content,
		Final:           true,
		Timestamp:       time.Now().UnixMilli(),
	}

	if decision.AgentID == orcherrors.RoutingAmbiguous {
		return withError(base, "I'm not sure which agent or team you meant — please address a single one.", orcherrors.KindTerminal)
	}

	switch {
	case decision.IsSwarm:
		return p.handleSwarm(ctx, base, decision, msg)
	case decision.IsTeam:
		return p.handleTeam(ctx, base, decision)
	default:
		return p.handleAgent(ctx, base, decision)
	}
}

func (p *Processor) handleSwarm(ctx context.Context, base queue.Response, decision routing.Decision, msg queue.Message) queue.Response {
	spec, ok := p.cfg.SwarmByID(decision.SwarmID)
	if !ok {
		return withError(base, fmt.Sprintf("unknown swarm %q", decision.SwarmID), orcherrors.KindTerminal)
	}

	ctx, span := tracing.StartSpan(ctx, "swarm.run", "swarm_id", spec.ID)
	out, err := p.swarmEngine.Run(ctx, spec, decision.Message, msg.Files)
	tracing.EndSpan(span, err)
	if err != nil {
		return withError(base, "The swarm couldn't complete; please try again.", classifySwarmErr(err))
	}

	base.AgentID = spec.Agent
	base.Content = out.Body
	if out.Attachment != "" {
		base.Files = []string{out.Attachment}
	}
	return base
}

func (p *Processor) handleTeam(ctx context.Context, base queue.Response, decision routing.Decision) queue.Response {
	teamSpec, ok := p.cfg.TeamByID(decision.TeamID)
	if !ok {
		return withError(base, fmt.Sprintf("unknown team %q", decision.TeamID), orcherrors.KindTerminal)
	}

	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "team.run", "team_id", teamSpec.ID)
	res, err := p.teamExec.Run(ctx, teamSpec, p.withMemory(teamSpec.LeaderAgent, decision.Message))
	tracing.EndSpan(span, err)
	if err != nil {
		return workerErrResponse(ctx, base, err, "The team couldn't complete that request.")
	}

	if _, err := team.WriteTranscript(p.workspaceDir, res, started); err != nil {
		p.sink.Warn("processor", "transcript_write_failed", map[string]interface{}{"team_id": teamSpec.ID, "error": err.Error()})
	}

	base.AgentID = res.FinalAgent
	base.Content, base.Files = p.truncate(res.Final, res.Attachments)
	return base
}

func (p *Processor) handleAgent(ctx context.Context, base queue.Response, decision routing.Decision) queue.Response {
	agentID := decision.AgentID
	spec, ok := p.cfg.AgentByID(agentID)
	if !ok {
		return withError(base, fmt.Sprintf("unknown agent %q", agentID), orcherrors.KindTerminal)
	}

	if p.limiter != nil && !p.limiter.Allow(agentID) {
		return withError(base, "This agent is handling a lot of requests right now; please try again shortly.", orcherrors.KindTransient)
	}

	reset := p.resets.ShouldReset(agentID, true)
	ctx, span := tracing.StartSpan(ctx, "worker.invoke", "agent_id", agentID)
	resp, err := p.invoker.Invoke(ctx, worker.Request{
		AgentID:    agentID,
		Provider:   spec.Provider,
		Model:      spec.Model,
		WorkingDir: spec.WorkingDirectory,
		Prompt:     p.withMemory(agentID, decision.Message),
		Continue:   !reset,
	})
	tracing.EndSpan(span, err)
	if err != nil {
		return workerErrResponse(ctx, base, err, "Sorry, something went wrong handling that — please try again.")
	}

	cleaned, files := worker.ExtractSendFiles(resp)
	base.AgentID = agentID
	base.Content, base.Files = p.truncate(cleaned, files)
	return base
}

// withMemory prepends agentID's composed memory context to message, if it
// has any recorded knowledge/reflections/episodes/skills (spec §4.5).
func (p *Processor) withMemory(agentID, message string) string {
	ctx := memory.New(p.workspaceDir, agentID).Compose(message)
	if ctx == "" {
		return message
	}
	return ctx + "\n\n" + message
}

// truncate applies the response truncation law (spec §6): a body over
// maxChars is cut to maxChars-100 chars with a trailing notice. Swarm
// bodies are truncated to a file instead, inside swarm.RenderOutput.
func (p *Processor) truncate(body string, attachments []string) (string, []string) {
	if len(body) <= p.maxChars {
		return body, attachments
	}
	cut := p.maxChars - 100
	if cut < 0 {
		cut = 0
	}
	return body[:cut] + truncatedNotice, attachments
}

func withError(base queue.Response, userMessage string, kind orcherrors.Kind) queue.Response {
	base.Content = userMessage
	base.Error = userMessage
	base.ErrorKind = string(kind)
	return base
}

// workerErrResponse turns a team/worker invocation error into a Response.
// A cancelled run (the /stop command firing mid-invocation) is not a
// failure at all: it gets a plain completed response with no ErrorKind, so
// the dispatcher's rollback counter never sees it.
func workerErrResponse(ctx context.Context, base queue.Response, err error, genericMessage string) queue.Response {
	if ctx.Err() != nil {
		base.Content = "Stopped."
		base.Final = true
		return base
	}
	return withError(base, genericMessage, classifyWorkerErr(err))
}

// classifyWorkerErr maps a worker.Invoker error to the taxonomy in spec §7.
func classifyWorkerErr(err error) orcherrors.Kind {
	var workerFailed *orcherrors.WorkerFailed
	if errors.As(err, &workerFailed) {
		return orcherrors.KindTransient
	}
	var agentNotFound *orcherrors.AgentNotFound
	var unknownProvider *orcherrors.UnknownProvider
	if errors.As(err, &agentNotFound) || errors.As(err, &unknownProvider) {
		return orcherrors.KindTerminal
	}
	return orcherrors.KindFramework
}

func classifySwarmErr(err error) orcherrors.Kind {
	if errors.Is(err, orcherrors.ErrNoInput) || errors.Is(err, orcherrors.ErrTooManyItems) {
		return orcherrors.KindTerminal
	}
	if errors.Is(err, orcherrors.ErrAllBatchesFailed) {
		return orcherrors.KindTransient
	}
	return orcherrors.KindFramework
}
