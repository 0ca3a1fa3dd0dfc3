package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/events"
	"github.com/orchestrator/swarmgate/internal/fsutil"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
	"github.com/orchestrator/swarmgate/internal/routing"
	"github.com/orchestrator/swarmgate/pkg/protocol"
)

// Handler processes one routed Message and returns the Response to deliver.
// Implemented by the process package that wires routing/team/swarm/worker
// together; kept as an interface here so the dispatcher's poll/serialize
// logic can be tested without a real agent pipeline.
type Handler interface {
	Handle(ctx context.Context, msg Message) Response
}

// run tracks one in-flight invocation for cancellation (/stop, /stopall).
type run struct {
	key    string
	cancel context.CancelFunc
}

// Dispatcher polls queue/incoming/ once per tick, resolves each pending
// message's target key without fully processing it ("peek"), and runs at
// most one message per key at a time so a key's messages are strictly
// FIFO while distinct keys proceed concurrently (spec §4.1).
type Dispatcher struct {
	dir          string // <workspaceDir>/queue
	cfg          *config.Config
	pollInterval time.Duration
	tickExpr     string // gronx cron expression gating each ticker firing
	maxRollbacks int
	handler      Handler
	sink         *events.Sink
	dedupe       *DedupeCache
	cron         gronx.Gronx

	mu        sync.Mutex
	inFlight  map[string]bool // target key -> processing
	runs      map[string][]*run
	rollbacks map[string]int // target key -> consecutive Framework-error count
}

// New builds a Dispatcher rooted at workspaceDir/queue. cfg is consulted at
// peek time to resolve a content-routed message's swarm/team/agent target
// key (spec §4.1 "peek"); it is not needed when a message already carries
// an explicit AgentHint.
func New(workspaceDir string, cfg *config.Config, handler Handler, sink *events.Sink) *Dispatcher {
	qcfg := cfg.Queue
	tickExpr := qcfg.TickCronExpr
	if tickExpr == "" {
		tickExpr = "@every 1s"
	}
	return &Dispatcher{
		dir:          filepath.Join(workspaceDir, "queue"),
		cfg:          cfg,
		pollInterval: time.Duration(qcfg.PollIntervalMs) * time.Millisecond,
		tickExpr:     tickExpr,
		maxRollbacks: qcfg.MaxRollbacks,
		handler:      handler,
		sink:         sink,
		dedupe:       NewDedupeCache(time.Duration(qcfg.DedupeTTLMinutes)*time.Minute, qcfg.DedupeMaxEntries),
		cron:         gronx.New(),
		inFlight:     make(map[string]bool),
		runs:         make(map[string][]*run),
		rollbacks:    make(map[string]int),
	}
}

// Recover moves any message left in processing/ back to incoming/ — the
// dispatcher crashed or was killed mid-invocation last time it ran, and an
// at-least-once delivery guarantee means those messages must be retried
// (spec §4.1 Crash Recovery).
func (d *Dispatcher) Recover() error {
	processingDir := filepath.Join(d.dir, "processing")
	incomingDir := filepath.Join(d.dir, "incoming")
	entries, err := os.ReadDir(processingDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recover: read processing dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(processingDir, e.Name())
		dst := filepath.Join(incomingDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			slog.Warn("recover: failed to requeue message", "file", e.Name(), "error", err)
			continue
		}
		d.sink.Info("dispatcher", "crash_recovered", map[string]interface{}{"file": e.Name()})
	}
	return nil
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := fsutil.EnsureDirs(
		filepath.Join(d.dir, "incoming"),
		filepath.Join(d.dir, "processing"),
		filepath.Join(d.dir, "outgoing"),
		filepath.Join(d.dir, "completed"),
		filepath.Join(d.dir, "deadletter"),
	); err != nil {
		return err
	}
	if err := d.Recover(); err != nil {
		return err
	}

	// The gronx expression is the source of truth for tick cadence; the
	// ticker interval is just how often we re-check whether the expression
	// is due (so a sub-second pollInterval can still honor e.g. "@every 5s").
	checkEvery := d.pollInterval
	if checkEvery <= 0 || checkEvery > time.Second {
		checkEvery = time.Second
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	fastPath := d.watchIncoming(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			due, err := d.cron.IsDue(d.tickExpr)
			if err != nil {
				slog.Warn("dispatcher: invalid tick expression, falling back to every tick", "expr", d.tickExpr, "error", err)
				due = true
			}
			if due {
				d.tick(ctx)
			}
		case <-fastPath:
			// A file just landed in incoming/: poll immediately rather than
			// waiting out the rest of the cron-gated interval. Polling
			// remains the source of truth (spec §4.1) — this is purely
			// latency optimization, so a missed or coalesced fsnotify event
			// never stalls delivery.
			d.tick(ctx)
		}
	}
}

// watchIncoming returns a channel that receives a signal whenever a file is
// created or renamed into queue/incoming/. Returns a nil channel (which
// blocks forever in a select) if the watcher can't be started — the regular
// cron-gated poll loop still covers delivery either way.
func (d *Dispatcher) watchIncoming(ctx context.Context) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("dispatcher: fsnotify unavailable, relying on poll only", "error", err)
		return nil
	}
	incomingDir := filepath.Join(d.dir, "incoming")
	if err := watcher.Add(incomingDir); err != nil {
		slog.Warn("dispatcher: fsnotify watch failed, relying on poll only", "error", err)
		watcher.Close()
		return nil
	}

	signal := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					select {
					case signal <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return signal
}

// tick picks up to one pending message per idle target key and launches it.
func (d *Dispatcher) tick(ctx context.Context) {
	incomingDir := filepath.Join(d.dir, "incoming")
	entries, err := os.ReadDir(incomingDir)
	if err != nil {
		slog.Warn("dispatcher: read incoming dir failed", "error", err)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // oldest-name-first: filenames embed a timestamp

	claimedKeys := map[string]bool{}
	for _, name := range names {
		path := filepath.Join(incomingDir, name)
		msg, key, err := d.peek(path)
		if err != nil {
			slog.Warn("dispatcher: malformed message, skipping", "file", name, "error", err)
			continue
		}

		if handled := d.handleControlCommand(path, name, key, msg); handled {
			continue
		}

		d.mu.Lock()
		busy := d.inFlight[key] || claimedKeys[key]
		d.mu.Unlock()
		if busy {
			continue // this key already has a message in flight: preserve FIFO order
		}

		dedupeKey := fmt.Sprintf("%s|%s|%s", msg.Channel, msg.Sender, msg.ID)
		if d.dedupe.IsDuplicate(dedupeKey) {
			d.completeFile(path, name, "duplicate")
			continue
		}

		processingPath := filepath.Join(d.dir, "processing", name)
		if err := os.Rename(path, processingPath); err != nil {
			slog.Warn("dispatcher: failed to claim message", "file", name, "error", err)
			continue
		}

		claimedKeys[key] = true
		d.mu.Lock()
		d.inFlight[key] = true
		d.mu.Unlock()

		go d.process(ctx, processingPath, name, key, dedupeKey, msg)
	}
}

// handleControlCommand intercepts /stop and /stopall before the normal
// per-key serialization check: both must act on a run already in flight for
// key, so they can never be left queued behind it (spec §4 supplemented
// features). Reports whether msg was a control command (and was disposed
// of), so tick can skip the normal dispatch path for it.
func (d *Dispatcher) handleControlCommand(path, name, key string, msg Message) bool {
	cmd := strings.TrimSpace(msg.Content)
	var cancelled bool
	switch cmd {
	case "/stop":
		cancelled = d.CancelOne(key)
	case "/stopall":
		cancelled = d.CancelAll(key)
	default:
		return false
	}

	resp := Response{
		MessageID:       msg.ID,
		Channel:         msg.Channel,
		Sender:          msg.Sender,
		Content:         controlAck(cmd, cancelled),
		OriginalMessage: msg.Content,
		Final:           true,
		Timestamp:       time.Now().UnixMilli(),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("dispatcher: marshal control ack failed", "error", err)
	} else if err := fsutil.AtomicWrite(d.outgoingPath(resp), data, 0o644); err != nil {
		slog.Warn("dispatcher: write control ack failed", "error", err)
	}
	d.completeFile(path, name, "done")
	return true
}

func controlAck(cmd string, cancelled bool) string {
	if !cancelled {
		return "Nothing running for this agent."
	}
	if cmd == "/stopall" {
		return "Stopped all running tasks for this agent."
	}
	return "Stopped the running task for this agent."
}

// peek reads a queued message and resolves its target key without marking
// it processed, so the dispatcher can decide whether its key is free. A
// pre-routed AgentHint wins outright; otherwise the message content is
// parsed for an @swarm handshake, an @team mention (keyed on the team's
// leader), or an @agent mention, falling back to "default" (spec §4.1
// "peek"). The full routing decision is recomputed by the handler once the
// message is actually dispatched; this only needs the key.
func (d *Dispatcher) peek(path string) (Message, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Message{}, "", err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, "", err
	}
	if msg.AgentHint != "" {
		return msg, TargetKey(msg.AgentHint), nil
	}
	if swarmID, _, ok := routing.ResolveSwarm(d.cfg, msg.Content); ok {
		return msg, SwarmKey(swarmID), nil
	}
	decision := routing.Resolve(d.cfg, msg.Content, "")
	agentID := decision.AgentID
	if agentID == "" || agentID == orcherrors.RoutingAmbiguous {
		agentID = "default"
	}
	return msg, TargetKey(agentID), nil
}

func (d *Dispatcher) process(ctx context.Context, processingPath, name, key, dedupeKey string, msg Message) {
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{key: key, cancel: cancel}
	d.mu.Lock()
	d.runs[key] = append(d.runs[key], r)
	d.mu.Unlock()
	defer d.unregisterRun(key, r)

	d.sink.Info("dispatcher", protocol.EventMessageReceived, map[string]interface{}{"id": msg.ID, "key": key})
	resp := d.handler.Handle(runCtx, msg)
	d.finish(processingPath, name, key, dedupeKey, resp)
}

func (d *Dispatcher) finish(processingPath, name, key, dedupeKey string, resp Response) {
	if resp.ErrorKind == string(orcherrors.KindFramework) {
		d.mu.Lock()
		d.rollbacks[key]++
		n := d.rollbacks[key]
		d.mu.Unlock()
		if n >= d.maxRollbacks {
			d.quarantine(processingPath, name, resp)
			return
		}
		// Below the threshold the message goes back to incoming/ for a later
		// tick to retry; its dedupe entry is dropped so that retry is not
		// taken for a redelivery.
		d.dedupe.mu.Lock()
		delete(d.dedupe.seen, dedupeKey)
		d.dedupe.mu.Unlock()
		if err := os.Rename(processingPath, filepath.Join(d.dir, "incoming", name)); err != nil {
			slog.Warn("dispatcher: requeue failed", "file", name, "error", err)
		}
		return
	} else {
		d.mu.Lock()
		delete(d.rollbacks, key)
		d.mu.Unlock()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("dispatcher: marshal response failed", "error", err)
	} else if err := fsutil.AtomicWrite(d.outgoingPath(resp), data, 0o644); err != nil {
		slog.Warn("dispatcher: write response failed", "error", err)
	}

	d.completeFile(processingPath, name, "done")
}

// outgoingPath names a Response's file in queue/outgoing/, the directory
// external channel clients poll (spec §6 "Response routing"). The
// heartbeat channel is the one documented exception, using a stable
// "<messageId>.json" name so a monitoring client can watch a single file in
// place rather than a new one per beat.
func (d *Dispatcher) outgoingPath(resp Response) string {
	if resp.Channel == "heartbeat" {
		return filepath.Join(d.dir, "outgoing", resp.MessageID+".json")
	}
	return filepath.Join(d.dir, "outgoing", fmt.Sprintf("%s_%s_%d.json", resp.Channel, resp.MessageID, time.Now().UnixMilli()))
}

// quarantine moves a message whose handler has failed with a Framework
// error maxRollbacks consecutive times out of the normal flow entirely, so
// it stops being retried and an operator can inspect it (spec §4.1, §7).
func (d *Dispatcher) quarantine(processingPath, name string, resp Response) {
	dst := filepath.Join(d.dir, "deadletter", name)
	if err := os.Rename(processingPath, dst); err != nil {
		slog.Warn("dispatcher: quarantine move failed", "file", name, "error", err)
	}
	d.sink.Warn("dispatcher", "message_quarantined", map[string]interface{}{
		"file": name, "error": resp.Error,
	})
}

func (d *Dispatcher) completeFile(path, name, outcome string) {
	dst := filepath.Join(d.dir, "completed", "_"+outcome+"_"+name)
	if err := os.Rename(path, dst); err != nil {
		os.Remove(path)
	}
}

// CancelOne cancels the single oldest in-flight run for key ("/stop").
func (d *Dispatcher) CancelOne(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	runs := d.runs[key]
	if len(runs) == 0 {
		return false
	}
	runs[0].cancel()
	return true
}

// CancelAll cancels every in-flight run for key ("/stopall").
func (d *Dispatcher) CancelAll(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	runs := d.runs[key]
	for _, r := range runs {
		r.cancel()
	}
	return len(runs) > 0
}

func (d *Dispatcher) unregisterRun(key string, target *run) {
	d.mu.Lock()
	defer d.mu.Unlock()
	runs := d.runs[key]
	for i, r := range runs {
		if r == target {
			d.runs[key] = append(runs[:i], runs[i+1:]...)
			break
		}
	}
}
