package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/events"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

type recordingHandler struct {
	handled chan Message
	resp    Response
}

func (h *recordingHandler) Handle(ctx context.Context, msg Message) Response {
	h.handled <- msg
	r := h.resp
	r.MessageID = msg.ID
	r.Channel = msg.Channel
	return r
}

func writeMessage(t *testing.T, dir, name string, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Queue = config.QueueConfig{PollIntervalMs: 10, DedupeTTLMinutes: 20, DedupeMaxEntries: 100, MaxRollbacks: 3}
	return cfg
}

func TestDispatcherProcessesAndWritesResponse(t *testing.T) {
	workspace := t.TempDir()
	handler := &recordingHandler{handled: make(chan Message, 1)}
	d := New(workspace, testConfig(), handler, events.New(filepath.Join(workspace, "events")))

	writeMessage(t, filepath.Join(workspace, "queue", "incoming"), "001.json", Message{
		ID: "m1", Channel: "cli", Sender: "c1", Content: "hi",
	})

	if err := os.MkdirAll(filepath.Join(workspace, "queue", "processing"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(workspace, "queue", "completed"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(workspace, "queue", "outgoing"), 0o755); err != nil {
		t.Fatal(err)
	}

	d.tick(context.Background())

	select {
	case msg := <-handler.handled:
		if msg.ID != "m1" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestDispatcherSerializesPerKey(t *testing.T) {
	workspace := t.TempDir()
	handler := &recordingHandler{handled: make(chan Message, 2)}
	d := New(workspace, testConfig(), handler, events.New(filepath.Join(workspace, "events")))

	incoming := filepath.Join(workspace, "queue", "incoming")
	writeMessage(t, incoming, "001.json", Message{ID: "m1", Channel: "cli", Sender: "c1", AgentHint: "bob"})
	writeMessage(t, incoming, "002.json", Message{ID: "m2", Channel: "cli", Sender: "c1", AgentHint: "bob"})

	d.tick(context.Background())

	// Only one message for the shared key "agent:bob" should have been
	// claimed (moved out of incoming/) on this tick.
	entries, err := os.ReadDir(incoming)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file left in incoming, got %d", len(entries))
	}
}

func TestDispatcherRecoverRequeuesProcessing(t *testing.T) {
	workspace := t.TempDir()
	processing := filepath.Join(workspace, "queue", "processing")
	writeMessage(t, processing, "stuck.json", Message{ID: "m1", Channel: "cli", Sender: "c1"})

	d := New(workspace, testConfig(), &recordingHandler{handled: make(chan Message, 1)}, events.New(filepath.Join(workspace, "events")))
	if err := d.Recover(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(workspace, "queue", "incoming", "stuck.json")); err != nil {
		t.Fatalf("expected stuck message requeued to incoming: %v", err)
	}
}

func TestDispatcherQuarantinesAfterMaxRollbacks(t *testing.T) {
	workspace := t.TempDir()
	handler := &recordingHandler{
		handled: make(chan Message, 10),
		resp:    Response{Error: "boom", ErrorKind: string(orcherrors.KindFramework)},
	}
	cfg := testConfig()
	cfg.Queue.MaxRollbacks = 2
	d := New(workspace, cfg, handler, events.New(filepath.Join(workspace, "events")))

	incoming := filepath.Join(workspace, "queue", "incoming")
	for _, dir := range []string{incoming, filepath.Join(workspace, "queue", "processing"), filepath.Join(workspace, "queue", "completed"), filepath.Join(workspace, "queue", "outgoing"), filepath.Join(workspace, "queue", "deadletter")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 2; i++ {
		writeMessage(t, incoming, "m.json", Message{ID: "m1", Channel: "cli", Sender: "c1", AgentHint: "bob"})
		d.tick(context.Background())
		<-handler.handled
		for {
			d.mu.Lock()
			busy := d.inFlight["agent:bob"]
			d.mu.Unlock()
			if !busy {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	entries, err := os.ReadDir(filepath.Join(workspace, "queue", "deadletter"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected message quarantined after max rollbacks, got %d entries", len(entries))
	}
}

func TestDispatcherStopCancelsInFlightRunWithoutQueuing(t *testing.T) {
	workspace := t.TempDir()
	handler := handlerFunc(func(ctx context.Context, msg Message) Response {
		<-ctx.Done()
		return Response{MessageID: msg.ID, Channel: msg.Channel, Error: "cancelled"}
	})
	d := New(workspace, testConfig(), handler, events.New(filepath.Join(workspace, "events")))

	incoming := filepath.Join(workspace, "queue", "incoming")
	for _, dir := range []string{incoming, filepath.Join(workspace, "queue", "processing"), filepath.Join(workspace, "queue", "completed"), filepath.Join(workspace, "queue", "outgoing")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeMessage(t, incoming, "001.json", Message{ID: "m1", Channel: "cli", Sender: "c1", AgentHint: "bob"})
	d.tick(context.Background())

	// Wait until the dispatcher has actually registered the in-flight run.
	for {
		d.mu.Lock()
		n := len(d.runs["agent:bob"])
		d.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	writeMessage(t, incoming, "002.json", Message{ID: "m2", Channel: "cli", Sender: "c1", AgentHint: "bob", Content: "/stop"})
	d.tick(context.Background())

	entries, err := os.ReadDir(incoming)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected /stop message consumed immediately, not queued behind the busy key, got %d left", len(entries))
	}
}

func TestDispatcherPeeksSwarmKey(t *testing.T) {
	workspace := t.TempDir()
	cfg := testConfig()
	cfg.Swarms = config.SwarmsConfig{List: map[string]config.SwarmSpec{"triage": {ID: "triage", Agent: "bob"}}}
	handler := &recordingHandler{handled: make(chan Message, 1)}
	d := New(workspace, cfg, handler, events.New(filepath.Join(workspace, "events")))

	_, key, err := d.peek(writeMessageFile(t, workspace, Message{ID: "m1", Channel: "cli", Sender: "c1", Content: "@triage bulk classify"}))
	if err != nil {
		t.Fatal(err)
	}
	if key != SwarmKey("triage") {
		t.Fatalf("got key %q", key)
	}
}

func writeMessageFile(t *testing.T, workspace string, msg Message) string {
	t.Helper()
	dir := filepath.Join(workspace, "queue", "incoming")
	writeMessage(t, dir, "peek.json", msg)
	return filepath.Join(dir, "peek.json")
}

type handlerFunc func(ctx context.Context, msg Message) Response

func (f handlerFunc) Handle(ctx context.Context, msg Message) Response { return f(ctx, msg) }
