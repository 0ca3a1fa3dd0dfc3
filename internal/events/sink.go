// Package events implements the append-only JSONL event stream (spec §6).
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/orchestrator/swarmgate/pkg/protocol"
)

// Sink appends Event records to events/<date>.jsonl. Filesystem errors are
// logged and swallowed per spec §7 ("filesystem errors when writing ...
// event records are logged and swallowed") — a broken event stream must
// never fail the operation it is observing.
type Sink struct {
	dir string
	mu  sync.Mutex
}

// New returns a Sink rooted at dir (created lazily on first write).
func New(dir string) *Sink {
	return &Sink{dir: dir}
}

// Emit appends one event record, never returning an error to the caller.
func (s *Sink) Emit(component, level, typ string, payload map[string]interface{}) {
	if s == nil {
		return
	}
	evt := protocol.Event{
		Component: component,
		Level:     level,
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	line, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("events: marshal failed", "error", err, "type", typ)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		slog.Warn("events: mkdir failed", "error", err)
		return
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s.jsonl", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("events: open failed", "error", err, "path", path)
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		slog.Warn("events: write failed", "error", err, "path", path)
	}
}

// Info is a convenience wrapper for the common "info" level.
func (s *Sink) Info(component, typ string, payload map[string]interface{}) {
	s.Emit(component, "info", typ, payload)
}

// Warn is a convenience wrapper for the "warn" level.
func (s *Sink) Warn(component, typ string, payload map[string]interface{}) {
	s.Emit(component, "warn", typ, payload)
}
