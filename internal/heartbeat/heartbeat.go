// Package heartbeat periodically deposits a synthetic monitoring message
// into the queue, the same way any other channel client would (spec §4.1
// "Response routing"; grounded in edouard-claude-pureclaw's
// internal/heartbeat executor, adapted here to the file-queue wire format
// instead of calling an LLM client directly).
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/fsutil"
	"github.com/orchestrator/swarmgate/internal/queue"
)

const checklistContent = "Heartbeat check: review recent activity and report anything that needs attention. Reply with a brief status if all is well."

// Service enqueues a heartbeat Message to cfg.Heartbeat.AgentID on a gronx
// cron schedule.
type Service struct {
	dir   string // <workspaceDir>/queue/incoming
	agent string
	expr  string
	cron  gronx.Gronx
}

// New returns a Service, or nil if heartbeats are disabled or no monitoring
// agent is configured.
func New(workspaceDir string, cfg config.HeartbeatConfig) *Service {
	if !cfg.Enabled || cfg.AgentID == "" {
		return nil
	}
	expr := cfg.CronExpr
	if expr == "" {
		interval := cfg.IntervalSeconds
		if interval <= 0 {
			interval = 300
		}
		expr = fmt.Sprintf("@every %ds", interval)
	}
	return &Service{
		dir:   filepath.Join(workspaceDir, "queue", "incoming"),
		agent: cfg.AgentID,
		expr:  expr,
		cron:  gronx.New(),
	}
}

// Run enqueues heartbeat messages until ctx is cancelled, checking the cron
// expression once per second.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := s.cron.IsDue(s.expr)
			if err != nil {
				slog.Warn("heartbeat: invalid cron expression", "expr", s.expr, "error", err)
				continue
			}
			if due {
				s.enqueue()
			}
		}
	}
}

func (s *Service) enqueue() {
	msg := queue.Message{
		ID:        uuid.NewString(),
		Channel:   "heartbeat",
		Sender:    "heartbeat",
		Content:   checklistContent,
		AgentHint: s.agent,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("heartbeat: marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("heartbeat_%s_%d.json", msg.ID, time.Now().UnixMilli())
	if err := fsutil.AtomicWrite(filepath.Join(s.dir, name), data, 0o644); err != nil {
		slog.Warn("heartbeat: enqueue failed", "error", err)
		return
	}
	slog.Info("heartbeat: enqueued", "agent", s.agent, "id", msg.ID)
}
