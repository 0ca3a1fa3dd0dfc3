package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{List: map[string]AgentSpec{}},
		Teams:  TeamsConfig{List: map[string]TeamSpec{}},
		Swarms: SwarmsConfig{List: map[string]SwarmSpec{}},
		Queue: QueueConfig{
			PollIntervalMs:   1000,
			DedupeTTLMinutes: 20,
			DedupeMaxEntries: 5000,
			MaxRollbacks:     5,
			TickCronExpr:     "@every 1s",
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds: 300,
		},
		Gateway: GatewayConfig{
			WorkspaceDir:      "~/.orchestrator/workspace",
			InboundDebounceMs: 0,
			MaxMessageChars:   4000,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars, then fills
// in per-spec defaults (concurrency, batch size, etc.) that were left zero.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.applySpecDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for id, spec := range cfg.Agents.List {
		if spec.ID == "" {
			spec.ID = id
			cfg.Agents.List[id] = spec
		}
	}
	for id, spec := range cfg.Teams.List {
		if spec.ID == "" {
			spec.ID = id
			cfg.Teams.List[id] = spec
		}
	}
	for id, spec := range cfg.Swarms.List {
		if spec.ID == "" {
			spec.ID = id
			cfg.Swarms.List[id] = spec
		}
	}

	cfg.applyEnvOverrides()
	cfg.applySpecDefaults()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; this is also where secrets (none in this
// core — worker auth is handled by the agent CLIs themselves via their own
// environment) would be layered in, per the "file/stdin injection, never
// command-line arguments" contract in spec §4.6.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ORCHD_WORKSPACE_DIR", &c.Gateway.WorkspaceDir)
	if v := os.Getenv("ORCHD_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.PollIntervalMs = n
		}
	}
	if v := os.Getenv("ORCHD_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	envStr("ORCHD_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("ORCHD_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
}

// applySpecDefaults fills zero-valued fields of SwarmSpec with the defaults
// named in spec.md §3 (concurrency=5, batch_size=25, max_partition_size=200,
// progress_interval=10).
func (c *Config) applySpecDefaults() {
	if c.Queue.TickCronExpr == "" {
		c.Queue.TickCronExpr = "@every 1s"
	}
	if c.Heartbeat.IntervalSeconds <= 0 {
		c.Heartbeat.IntervalSeconds = 300
	}
	for id, spec := range c.Swarms.List {
		if spec.Concurrency <= 0 {
			spec.Concurrency = 5
		}
		if spec.BatchSize <= 0 {
			spec.BatchSize = 25
		}
		if spec.ProgressInterval <= 0 {
			spec.ProgressInterval = 10
		}
		if spec.Shuffle != nil {
			if spec.Shuffle.MaxPartitionSize <= 0 {
				spec.Shuffle.MaxPartitionSize = 200
			}
			if spec.Shuffle.MultiKey == "" {
				spec.Shuffle.MultiKey = "duplicate"
			}
		}
		if spec.Reduce != nil && spec.Reduce.Strategy == "" {
			spec.Reduce.Strategy = "concatenate"
		}
		c.Swarms.List[id] = spec
	}
}
