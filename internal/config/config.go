package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON5 config files.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the orchestration gateway.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Teams     TeamsConfig     `json:"teams"`
	Swarms    SwarmsConfig    `json:"swarms"`
	Queue     QueueConfig     `json:"queue"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Heartbeat HeartbeatConfig `json:"heartbeat,omitempty"`
	Bindings  []AgentBinding  `json:"bindings,omitempty"`

	mu sync.RWMutex
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used for hot-reload without invalidating pointers held elsewhere.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Teams = src.Teams
	c.Swarms = src.Swarms
	c.Queue = src.Queue
	c.Gateway = src.Gateway
	c.Telemetry = src.Telemetry
	c.Heartbeat = src.Heartbeat
	c.Bindings = src.Bindings
}

// AgentBinding maps a channel/peer pattern to a specific agent. Reserved for
// channel adapters (out of core scope); kept so the routing table has a
// documented hook once a real channel client is wired in front of the queue.
type AgentBinding struct {
	AgentID string       `json:"agentId"`
	Match   BindingMatch `json:"match"`
}

type BindingMatch struct {
	Channel string       `json:"channel"`
	Peer    *BindingPeer `json:"peer,omitempty"`
}

type BindingPeer struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// GatewayConfig controls queue dispatcher behaviour.
type GatewayConfig struct {
	WorkspaceDir      string `json:"workspace_dir"`       // root of queue/, chats/, events/, flags/, files/
	InboundDebounceMs int    `json:"inbound_debounce_ms"` // parsed but not read; inbound messages are not debounced
	MaxMessageChars   int    `json:"max_message_chars"`   // response truncation threshold (default 4000)
}

// QueueConfig controls the dispatcher poll loop.
type QueueConfig struct {
	PollIntervalMs   int    `json:"poll_interval_ms"`    // default 1000
	DedupeTTLMinutes int    `json:"dedupe_ttl_minutes"`  // default 20
	DedupeMaxEntries int    `json:"dedupe_max_entries"`  // default 5000
	MaxRollbacks     int    `json:"max_rollbacks"`       // framework-error quarantine threshold, default 5
	TickCronExpr     string `json:"tick_cron,omitempty"` // gronx expression gating each poll tick, default "@every 1s"
}

// HeartbeatConfig configures the periodic monitoring-agent heartbeat.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled,omitempty"`
	AgentID         string `json:"agent_id,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"` // default 300
	CronExpr        string `json:"cron,omitempty"`             // overrides IntervalSeconds when set
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// AgentsConfig contains the AgentSpec table.
type AgentsConfig struct {
	List map[string]AgentSpec `json:"list"`
}

// Provider is the tagged variant of worker CLI backing an agent.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// AgentSpec is the configuration record for one agent identity.
type AgentSpec struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Provider          Provider `json:"provider"`
	Model             string   `json:"model,omitempty"`
	WorkingDirectory  string   `json:"working_directory,omitempty"`
	Default           bool     `json:"default,omitempty"`
}

// TeamsConfig contains the TeamSpec table.
type TeamsConfig struct {
	List map[string]TeamSpec `json:"list"`
}

// TeamSpec is a named group of agents with a designated leader.
type TeamSpec struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Agents      []string `json:"agents"`
	LeaderAgent string   `json:"leader_agent"`
}

// SwarmsConfig contains the SwarmSpec table.
type SwarmsConfig struct {
	List map[string]SwarmSpec `json:"list"`
}

// SwarmInputSpec configures how a swarm resolves its input items.
type SwarmInputSpec struct {
	Command string `json:"command,omitempty"`
	Type    string `json:"type,omitempty"` // "lines" (default) or "json_array"
}

// SwarmShuffleSpec configures the optional shuffle-by-key phase.
type SwarmShuffleSpec struct {
	KeyField         string `json:"key_field"`
	MultiKey         string `json:"multi_key,omitempty"` // "duplicate" (default) or "first"
	MaxPartitionSize int    `json:"max_partition_size,omitempty"`
	ReducePrompt     string `json:"reduce_prompt,omitempty"`
	MergePrompt      string `json:"merge_prompt,omitempty"`
}

// SwarmReduceSpec configures the no-shuffle reduce strategy.
type SwarmReduceSpec struct {
	Strategy string `json:"strategy,omitempty"` // "concatenate" (default), "summarize", "hierarchical"
	Prompt   string `json:"prompt,omitempty"`
	Agent    string `json:"agent,omitempty"`
}

// SwarmSpec declares a map/shuffle/reduce pipeline.
type SwarmSpec struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Agent           string            `json:"agent"`
	Concurrency     int               `json:"concurrency,omitempty"`      // default 5
	BatchSize       int               `json:"batch_size,omitempty"`       // default 25
	Input           *SwarmInputSpec   `json:"input,omitempty"`
	PromptTemplate  string            `json:"prompt_template"`
	Shuffle         *SwarmShuffleSpec `json:"shuffle,omitempty"`
	Reduce          *SwarmReduceSpec  `json:"reduce,omitempty"`
	ProgressInterval int              `json:"progress_interval,omitempty"` // default 10; values <= 0 are replaced by 10, so reporting cannot be turned off
}

// NormalizeAgentID lowercases and trims an agent id for lookup.
func NormalizeAgentID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ResolveDefaultAgentID returns the configured default agent, or the id
// flagged `default`, or the first agent in the table if none is marked.
func (c *Config) ResolveDefaultAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.Agents.List["default"]; ok {
		return "default"
	}
	for id, spec := range c.Agents.List {
		if spec.Default {
			return id
		}
	}
	var first string
	for id := range c.Agents.List {
		if first == "" || id < first {
			first = id
		}
	}
	return first
}

// AgentByID looks up an agent spec by id.
func (c *Config) AgentByID(id string) (AgentSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.Agents.List[id]
	return spec, ok
}

// TeamByID looks up a team spec by id.
func (c *Config) TeamByID(id string) (TeamSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.Teams.List[id]
	return spec, ok
}

// SwarmByID looks up a swarm spec by id.
func (c *Config) SwarmByID(id string) (SwarmSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.Swarms.List[id]
	return spec, ok
}
