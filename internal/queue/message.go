// Package queue implements the file-queue wire format and the Queue
// Dispatcher (spec §4.1, §6): per-key serialized polling of incoming/,
// processing/, and outgoing/ directories under the workspace.
package queue

// Message is one inbound unit of work read from queue/incoming/ (spec §3,
// §6 "Message JSON schema"). The on-disk filename is
// "<channel>_<messageId>_<timestamp>.json".
type Message struct {
	ID        string   `json:"messageId"`
	Channel   string   `json:"channel"`
	Sender    string   `json:"sender"`
	SenderID  string   `json:"senderId,omitempty"`
	Content   string   `json:"message"`
	AgentHint string   `json:"agent,omitempty"` // pre-routed target, takes priority over @mentions
	Files     []string `json:"files,omitempty"`
	Timestamp int64    `json:"timestamp"` // ms since epoch
}

// Response is the result written back to queue/outgoing/ for a processed
// Message (spec §6 "Response JSON schema"). The on-disk filename is
// "<channel>_<messageId>_<timestamp>.json", except the heartbeat channel,
// which uses "<messageId>.json" in place.
type Response struct {
	MessageID       string   `json:"messageId"`
	Channel         string   `json:"channel"`
	Sender          string   `json:"sender"`
	AgentID         string   `json:"agent,omitempty"`
	Content         string   `json:"message"`
	OriginalMessage string   `json:"originalMessage"`
	Files           []string `json:"files,omitempty"`
	Timestamp       int64    `json:"timestamp"`

	// Error/ErrorKind/Final are implementation bookkeeping, not part of the
	// spec's external wire schema: a channel client only ever reads
	// message/files, but the dispatcher needs ErrorKind to drive the
	// dead-letter threshold and Final to distinguish a progress/heartbeat
	// update from the terminal reply.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"` // orcherrors.Kind*, empty when Error == ""
	Final     bool   `json:"final"`                // false for progress/heartbeat updates
}

// TargetKey resolves the per-key FIFO chain a message belongs to. Messages
// sharing a key are serialized; messages with different keys may be
// processed concurrently. Per spec §4.1, the key is the resolved agent id
// (team messages key on the team leader's agent id, so a team and its
// leader never run concurrently against the same working directory).
func TargetKey(agentID string) string {
	return "agent:" + agentID
}

// SwarmKey namespaces a swarm's own processing chain so a long-running
// swarm does not block unrelated single-agent or team traffic routed to
// its underlying worker agent (spec §4.1 "peek").
func SwarmKey(swarmID string) string {
	return "swarm:" + swarmID
}
