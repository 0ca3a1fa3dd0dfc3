// Package swarm implements the Swarm Engine (spec §4.4): resolving a bulk
// input set, splitting it into worker batches, mapping an agent over every
// batch with a bounded pool, optionally shuffling by key for a second map
// pass, and reducing the results into one report.
package swarm

import "time"

// State is a SwarmJob's position in its lifecycle (spec §3).
type State string

const (
	StatePending   State = "pending"
	StateResolving State = "resolving_input"
	StateMapping   State = "mapping"
	StateShuffling State = "shuffling"
	StateReducing  State = "reducing"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Job tracks one swarm run end to end.
type Job struct {
	ID          string    `json:"id"`
	SwarmID     string    `json:"swarm_id"`
	State       State     `json:"state"`
	TotalItems  int       `json:"total_items"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ItemResult is one mapped item's outcome.
type ItemResult struct {
	Index   int
	Item    string
	Output  string
	Err     error
	Attempt int
}

// BatchResult is the concatenated outcome of one batch of items.
type BatchResult struct {
	Index   int
	Results []ItemResult
}
