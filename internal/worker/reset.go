package worker

import (
	"os"
	"path/filepath"
)

// ResetFlags checks and consumes reset sentinel files (spec §4.3, §6).
// A flags/reset file (global) or a flags/reset-<agentID> file instructs the
// worker to start a fresh conversation; the flag is deleted once observed.
type ResetFlags struct {
	dir string // <workspace>/flags
}

// NewResetFlags returns a ResetFlags rooted at <workspace>/flags.
func NewResetFlags(workspaceDir string) *ResetFlags {
	return &ResetFlags{dir: filepath.Join(workspaceDir, "flags")}
}

// ConsumeGlobal reports and deletes the global reset sentinel.
func (r *ResetFlags) ConsumeGlobal() bool {
	return r.consume(filepath.Join(r.dir, "reset"))
}

// ConsumeAgent reports and deletes the per-agent reset sentinel.
func (r *ResetFlags) ConsumeAgent(agentID string) bool {
	return r.consume(filepath.Join(r.dir, "reset-"+agentID))
}

func (r *ResetFlags) consume(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_ = os.Remove(path)
	return true
}

// ShouldReset resolves whether step 0 of a chain, or a later step for
// agentID, should start a fresh conversation. Step 0 consults the global
// flag (or the leader's own flag as a fallback); later steps consult only
// their own agent's flag, per spec §4.3.
func (r *ResetFlags) ShouldReset(agentID string, isFirstStep bool) bool {
	if isFirstStep {
		if r.ConsumeGlobal() {
			return true
		}
	}
	return r.ConsumeAgent(agentID)
}
