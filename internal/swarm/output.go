package swarm

import (
	"fmt"
	"path/filepath"

	"github.com/orchestrator/swarmgate/internal/fsutil"
)

// maxReportChars is the truncation threshold for a swarm's final report
// (spec §6 truncation law). Reports over this are written to a file in
// the workspace and the response body links to it instead.
const maxReportChars = 4000

// Output is the final response payload for a completed swarm job.
type Output struct {
	Body       string
	Attachment string // non-empty if Body was truncated to a file
}

// RenderOutput builds the stats header ("N/total succeeded, M failed") and
// applies the truncation law: a report under maxReportChars is returned
// inline, a larger one is written to <workspaceDir>/files/swarm/<jobID>.md
// and the inline body becomes a pointer to it.
func RenderOutput(workspaceDir, jobID string, total, succeeded, failed int, report string) (Output, error) {
	header := fmt.Sprintf("Swarm finished: %d/%d succeeded, %d failed.\n\n", succeeded, total, failed)
	full := header + report

	if len(full) <= maxReportChars {
		return Output{Body: full}, nil
	}

	path := filepath.Join(workspaceDir, "files", "swarm", jobID+".md")
	if err := fsutil.AtomicWrite(path, []byte(full), 0o644); err != nil {
		return Output{}, fmt.Errorf("write swarm report: %w", err)
	}
	body := header + fmt.Sprintf("Report too long for chat (%d chars); see attached file.\n[send_file: %s]", len(full), path)
	return Output{Body: body, Attachment: path}, nil
}
