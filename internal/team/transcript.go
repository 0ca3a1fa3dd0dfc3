package team

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orchestrator/swarmgate/internal/fsutil"
)

// frontMatter is the YAML header written atop every transcript file so a
// human (or another tool) can grep chats/ for team, start time and step
// count without parsing the markdown body; the channel and sender of the
// triggering message are not recorded.
type frontMatter struct {
	Team      string    `yaml:"team"`
	Started   time.Time `yaml:"started"`
	StepCount int       `yaml:"steps"`
}

// WriteTranscript persists res as Markdown with a YAML front-matter block
// under <workspaceDir>/chats/<teamID>/<unixNano>.md (spec §4.3).
func WriteTranscript(workspaceDir string, res Result, started time.Time) (string, error) {
	fm := frontMatter{Team: res.TeamID, Started: started, StepCount: len(res.Steps)}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("transcript front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	for _, s := range res.Steps {
		kind := "handoff"
		if s.Parallel {
			kind = "parallel"
		}
		fmt.Fprintf(&b, "## step %d (%s) — @%s\n\n", s.Index, kind, s.AgentID)
		fmt.Fprintf(&b, "**prompt:**\n\n%s\n\n", s.Prompt)
		fmt.Fprintf(&b, "**response:**\n\n%s\n\n", s.Response)
		for _, f := range s.SendFiles {
			fmt.Fprintf(&b, "_attached: %s_\n\n", f)
		}
	}

	dir := filepath.Join(workspaceDir, "chats", res.TeamID)
	path := filepath.Join(dir, fmt.Sprintf("%d.md", started.UnixNano()))
	if err := fsutil.AtomicWrite(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}
