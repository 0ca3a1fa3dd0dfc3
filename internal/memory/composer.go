// Package memory implements the Memory Context Composer (spec §4.5):
// assembling an agent's persistent knowledge, recent reflections, relevant
// past episodes, and matching skills into one context block prepended to a
// worker invocation's prompt.
package memory

import (
	"os"
	"path/filepath"
	"strings"
)

// Composer reads an agent's memory artifacts from
// <workspaceDir>/memory/<agentID>/ and renders them into a [MEMORY] block.
type Composer struct {
	root string // <workspaceDir>/memory/<agentID>
}

// New returns a Composer rooted at workspaceDir/memory/agentID.
func New(workspaceDir, agentID string) *Composer {
	return &Composer{root: filepath.Join(workspaceDir, "memory", agentID)}
}

// Compose renders the full memory context for message, or "" if the agent
// has no memory artifacts at all (composing is then a no-op — the caller
// sends the raw message unmodified). Composition is idempotent: calling it
// twice for the same on-disk state and query produces byte-identical
// output, since every section is a pure read with no side effect on the
// underlying files.
func (c *Composer) Compose(message string) string {
	var sections []string

	if k := c.knowledge(); k != "" {
		sections = append(sections, "## Knowledge\n\n"+k)
	}
	if r := c.reflections(); r != "" {
		sections = append(sections, "## Recent Reflections\n\n"+r)
	}
	if e := c.episodes(message); e != "" {
		sections = append(sections, "## Relevant Past Episodes\n\n"+e)
	}
	if s := c.skills(message); s != "" {
		sections = append(sections, "## Matching Skills\n\n"+s)
	}

	if len(sections) == 0 {
		return ""
	}
	return "[MEMORY]\n" + strings.Join(sections, "\n\n") + "\n[/MEMORY]"
}

// knowledgePlaceholder marks a knowledge.md that has never been written to
// (spec §4.5 item 1): such a file is treated the same as a missing one.
const knowledgePlaceholder = "_No entries yet"

// knowledge returns the verbatim contents of knowledge.md, or "" if absent
// or still carrying the empty-file placeholder.
func (c *Composer) knowledge() string {
	data, err := os.ReadFile(filepath.Join(c.root, "knowledge.md"))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(string(data))
	if strings.Contains(text, knowledgePlaceholder) {
		return ""
	}
	return text
}
