package memory

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
)

// maxEpisodes is how many top-scoring episodes are surfaced per query.
const maxEpisodes = 3

// episode is an episodes.jsonl record (spec §3, §4.5): Tags/Outcome feed
// both scoring and rendering. Malformed lines are skipped rather than
// failing the whole read, per spec §9's lenient-parsing design note.
type episode struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Outcome string   `json:"outcome"`
}

// episodes scores every episodes.jsonl record against message (spec §4.5
// item 3): score is the count of message words (length >3, lowercased)
// found as substrings of "summary + tags joined by space" (also
// lowercased). Entries with score 0 are dropped; the rest are sorted
// descending by score (ties keep file order) and the top maxEpisodes are
// rendered "- [<outcome>] <summary> (<tags>)".
func (c *Composer) episodes(message string) string {
	lines := tailLines(filepath.Join(c.root, "episodes.jsonl"), 0)
	if lines == nil {
		return ""
	}

	queryWords := longWords(message)

	type scored struct {
		episode episode
		score   int
	}
	var candidates []scored
	for _, line := range lines {
		var e episode
		if err := json.Unmarshal([]byte(line), &e); err != nil || e.Summary == "" {
			continue
		}
		haystack := strings.ToLower(e.Summary + " " + strings.Join(e.Tags, " "))
		score := 0
		for _, w := range queryWords {
			if strings.Contains(haystack, w) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{episode: e, score: score})
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	n := maxEpisodes
	if n > len(candidates) {
		n = len(candidates)
	}

	var b strings.Builder
	for _, c := range candidates[:n] {
		b.WriteString("- [")
		b.WriteString(c.episode.Outcome)
		b.WriteString("] ")
		b.WriteString(c.episode.Summary)
		b.WriteString(" (")
		b.WriteString(strings.Join(c.episode.Tags, ", "))
		b.WriteString(")\n")
	}
	return strings.TrimSpace(b.String())
}

// longWords lowercases s, splits on whitespace, and keeps words longer
// than 3 characters (spec §4.5 items 3-4's shared length filter).
func longWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}
