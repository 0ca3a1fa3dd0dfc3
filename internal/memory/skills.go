package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// skills matches message against every skill's description by plain
// substring search (spec §4.5 item 4; spec §9: no embeddings, duck-typed
// and cheap) and returns the matched skills' full markdown bodies, each
// under a "### <skillId>" heading. skills/index.json is a map from skill
// id to description (spec §3); the procedure text lives in
// skills/<id>.md.
func (c *Composer) skills(message string) string {
	data, err := os.ReadFile(filepath.Join(c.root, "skills", "index.json"))
	if err != nil {
		return ""
	}
	var index map[string]string
	if err := json.Unmarshal(data, &index); err != nil {
		return ""
	}

	query := strings.ToLower(message)

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	matched := 0
	for _, id := range ids {
		if !matchesAnyWord(query, index[id]) {
			continue
		}
		body, err := os.ReadFile(filepath.Join(c.root, "skills", id+".md"))
		if err != nil {
			continue
		}
		b.WriteString("### " + id + "\n\n")
		b.WriteString(strings.TrimSpace(string(body)))
		b.WriteString("\n\n")
		matched++
	}
	if matched == 0 {
		return ""
	}
	return strings.TrimSpace(b.String())
}

// matchesAnyWord reports whether any word of description (length >3,
// lowercased) appears as a substring of query, per spec §4.5 item 4.
func matchesAnyWord(query, description string) bool {
	for _, w := range longWords(description) {
		if strings.Contains(query, w) {
			return true
		}
	}
	return false
}
