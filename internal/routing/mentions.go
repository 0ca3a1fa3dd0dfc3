package routing

import (
	"regexp"
	"strings"
)

// mentionRe finds an "@id" anywhere in text (not just leading), used for
// teammate-mention extraction during a team chain (spec §4.2).
var mentionRe = regexp.MustCompile(`@([a-z][a-z0-9_-]*)`)

// Mention is one teammate reference found in a chain step's response.
type Mention struct {
	AgentID string
	Message string // the paragraph immediately following the mention
}

// ExtractTeammateMentions scans response for @X where X is a member of
// teammates (case-sensitive id match), in order of first occurrence. The
// message attached to each mention is the text from just after the
// mention up to the next teammate mention or end of response.
func ExtractTeammateMentions(response string, teammates []string) []Mention {
	teammateSet := make(map[string]bool, len(teammates))
	for _, t := range teammates {
		teammateSet[t] = true
	}

	locs := mentionRe.FindAllStringSubmatchIndex(response, -1)
	seen := make(map[string]bool, len(teammates))
	var mentions []Mention
	for i, loc := range locs {
		id := response[loc[2]:loc[3]]
		if !teammateSet[id] || seen[id] {
			continue
		}
		seen[id] = true
		bodyStart := loc[1]
		bodyEnd := len(response)
		for _, next := range locs[i+1:] {
			if teammateSet[response[next[2]:next[3]]] {
				bodyEnd = next[0]
				break
			}
		}
		body := strings.TrimSpace(response[bodyStart:bodyEnd])
		mentions = append(mentions, Mention{AgentID: id, Message: body})
	}
	return mentions
}
