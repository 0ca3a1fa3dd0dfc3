// Package routing parses leading @mentions and resolves them against the
// agent/team tables (spec §4.2).
package routing

import (
	"regexp"
	"strings"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

// tokenRe matches one leading "@id" token, id = [a-z][a-z0-9_-]*.
var tokenRe = regexp.MustCompile(`^@([a-z][a-z0-9_-]*)\s*`)

// Decision is the outcome of resolving a raw message.
type Decision struct {
	AgentID string // resolved agent id, or orcherrors.RoutingAmbiguous
	Message string // payload with any matched @prefix stripped
	IsTeam  bool   // true if the match came via a TeamSpec's leader_agent
	TeamID  string // set alongside IsTeam: the team whose leader AgentID resolves to
	IsSwarm bool   // true if the message targets a SwarmSpec directly
	SwarmID string // set alongside IsSwarm
}

// Resolve implements spec §4.2's routing table.
//
// Priority: an explicit pre-routed agent hint that matches a known id wins
// outright. Otherwise the leading run of @tokens is tokenized and matched
// against agent and team ids; zero matches falls back to the default
// agent, one match resolves directly, and more than one match returns the
// ambiguity sentinel.
func Resolve(cfg *config.Config, message, agentHint string) Decision {
	if agentHint != "" {
		if _, ok := cfg.AgentByID(agentHint); ok {
			return Decision{AgentID: agentHint, Message: message}
		}
	}

	tokens, rest := leadingTokens(message)

	var matched []string
	for _, tok := range tokens {
		if _, ok := cfg.AgentByID(tok); ok {
			matched = append(matched, tok)
			continue
		}
		if _, ok := cfg.TeamByID(tok); ok {
			matched = append(matched, tok)
		}
	}

	switch len(matched) {
	case 0:
		if swarmID, swarmRest, ok := ResolveSwarm(cfg, message); ok {
			return Decision{IsSwarm: true, SwarmID: swarmID, Message: swarmRest}
		}
		// No recognized mention: leave the message untouched, even if it
		// had leading @tokens that matched nothing.
		return Decision{AgentID: cfg.ResolveDefaultAgentID(), Message: message}
	case 1:
		id := matched[0]
		if _, ok := cfg.AgentByID(id); ok {
			return Decision{AgentID: id, Message: rest}
		}
		team, _ := cfg.TeamByID(id)
		return Decision{AgentID: team.LeaderAgent, Message: rest, IsTeam: true, TeamID: team.ID}
	default:
		return Decision{AgentID: orcherrors.RoutingAmbiguous, Message: message}
	}
}

// ResolveSwarm checks whether message targets a SwarmSpec directly: either
// the literal "@swarm <swarmId>" handshake or a leading "@<swarmId>" mention
// that happens to match a configured swarm rather than an agent or team
// (spec §4.1 "peek": "first word is @swarm, or any direct swarm id
// handshake"). Returns the swarm id and the message with the matched
// prefix stripped.
func ResolveSwarm(cfg *config.Config, message string) (swarmID string, rest string, ok bool) {
	tokens, tail := leadingTokens(message)
	if len(tokens) == 0 {
		return "", message, false
	}
	if tokens[0] == "swarm" {
		// "@swarm <swarmId> ..." — the swarm id is a bare word, not an
		// @mention, so it's split off tail rather than via leadingTokens.
		id, afterID, _ := strings.Cut(tail, " ")
		id = strings.TrimSpace(id)
		if id == "" {
			return "", message, false
		}
		if _, ok := cfg.SwarmByID(id); ok {
			return id, strings.TrimLeft(afterID, " \t"), true
		}
		return "", message, false
	}
	if _, ok := cfg.SwarmByID(tokens[0]); ok {
		return tokens[0], tail, true
	}
	return "", message, false
}

// leadingTokens consumes the leading run of @id tokens (whether or not
// they match any known table) and returns the token ids plus the
// remaining payload message.
func leadingTokens(message string) ([]string, string) {
	var ids []string
	rest := message
	for {
		m := tokenRe.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		ids = append(ids, m[1])
		rest = rest[len(m[0]):]
	}
	return ids, strings.TrimLeft(rest, " \t")
}
