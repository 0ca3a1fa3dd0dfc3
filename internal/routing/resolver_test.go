package routing

import (
	"testing"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

func testConfig() *config.Config {
	return &config.Config{
		Agents: config.AgentsConfig{
			List: map[string]config.AgentSpec{
				"bob":     {ID: "bob", Name: "Bob"},
				"alice":   {ID: "alice", Name: "Alice"},
				"default": {ID: "default", Name: "Default"},
			},
		},
		Teams: config.TeamsConfig{
			List: map[string]config.TeamSpec{
				"research": {ID: "research", Agents: []string{"alice", "bob"}, LeaderAgent: "alice"},
			},
		},
		Swarms: config.SwarmsConfig{
			List: map[string]config.SwarmSpec{
				"triage": {ID: "triage", Agent: "bob"},
			},
		},
	}
}

func TestResolveAgentHintWins(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@bob do thing", "alice")
	if d.AgentID != "alice" || d.Message != "@bob do thing" {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveAgentHintUnknownFallsThrough(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@bob do thing", "nobody")
	if d.AgentID != "bob" || d.Message != "do thing" {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveNoMention(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "do the thing", "")
	if d.AgentID != "default" || d.Message != "do the thing" {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveUnknownLeadingTokenLeavesMessageIntact(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@ghost do thing", "")
	if d.AgentID != "default" || d.Message != "@ghost do thing" {
		t.Fatalf("got %+v", d)
	}
}

// S2 from spec §8: "@bob do thing" -> agent bob, message "do thing".
func TestResolveSingleAgentMention(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@bob do thing", "")
	if d.AgentID != "bob" || d.Message != "do thing" || d.IsTeam {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveTeamMentionResolvesToLeader(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@research plan the sprint", "")
	if d.AgentID != "alice" || d.Message != "plan the sprint" || !d.IsTeam {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveMultipleMentionsAmbiguous(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@bob @alice do thing", "")
	if d.AgentID != orcherrors.RoutingAmbiguous || d.Message != "@bob @alice do thing" {
		t.Fatalf("got %+v", d)
	}
}

func TestExtractTeammateMentions(t *testing.T) {
	response := "Let's ask @alice to review this. @bob can you check the tests? Thanks all."
	mentions := ExtractTeammateMentions(response, []string{"alice", "bob"})
	if len(mentions) != 2 {
		t.Fatalf("got %d mentions: %+v", len(mentions), mentions)
	}
	if mentions[0].AgentID != "alice" || mentions[1].AgentID != "bob" {
		t.Fatalf("got %+v", mentions)
	}
	if mentions[1].Message != "can you check the tests? Thanks all." {
		t.Fatalf("got message %q", mentions[1].Message)
	}
}

func TestResolveDirectSwarmMention(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@triage bulk classify these tickets", "")
	if !d.IsSwarm || d.SwarmID != "triage" || d.Message != "bulk classify these tickets" {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveExplicitSwarmKeyword(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@swarm triage bulk classify", "")
	if !d.IsSwarm || d.SwarmID != "triage" || d.Message != "bulk classify" {
		t.Fatalf("got %+v", d)
	}
}

func TestResolveSwarmKeywordUnknownIDFallsThrough(t *testing.T) {
	cfg := testConfig()
	d := Resolve(cfg, "@swarm ghost bulk classify", "")
	if d.IsSwarm || d.AgentID != "default" {
		t.Fatalf("got %+v", d)
	}
}

func TestExtractTeammateMentionsIgnoresNonTeammates(t *testing.T) {
	response := "cc @intern, please loop in @alice"
	mentions := ExtractTeammateMentions(response, []string{"alice"})
	if len(mentions) != 1 || mentions[0].AgentID != "alice" {
		t.Fatalf("got %+v", mentions)
	}
}
