package cmd

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orchestrator/swarmgate/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate config and report gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

// runDoctor cross-references the config's agent/team/swarm tables (every
// team leader and swarm agent must name a real AgentSpec) and checks that
// each provider's worker CLI is on PATH, then reports workspace directory
// health — a simplified version of the teacher's sectioned doctor report
// with no database/channel/provider-credential sections, since this core
// has none of those.
func runDoctor() error {
	fmt.Printf("swarmgate %s\n\n", Version)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Printf("✗ config: %v\n", err)
		return err
	}
	fmt.Println("✓ config loaded")

	ok := true

	fmt.Println("\nagents:")
	if len(cfg.Agents.List) == 0 {
		fmt.Println("  ✗ no agents configured")
		ok = false
	}
	binaries := map[string]bool{}
	for id, spec := range cfg.Agents.List {
		program := providerBinary(spec.Provider)
		if program == "" {
			fmt.Printf("  ✗ %s: unknown provider %q\n", id, spec.Provider)
			ok = false
			continue
		}
		binaries[program] = true
		fmt.Printf("  ✓ %s (%s, provider=%s)\n", id, spec.Name, spec.Provider)
	}

	fmt.Println("\nteams:")
	for id, t := range cfg.Teams.List {
		if _, found := cfg.AgentByID(t.LeaderAgent); !found {
			fmt.Printf("  ✗ %s: leader_agent %q not found\n", id, t.LeaderAgent)
			ok = false
			continue
		}
		fmt.Printf("  ✓ %s (leader=%s, %d members)\n", id, t.LeaderAgent, len(t.Agents))
	}

	fmt.Println("\nswarms:")
	for id, s := range cfg.Swarms.List {
		if _, found := cfg.AgentByID(s.Agent); !found {
			fmt.Printf("  ✗ %s: agent %q not found\n", id, s.Agent)
			ok = false
			continue
		}
		fmt.Printf("  ✓ %s (agent=%s, concurrency=%d, batch_size=%d)\n", id, s.Agent, s.Concurrency, s.BatchSize)
	}

	fmt.Println("\nworker binaries:")
	for program := range binaries {
		if _, err := exec.LookPath(program); err != nil {
			fmt.Printf("  ✗ %s not found on PATH\n", program)
			ok = false
			continue
		}
		fmt.Printf("  ✓ %s on PATH\n", program)
	}

	fmt.Println("\nworkspace:")
	workspaceDir := expandHome(cfg.Gateway.WorkspaceDir)
	fmt.Printf("  %s\n", workspaceDir)
	for _, sub := range []string{"queue/incoming", "queue/processing", "queue/outgoing", "queue/completed", "queue/deadletter", "events", "chats", "files", "memory", "flags"} {
		fmt.Printf("  - %s\n", filepath.Join(workspaceDir, sub))
	}

	if !ok {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	fmt.Println("\nall checks passed")
	return nil
}

func providerBinary(p config.Provider) string {
	switch p {
	case config.ProviderAnthropic, "":
		return "claude"
	case config.ProviderOpenAI:
		return "codex"
	default:
		return ""
	}
}
