// Package cmd implements the swarmgate CLI: the default run command plus
// doctor/version/queue subcommands (spec §4, the teacher's cobra
// root/doctor pattern, heavily trimmed since this core has no channels,
// providers, or database to onboard).
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/events"
	"github.com/orchestrator/swarmgate/internal/heartbeat"
	"github.com/orchestrator/swarmgate/internal/logging"
	"github.com/orchestrator/swarmgate/internal/process"
	"github.com/orchestrator/swarmgate/internal/queue"
	"github.com/orchestrator/swarmgate/internal/ratelimit"
	"github.com/orchestrator/swarmgate/internal/swarm"
	"github.com/orchestrator/swarmgate/internal/team"
	"github.com/orchestrator/swarmgate/internal/tracing"
	"github.com/orchestrator/swarmgate/internal/worker"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "swarmgate",
	Short: "swarmgate — chat-to-agent orchestration gateway",
	Long:  "swarmgate routes inbound chat messages to single agents, team chains, and data-parallel swarms, invoking agent CLIs as worker subprocesses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $SWARMGATE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(queueCmd())
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("SWARMGATE_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runGateway wires config, logging, tracing, the queue dispatcher, and an
// optional heartbeat service together, then blocks until SIGINT/SIGTERM.
func runGateway() error {
	logging.Setup(verbose)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	workspaceDir := expandHome(cfg.Gateway.WorkspaceDir)
	sink := events.New(filepath.Join(workspaceDir, "events"))

	invoker := worker.New()
	resets := worker.NewResetFlags(workspaceDir)
	teamExec := team.New(cfg, invoker, resets)
	swarmEngine := swarm.New(cfg, invoker, sink, workspaceDir)
	limiter := ratelimit.New(2, 4)

	handler := process.New(cfg, invoker, resets, teamExec, swarmEngine, limiter, sink, workspaceDir, cfg.Gateway.MaxMessageChars)
	dispatcher := queue.New(workspaceDir, cfg, handler, sink)

	if hb := heartbeat.New(workspaceDir, cfg.Heartbeat); hb != nil {
		go hb.Run(ctx)
	}

	return dispatcher.Run(ctx)
}

// expandHome resolves a leading "~/" to the user's home directory, the way
// most of the teacher's workspace-path handling assumes a shell already
// would for an interactively-entered config value.
func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
