package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/queue"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay queue state",
	}
	cmd.AddCommand(queueListCmd())
	cmd.AddCommand(queueReplayCmd())
	return cmd
}

func queueListCmd() *cobra.Command {
	var dirName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List files in one queue subdirectory (incoming, processing, outgoing, completed, deadletter)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			dir := filepath.Join(expandHome(cfg.Gateway.WorkspaceDir), "queue", dirName)
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("read %s: %w", dir, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if !e.IsDir() {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dirName, "dir", "incoming", "queue subdirectory to list")
	return cmd
}

// queueReplayCmd moves a message sitting in deadletter/ (or any other
// queue subdirectory) back to incoming/ so the dispatcher picks it up
// again on its next tick — an operator's manual recovery lever for a
// message quarantined after repeated Framework errors (spec §4.1, §7).
func queueReplayCmd() *cobra.Command {
	var fromDir string
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Move a quarantined or stuck message back to incoming/ for reprocessing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			queueDir := filepath.Join(expandHome(cfg.Gateway.WorkspaceDir), "queue")
			src := filepath.Join(queueDir, fromDir, args[0])
			data, err := os.ReadFile(src)
			if err != nil {
				return fmt.Errorf("read %s: %w", src, err)
			}
			var msg queue.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("%s is not a valid queue message: %w", src, err)
			}
			dst := filepath.Join(queueDir, "incoming", args[0])
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("move to incoming: %w", err)
			}
			fmt.Printf("requeued %s (message %s) for agent/team %q\n", args[0], msg.ID, msg.AgentHint)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromDir, "from", "deadletter", "queue subdirectory to replay from")
	return cmd
}
