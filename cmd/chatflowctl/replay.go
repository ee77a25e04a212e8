package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/registry"
	"github.com/chatflow/orchestrator/internal/tools"
	"github.com/chatflow/orchestrator/internal/workflows"
)

// replayCmd checks exported histories for non-deterministic workflow changes. It runs offline.
func (c *cli) replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <history.json>...",
		Short: "Replay exported workflow histories against the current code",
		Args:  cobra.MinimumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if c.verbose {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
			}
			if err := registry.ReplayHistories(workflows.New(tools.NewDefaultRegistry()), logger, args...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d histories\n", len(args))
			return nil
		},
	}
}
