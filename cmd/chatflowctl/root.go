package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/temporal"
)

// dialFunc connects to the engine. Tests replace it with a mock-backed client.
type dialFunc func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*temporal.Client, error)

func dialEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*temporal.Client, error) {
	return temporal.Dial(ctx, temporal.Options{
		HostPort:     cfg.Temporal.Host,
		Namespace:    cfg.Temporal.Namespace,
		CallTimeout:  cfg.Temporal.ClientTimeout,
		DialAttempts: 1,
	}, logger)
}

type cli struct {
	dial    dialFunc
	engine  *temporal.Client
	cfgPath string
	host    string
	timeout time.Duration
	verbose bool
}

func newRootCmd(dial dialFunc) *cobra.Command {
	if dial == nil {
		dial = dialEngine
	}
	c := &cli{dial: dial}

	root := &cobra.Command{
		Use:           "chatflowctl",
		Short:         "Operate chat, approval and tool-chain workflows",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.connect(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.engine != nil {
				c.engine.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "config file (default $CONFIG_PATH)")
	root.PersistentFlags().StringVar(&c.host, "host", "", "Temporal frontend host:port (overrides config)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 0, "per-call deadline (overrides config)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log engine calls")

	root.AddCommand(
		c.startChatCmd(),
		c.addMessageCmd(),
		c.conversationCmd(),
		c.approvalsCmd(),
		c.describeCmd(),
		c.replayCmd(),
	)
	return root
}

func (c *cli) connect(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if c.cfgPath != "" {
		cfg, err = config.LoadFile(c.cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if c.host != "" {
		cfg.Temporal.Host = c.host
	}
	if c.timeout > 0 {
		cfg.Temporal.ClientTimeout = c.timeout
	}

	logger := zap.NewNop()
	if c.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	c.engine, err = c.dial(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Temporal.Host, err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
