package cli

import (
	"fmt"
	"time"

	"quiz-arena/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewReapCmd finishes active rooms whose host stopped driving them. It is meant to be run
// periodically by an external scheduler.
func NewReapCmd(configPath *string) *cobra.Command {
	var idleFor time.Duration
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Finish abandoned active rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.StoreDriver() == config.DriverMemory {
				return fmt.Errorf("reap needs a shared store; configure redis or postgres")
			}
			if idleFor <= 0 {
				idleFor = config.TTLDuration(cfg.Arena.ReapAfter, 30*time.Minute)
			}

			deps, err := buildArena(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			reaped, err := deps.service.ReapAbandoned(ctx, idleFor)
			logger.Info("reap finished", zap.Strings("rooms", reaped), zap.Duration("idle_for", idleFor))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "finished %d abandoned room(s)\n", len(reaped))
			return err
		},
	}
	cmd.Flags().DurationVar(&idleFor, "idle-for", 0, "inactivity threshold (defaults to arena.reapAfter)")
	return cmd
}
