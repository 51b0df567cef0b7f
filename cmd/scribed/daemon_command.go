package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scribed/internal/daemon"
	"scribed/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the transcription daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := ctx.buildLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := daemon.New(cfg, logger, nil)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}

			<-signalCtx.Done()
			logger.Info("scribed daemon shutting down", logging.String("reason", "signal"))
			return nil
		},
	}
}
