package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health checks, metrics and the run history API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), appInstance)
		},
	}
}

func runServe(ctx context.Context, appInstance *App) error {
	cfg := appInstance.Config
	logger := appInstance.Logger

	var cl closers
	defer cl.close()

	history, err := buildHistory(ctx, cfg.History, logger, &cl)
	if err != nil {
		return err
	}
	if history == nil {
		logger.Warn("run history is disabled, /api/runs will answer 503")
	}
	errCh := startServer(ctx, ":"+strconv.Itoa(cfg.Server.Port), history, logger, &cl)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(context.Cause(ctx)))
		return nil
	}
}
