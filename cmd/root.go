// Package cmd defines the a11y-tracker command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/config"
	"github.com/JakeFAU/a11y-tracker/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType struct{}

// App is what PersistentPreRunE hands to subcommands.
type App struct {
	Config config.Config
	Logger *zap.Logger
}

// newApp is the application factory. Tests swap it out.
var newApp = func(cfgFile string) (*App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return &App{Config: cfg, Logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "a11y-tracker",
		Short: "Scan sites for accessibility issues and publish the results to spreadsheets.",
		Long: `a11y-tracker runs an accessibility scanner against the sites in its registry,
canonicalizes the CSV report into stable, prioritized records and publishes
them to one dated tab per day in each site's spreadsheet.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKeyType{}).(*App); ok && appInstance != nil {
				_ = appInstance.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/a11y-tracker/config.yaml)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSitesCmd())
	cmd.AddCommand(newCanonicalizeCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(*App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command until it finishes or a signal arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
