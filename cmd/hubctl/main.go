package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/app"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// openApp is replaced in tests.
var openApp = func(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(ctx, cfg, logger.Log)
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "hubctl",
		Short:         "Integration hub operations",
		Long:          "Operator commands for the franchise integration hub: webhook URLs, reprocessing and migrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults to the service lookup)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWebhookURLCmd(&configPath))
	cmd.AddCommand(newReprocessCmd(&configPath))
	cmd.AddCommand(newUsageCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hubctl %s (commit: %s)\n", Version, Commit)
		},
	}
}

// withApp opens the hub for one command and always closes it.
func withApp(cmd *cobra.Command, configPath string, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		a.Close(context.Background())
		logger.Sync()
	}()
	return fn(a.Context(ctx), a)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		if logger.Log != nil {
			logger.Log.Debug("hubctl failed", zap.Error(err))
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
