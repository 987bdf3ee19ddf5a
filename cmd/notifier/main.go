// Command notifier sends due notification jobs and runs the background
// consumers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/app"
	"github.com/iliyamo/rice-reservation/internal/config"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "notifier",
		Short:         "Notification dispatcher for rice reservations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hashAdminKeyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the application. The caller
// closes the returned App and syncs the logger.
func bootstrap(ctx context.Context, dryRun bool) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateNotifier(dryRun); err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, logger, nil
}
