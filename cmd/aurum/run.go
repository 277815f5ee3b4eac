package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/app"
	"github.com/newthinker/aurum/internal/jobs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and the ops API",
	RunE:  runServe,
}

var skipTrade bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run scan, report, economic worker and trade monitor once, then exit",
	RunE:  runOnce,
}

func init() {
	onceCmd.Flags().BoolVar(&skipTrade, "skip-trade", false, "stop after the report and store its signal without trading")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(cfg, log, app.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("starting aurum: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Start(ctx)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	cfg.Server.Enabled = false

	a, err := app.New(cfg, log, app.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("starting aurum: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.RunOnce(ctx, jobs.ReportOptions{SkipTrade: skipTrade}); err != nil {
		return err
	}
	log.Info("one-shot run finished")
	return nil
}
