package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/thegirl-crawler/internal/config"
	"github.com/JakeFAU/thegirl-crawler/internal/logging"
	"github.com/JakeFAU/thegirl-crawler/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawler: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the crawler command. The crawl itself lives in run.
func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawls the thegirl.ru tests listing into a local store.",
		Long: `crawler walks every listing page of the thegirl.ru tests section,
scrapes title and tags from each article and stores new records,
skipping articles whose URL is already stored.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			ctx := cmd.Context()
			tp, err := telemetry.InitTracerProvider(ctx, "thegirl-crawler")
			if err != nil {
				logger.Warn("tracing disabled", zap.Error(err))
			}
			if tp != nil {
				defer func() {
					if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
						logger.Warn("tracer shutdown failed", zap.Error(shutdownErr))
					}
				}()
			}
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	return cmd
}
