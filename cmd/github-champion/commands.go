package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cam3ron2/github-champion/internal/app"
	"github.com/cam3ron2/github-champion/internal/collect"
	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCommand(opts *options) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect once and write the leaderboard and detailed reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer env.shutdown()

			collector, err := collect.NewOrgCollectorFromConfig(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return fmt.Errorf("build collector: %w", err)
			}
			var stdout io.Writer
			if !quiet {
				stdout = cmd.OutOrStdout()
			}
			return runOnce(cmd.Context(), env.cfg, collector, env.logger, stdout, time.Now)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print leaderboard tables")
	return cmd
}

// runOnce runs the pipeline for the configured window and writes both reports.
// Tables are printed to stdout when it is non-nil.
func runOnce(ctx context.Context, cfg *config.Config, collector app.Collector, logger *zap.Logger, stdout io.Writer, now func() time.Time) error {
	window, err := cfg.TimeRange.Resolve(now())
	if err != nil {
		return fmt.Errorf("resolve time range: %w", err)
	}
	logger.Info("collecting contributions",
		zap.String("org", cfg.GitHub.Organization),
		zap.Time("since", window.Since),
		zap.Time("until", window.Until),
	)

	pipeline := app.NewPipeline(collector, app.PipelineConfigFromConfig(cfg), logger)
	pipeline.Now = now
	output, err := pipeline.Run(ctx, window)
	if err != nil {
		return err
	}
	if len(output.Failed) > 0 {
		logger.Warn("some repositories could not be collected", zap.Strings("repos", output.Failed))
	}

	paths, err := app.WriteReports(output, cfg.Output.Dir, cfg.Output.LeaderboardFile, cfg.Output.DetailedFile)
	if err != nil {
		return err
	}
	for _, path := range paths {
		logger.Info("wrote report", zap.String("path", path))
	}

	if stdout == nil {
		return nil
	}
	return report.RenderLeaderboard(stdout, output.Leaderboard, now())
}

func newServeCommand(opts *options) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh periodically and serve the latest reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer env.shutdown()
			if cmd.Flags().Changed("listen") {
				env.cfg.Server.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), env.cfg, env.logger)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	collector, err := collect.NewOrgCollectorFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build collector: %w", err)
	}
	snapshots := app.NewSnapshotStore(ctx, cfg.Store, logger)
	defer func() {
		_ = snapshots.Close()
	}()

	pipeline := app.NewPipeline(collector, app.PipelineConfigFromConfig(cfg), logger)
	runtime := app.NewRuntime(app.RuntimeConfigFromConfig(cfg), pipeline, snapshots, logger)
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runtime.Start(ctx)
	defer runtime.Stop()

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
