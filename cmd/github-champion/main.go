package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "github-champion: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand(stdout)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(rootCtx)
}

// options holds flags shared by every subcommand.
type options struct {
	configPath string
	envFile    string
	org        string
	repos      []string
	since      string
	until      string
	preset     string
	outputDir  string
	topN       int
	minEvents  int
	minScore   float64
	logLevel   string
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "github-champion",
		Short: "Rank GitHub contributors across an organization",
		Long: `github-champion collects closed issues, pull requests, reviews and commits for
an organization's repositories and ranks contributors by a weighted score.

Commands:
  run     Collect once and write the leaderboard and detailed reports
  serve   Refresh periodically and serve the latest reports over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)

	opts.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	return rootCmd
}

func (o *options) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "path to YAML config file")
	flags.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading credentials")
	flags.StringVar(&o.org, "org", "", "GitHub organization")
	flags.StringSliceVar(&o.repos, "repos", nil, "repositories to include (default: all non-archived)")
	flags.StringVar(&o.since, "since", "", "window start date (YYYY-MM-DD)")
	flags.StringVar(&o.until, "until", "", "window end date (YYYY-MM-DD)")
	flags.StringVar(&o.preset, "preset", "", "window preset (last_7_days, last_30_days, last_90_days, this_month, this_year)")
	flags.StringVar(&o.outputDir, "output-dir", "", "directory for report files")
	flags.IntVar(&o.topN, "top-n", 0, "leaderboard length")
	flags.IntVar(&o.minEvents, "min-events", 0, "minimum qualifying events for a repository to be ranked")
	flags.Float64Var(&o.minScore, "min-score", 0, "minimum score for a contributor to be listed")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// overrides turns the flags that were set on cmd into config overrides.
func (o *options) overrides(cmd *cobra.Command) []config.Override {
	changed := cmd.Flags().Changed
	var overrides []config.Override
	if changed("org") {
		org := strings.TrimSpace(o.org)
		overrides = append(overrides, func(c *config.Config) { c.GitHub.Organization = org })
	}
	if changed("repos") {
		repos := make([]string, 0, len(o.repos))
		for _, repo := range o.repos {
			if trimmed := strings.TrimSpace(repo); trimmed != "" {
				repos = append(repos, trimmed)
			}
		}
		overrides = append(overrides, func(c *config.Config) { c.GitHub.Repositories = repos })
	}
	if changed("since") || changed("until") || changed("preset") {
		timeRange := config.TimeRangeConfig{Preset: o.preset, Since: o.since, Until: o.until}
		overrides = append(overrides, func(c *config.Config) { c.TimeRange = timeRange })
	}
	if changed("output-dir") {
		dir := o.outputDir
		overrides = append(overrides, func(c *config.Config) { c.Output.Dir = dir })
	}
	if changed("top-n") {
		topN := o.topN
		overrides = append(overrides, func(c *config.Config) { c.Leaderboard.TopN = topN })
	}
	if changed("min-events") {
		minEvents := o.minEvents
		overrides = append(overrides, func(c *config.Config) { c.Leaderboard.MinEvents = minEvents })
	}
	if changed("min-score") {
		minScore := o.minScore
		overrides = append(overrides, func(c *config.Config) { c.Leaderboard.MinScore = minScore })
	}
	if changed("log-level") {
		level := o.logLevel
		overrides = append(overrides, func(c *config.Config) { c.Server.LogLevel = level })
	}
	return overrides
}

// environment is what every subcommand needs before doing real work.
type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	shutdown func()
}

func (o *options) setup(cmd *cobra.Command) (*environment, error) {
	if err := loadEnvFile(o.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFile(o.configPath, o.overrides(cmd)...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      telemetry.DefaultServiceName,
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	return &environment{
		cfg:    cfg,
		logger: logger,
		shutdown: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetryRuntime.Shutdown(shutdownCtx)
			if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
				_, _ = fmt.Fprintf(os.Stderr, "github-champion: sync logger: %v\n", syncErr)
			}
		},
	}, nil
}

func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldIgnoreLoggerSyncError reports whether a Sync failure comes from syncing a terminal.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
