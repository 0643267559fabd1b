package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cam3ron2/github-champion/internal/app"
	"github.com/cam3ron2/github-champion/internal/collect"
	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/contrib"
	"github.com/cam3ron2/github-champion/internal/daterange"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  zapcore.Level
	}{
		{name: "debug", input: "debug", want: zapcore.DebugLevel},
		{name: "warn", input: "WARN", want: zapcore.WarnLevel},
		{name: "error", input: "error", want: zapcore.ErrorLevel},
		{name: "default_info", input: "other", want: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := logLevel(tc.input)
			if got != tc.want {
				t.Fatalf("logLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestShouldIgnoreLoggerSyncError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil_error", err: nil, want: false},
		{name: "einval_direct", err: syscall.EINVAL, want: true},
		{name: "enotty_direct", err: syscall.ENOTTY, want: true},
		{name: "wrapped_einval", err: fmt.Errorf("wrapped: %w", syscall.EINVAL), want: true},
		{name: "other_error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := shouldIgnoreLoggerSyncError(tc.err)
			if got != tc.want {
				t.Fatalf("shouldIgnoreLoggerSyncError(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func parseOptions(t *testing.T, args []string) (*options, *cobra.Command) {
	t.Helper()

	opts := &options{}
	cmd := &cobra.Command{Use: "test"}
	opts.register(cmd.Flags())
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) unexpected error: %v", args, err)
	}
	return opts, cmd
}

func TestOptionsOverrides(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "organization_and_repositories",
			args: []string{"--org", " the-shire ", "--repos", "bag-end, hobbiton,,green-dragon"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.GitHub.Organization != "the-shire" {
					t.Fatalf("Organization = %q", cfg.GitHub.Organization)
				}
				if !reflect.DeepEqual(cfg.GitHub.Repositories, []string{"bag-end", "hobbiton", "green-dragon"}) {
					t.Fatalf("Repositories = %v", cfg.GitHub.Repositories)
				}
			},
		},
		{
			name: "explicit_zero_leaderboard_values",
			args: []string{"--org", "the-shire", "--top-n", "0", "--min-events", "0", "--min-score", "1.5"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Leaderboard.TopN != 0 || cfg.Leaderboard.MinEvents != 0 || cfg.Leaderboard.MinScore != 1.5 {
					t.Fatalf("Leaderboard = %#v", cfg.Leaderboard)
				}
			},
		},
		{
			name: "unset_flags_keep_defaults",
			args: []string{"--org", "the-shire"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Leaderboard.TopN != 3 || cfg.Leaderboard.MinEvents != 1 || cfg.Output.Dir != "data" {
					t.Fatalf("defaults not kept: %#v %#v", cfg.Leaderboard, cfg.Output)
				}
			},
		},
		{
			name: "time_range_and_output",
			args: []string{"--org", "the-shire", "--since", "2026-09-01", "--until", "2026-09-30", "--output-dir", "out", "--log-level", "debug"},
			check: func(t *testing.T, cfg *config.Config) {
				want := config.TimeRangeConfig{Since: "2026-09-01", Until: "2026-09-30"}
				if cfg.TimeRange != want {
					t.Fatalf("TimeRange = %#v", cfg.TimeRange)
				}
				if cfg.Output.Dir != "out" || cfg.Server.LogLevel != "debug" {
					t.Fatalf("Output.Dir = %q, LogLevel = %q", cfg.Output.Dir, cfg.Server.LogLevel)
				}
			},
		},
		{
			name:    "missing_organization",
			args:    []string{"--preset", "this_year"},
			wantErr: "github.organization is required",
		},
		{
			name:    "invalid_log_level",
			args:    []string{"--org", "the-shire", "--log-level", "verbose"},
			wantErr: "server.log_level",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts, cmd := parseOptions(t, tc.args)
			cfg, err := config.Default(opts.overrides(cmd)...)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("config.Default() error = %v, want substring %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("config.Default() unexpected error: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

type fakeCollector struct {
	collectFn func(ctx context.Context, window daterange.Range) (collect.Result, error)
}

func (f *fakeCollector) Collect(ctx context.Context, window daterange.Range) (collect.Result, error) {
	return f.collectFn(ctx, window)
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	fixedNow := func() time.Time { return time.Date(2026, time.October, 18, 9, 30, 0, 0, time.UTC) }
	testCases := []struct {
		name       string
		tables     map[string]contrib.Table
		quiet      bool
		wantErr    error
		wantStdout []string
	}{
		{
			name: "writes_reports_and_prints_tables",
			tables: map[string]contrib.Table{
				"bag-end":      {"frodo": {IssuesClosed: 2, PullReviews: 4}},
				"green-dragon": {"samwise": {PullsCreated: 2}},
			},
			wantStdout: []string{"Organization All-stars", "frodo", "bag-end", "green-dragon", "Window: 2026-10-11 to 2026-10-18"},
		},
		{
			name:   "quiet_writes_reports_only",
			tables: map[string]contrib.Table{"bag-end": {"frodo": {IssuesClosed: 1}}},
			quiet:  true,
		},
		{
			name:    "nothing_collected",
			tables:  map[string]contrib.Table{},
			wantErr: app.ErrNoMetrics,
		},
		{
			name:    "everything_filtered",
			tables:  map[string]contrib.Table{"bag-end": {"bilbo": {Commits: 3}}},
			wantErr: app.ErrAllFiltered,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			cfg, err := config.Default(func(c *config.Config) {
				c.GitHub.Organization = "the-shire"
				c.Output.Dir = dir
				c.TimeRange = config.TimeRangeConfig{Preset: daterange.PresetLast7Days}
			})
			if err != nil {
				t.Fatalf("config.Default() unexpected error: %v", err)
			}
			collector := &fakeCollector{collectFn: func(context.Context, daterange.Range) (collect.Result, error) {
				return collect.Result{Repositories: tc.tables}, nil
			}}

			var stdout bytes.Buffer
			var out io.Writer = &stdout
			if tc.quiet {
				out = nil
			}
			err = runOnce(context.Background(), cfg, collector, zap.NewNop(), out, fixedNow)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("runOnce() error = %v, want %v", err, tc.wantErr)
				}
				if _, statErr := os.Stat(filepath.Join(dir, cfg.Output.LeaderboardFile)); !errors.Is(statErr, os.ErrNotExist) {
					t.Fatalf("leaderboard written despite error: %v", statErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("runOnce() unexpected error: %v", err)
			}

			for _, name := range []string{cfg.Output.LeaderboardFile, cfg.Output.DetailedFile} {
				if _, statErr := os.Stat(filepath.Join(dir, name)); statErr != nil {
					t.Fatalf("report %s not written: %v", name, statErr)
				}
			}
			if tc.quiet && stdout.Len() != 0 {
				t.Fatalf("quiet run printed output: %s", stdout.String())
			}
			for _, want := range tc.wantStdout {
				if !strings.Contains(stdout.String(), want) {
					t.Fatalf("stdout missing %q:\n%s", want, stdout.String())
				}
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("GITHUB_CHAMPION_TEST_TOKEN=mellon\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("GITHUB_CHAMPION_TEST_TOKEN") })

	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("loadEnvFile(missing) unexpected error: %v", err)
	}
	if err := loadEnvFile(""); err != nil {
		t.Fatalf("loadEnvFile(\"\") unexpected error: %v", err)
	}
	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("loadEnvFile() unexpected error: %v", err)
	}
	if got := os.Getenv("GITHUB_CHAMPION_TEST_TOKEN"); got != "mellon" {
		t.Fatalf("GITHUB_CHAMPION_TEST_TOKEN = %q, want mellon", got)
	}
}

func TestRunCommandErrors(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	configYAML := `
github:
  organization: "the-shire"
  repositories: ["bag-end"]
  auth:
    token_env: "GITHUB_CHAMPION_UNSET_TOKEN"
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing_config_file",
			args:    []string{"run", "--env-file", "", "--config", filepath.Join(dir, "missing.yaml")},
			wantErr: "load config",
		},
		{
			name:    "missing_token",
			args:    []string{"run", "--env-file", "", "--config", configPath},
			wantErr: "GITHUB_CHAMPION_UNSET_TOKEN",
		},
		{
			name:    "unexpected_argument",
			args:    []string{"run", "extra"},
			wantErr: "unknown command",
		},
		{
			name:    "unknown_command",
			args:    []string{"scrape"},
			wantErr: "unknown command",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.args, io.Discard)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("run(%v) error = %v, want substring %q", tc.args, err, tc.wantErr)
			}
		})
	}
}
