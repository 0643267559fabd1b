// Package config loads and validates the YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/github-champion/internal/daterange"
	"gopkg.in/yaml.v3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validStoreBackends = []string{"memory", "redis"}
)

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig
	GitHub      GitHubConfig
	RateLimit   RateLimitConfig
	Retry       RetryConfig
	TimeRange   TimeRangeConfig
	Leaderboard LeaderboardConfig
	Output      OutputConfig
	Store       StoreConfig
	Serve       ServeConfig
	Telemetry   TelemetryConfig
}

// ServerConfig contains HTTP server and logging settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// GitHubConfig configures what is collected and how.
type GitHubConfig struct {
	APIBaseURL              string
	RequestTimeout          time.Duration
	PerPage                 int
	Organization            string
	Repositories            []string
	Concurrency             int
	CommitStats             bool
	MaxCommitDetailsPerRepo int
	Auth                    GitHubAuthConfig
}

// GitHubAuthConfig selects a personal token or GitHub App installation credentials.
type GitHubAuthConfig struct {
	TokenEnv       string `yaml:"token_env"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// UsesApp reports whether GitHub App credentials are configured.
func (a GitHubAuthConfig) UsesApp() bool {
	return a.AppID > 0
}

// Token reads the personal access token from the configured environment variable.
func (a GitHubAuthConfig) Token() string {
	return strings.TrimSpace(os.Getenv(a.TokenEnv))
}

// RateLimitConfig configures rate-limit pacing.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures request retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// TimeRangeConfig selects the reporting window.
type TimeRangeConfig struct {
	Preset string `yaml:"preset"`
	Since  string `yaml:"since"`
	Until  string `yaml:"until"`
}

// Resolve turns the configured window into concrete bounds.
func (t TimeRangeConfig) Resolve(now time.Time) (daterange.Range, error) {
	return daterange.Parse(t.Preset, t.Since, t.Until, now)
}

// LeaderboardConfig configures ranking and filtering.
type LeaderboardConfig struct {
	OrganizationLabel string
	TopN              int
	MinEvents         int
	MinScore          float64
}

// OutputConfig configures where run writes its reports.
type OutputConfig struct {
	Dir             string `yaml:"dir"`
	LeaderboardFile string `yaml:"leaderboard_file"`
	DetailedFile    string `yaml:"detailed_file"`
}

// StoreConfig configures where the latest published snapshot lives.
type StoreConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	Retention     time.Duration
}

// ServeConfig configures the long-running mode.
type ServeConfig struct {
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Override adjusts a loaded configuration before validation, e.g. from CLI flags.
type Override func(cfg *Config)

// Load reads configuration from YAML, applies defaults and overrides, then validates.
func Load(reader io.Reader, overrides ...Override) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	return finish(raw.toConfig(), overrides)
}

// LoadFile loads path, or defaults alone when path is empty.
func LoadFile(path string, overrides ...Override) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(overrides...)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	return Load(file, overrides...)
}

// Default builds a configuration from defaults and overrides only.
func Default(overrides ...Override) (*Config, error) {
	return finish(rawConfig{}.toConfig(), overrides)
}

func finish(cfg *Config, overrides []Override) (*Config, error) {
	applyDefaults(cfg)
	for _, override := range overrides {
		if override != nil {
			override(cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if strings.TrimSpace(c.GitHub.Organization) == "" {
		errs = append(errs, "github.organization is required")
	}
	if c.GitHub.PerPage <= 0 || c.GitHub.PerPage > 100 {
		errs = append(errs, "github.per_page must be between 1 and 100")
	}
	if c.GitHub.Concurrency <= 0 {
		errs = append(errs, "github.concurrency must be > 0")
	}
	if c.GitHub.MaxCommitDetailsPerRepo < 0 {
		errs = append(errs, "github.max_commit_details_per_repo must be >= 0")
	}
	seenRepos := make(map[string]struct{}, len(c.GitHub.Repositories))
	for i, repo := range c.GitHub.Repositories {
		if strings.TrimSpace(repo) == "" {
			errs = append(errs, fmt.Sprintf("github.repositories[%d] is empty", i))
			continue
		}
		if _, ok := seenRepos[repo]; ok {
			errs = append(errs, "github.repositories contains duplicate repository: "+repo)
		}
		seenRepos[repo] = struct{}{}
	}

	auth := c.GitHub.Auth
	if auth.UsesApp() {
		if auth.InstallationID <= 0 {
			errs = append(errs, "github.auth.installation_id must be > 0 when github.auth.app_id is set")
		}
		if strings.TrimSpace(auth.PrivateKeyPath) == "" {
			errs = append(errs, "github.auth.private_key_path is required when github.auth.app_id is set")
		}
	} else if strings.TrimSpace(auth.TokenEnv) == "" {
		errs = append(errs, "github.auth.token_env is required without github app credentials")
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}
	if _, err := c.TimeRange.Resolve(time.Now()); err != nil {
		errs = append(errs, "time_range: "+err.Error())
	}
	if c.Leaderboard.MinEvents < 0 {
		errs = append(errs, "leaderboard.min_events must be >= 0")
	}

	if !slices.Contains(validStoreBackends, c.Store.Backend) {
		errs = append(errs, "store.backend must be memory or redis")
	}
	if c.Store.Backend == "redis" && strings.TrimSpace(c.Store.RedisAddr) == "" {
		errs = append(errs, "store.redis_addr is required when store.backend=redis")
	}
	if c.Serve.RefreshInterval <= 0 {
		errs = append(errs, "serve.refresh_interval must be > 0")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com/"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.PerPage == 0 {
		cfg.GitHub.PerPage = 100
	}
	if cfg.GitHub.Concurrency == 0 {
		cfg.GitHub.Concurrency = 4
	}
	if cfg.GitHub.MaxCommitDetailsPerRepo == 0 {
		cfg.GitHub.MaxCommitDetailsPerRepo = 500
	}
	if cfg.GitHub.Auth.TokenEnv == "" {
		cfg.GitHub.Auth.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 50
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Leaderboard.OrganizationLabel == "" {
		cfg.Leaderboard.OrganizationLabel = "Organization All-stars"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "data"
	}
	if cfg.Output.LeaderboardFile == "" {
		cfg.Output.LeaderboardFile = "top-contributors.json"
	}
	if cfg.Output.DetailedFile == "" {
		cfg.Output.DetailedFile = "detailed-metrics.json"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Backend == "redis" && cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "github-champion"
	}
	if cfg.Store.Retention == 0 {
		cfg.Store.Retention = 7 * 24 * time.Hour
	}
	if cfg.Serve.RefreshInterval == 0 {
		cfg.Serve.RefreshInterval = time.Hour
	}
	if cfg.Serve.RefreshTimeout == 0 {
		cfg.Serve.RefreshTimeout = 30 * time.Minute
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "sampled"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// parseFlexibleDuration accepts Go durations plus whole or fractional days ("7d") and weeks ("2w").
func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}
	switch {
	case strings.HasSuffix(trimmed, "d"):
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	case strings.HasSuffix(trimmed, "w"):
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}
	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}
	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server      ServerConfig    `yaml:"server"`
	GitHub      rawGitHub       `yaml:"github"`
	RateLimit   rawRateLimit    `yaml:"rate_limit"`
	Retry       rawRetry        `yaml:"retry"`
	TimeRange   TimeRangeConfig `yaml:"time_range"`
	Leaderboard rawLeaderboard  `yaml:"leaderboard"`
	Output      OutputConfig    `yaml:"output"`
	Store       rawStore        `yaml:"store"`
	Serve       rawServe        `yaml:"serve"`
	Telemetry   rawTelemetry    `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL              string           `yaml:"api_base_url"`
	RequestTimeout          duration         `yaml:"request_timeout"`
	PerPage                 int              `yaml:"per_page"`
	Organization            string           `yaml:"organization"`
	Repositories            []string         `yaml:"repositories"`
	Concurrency             int              `yaml:"concurrency"`
	CommitStats             bool             `yaml:"commit_stats"`
	MaxCommitDetailsPerRepo int              `yaml:"max_commit_details_per_repo"`
	Auth                    GitHubAuthConfig `yaml:"auth"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

// top_n and min_events treat an explicit zero differently from absence.
type rawLeaderboard struct {
	OrganizationLabel string  `yaml:"organization_label"`
	TopN              *int    `yaml:"top_n"`
	MinEvents         *int    `yaml:"min_events"`
	MinScore          float64 `yaml:"min_score"`
}

type rawStore struct {
	Backend       string   `yaml:"backend"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	KeyPrefix     string   `yaml:"key_prefix"`
	Retention     duration `yaml:"retention"`
}

type rawServe struct {
	RefreshInterval duration `yaml:"refresh_interval"`
	RefreshTimeout  duration `yaml:"refresh_timeout"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	cfg := &Config{
		Server: r.Server,
		GitHub: GitHubConfig{
			APIBaseURL:              strings.TrimSpace(r.GitHub.APIBaseURL),
			RequestTimeout:          r.GitHub.RequestTimeout.Duration,
			PerPage:                 r.GitHub.PerPage,
			Organization:            strings.TrimSpace(r.GitHub.Organization),
			Repositories:            r.GitHub.Repositories,
			Concurrency:             r.GitHub.Concurrency,
			CommitStats:             r.GitHub.CommitStats,
			MaxCommitDetailsPerRepo: r.GitHub.MaxCommitDetailsPerRepo,
			Auth:                    r.GitHub.Auth,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		TimeRange: r.TimeRange,
		Leaderboard: LeaderboardConfig{
			OrganizationLabel: r.Leaderboard.OrganizationLabel,
			TopN:              3,
			MinEvents:         1,
			MinScore:          r.Leaderboard.MinScore,
		},
		Output: r.Output,
		Store: StoreConfig{
			Backend:       r.Store.Backend,
			RedisAddr:     r.Store.RedisAddr,
			RedisPassword: r.Store.RedisPassword,
			RedisDB:       r.Store.RedisDB,
			KeyPrefix:     r.Store.KeyPrefix,
			Retention:     r.Store.Retention.Duration,
		},
		Serve: ServeConfig{
			RefreshInterval: r.Serve.RefreshInterval.Duration,
			RefreshTimeout:  r.Serve.RefreshTimeout.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
	if r.Leaderboard.TopN != nil {
		cfg.Leaderboard.TopN = *r.Leaderboard.TopN
	}
	if r.Leaderboard.MinEvents != nil {
		cfg.Leaderboard.MinEvents = *r.Leaderboard.MinEvents
	}
	return cfg
}
