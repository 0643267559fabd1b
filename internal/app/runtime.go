package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/daterange"
	"github.com/cam3ron2/github-champion/internal/exporter"
	"github.com/cam3ron2/github-champion/internal/health"
	"github.com/cam3ron2/github-champion/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PipelineRunner runs the pipeline for one window.
type PipelineRunner interface {
	Run(ctx context.Context, window daterange.Range) (Output, error)
}

// RuntimeConfig configures serve mode.
type RuntimeConfig struct {
	Organization    string
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	CacheInterval   time.Duration
	TimeRange       config.TimeRangeConfig
}

// RuntimeConfigFromConfig maps application configuration onto runtime settings.
func RuntimeConfigFromConfig(cfg *config.Config) RuntimeConfig {
	return RuntimeConfig{
		Organization:    cfg.GitHub.Organization,
		RefreshInterval: cfg.Serve.RefreshInterval,
		RefreshTimeout:  cfg.Serve.RefreshTimeout,
		TimeRange:       cfg.TimeRange,
	}
}

// Runtime periodically refreshes the leaderboard and serves the latest snapshot.
type Runtime struct {
	cfg       RuntimeConfig
	pipeline  PipelineRunner
	store     store.SnapshotStore
	reader    exporter.SnapshotReader
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	lastSuccess     prometheus.Gauge

	mu               sync.RWMutex
	schedulerHealthy bool
	lastRefreshAt    time.Time
	lastRefreshErr   error
	cancel           context.CancelFunc
	done             chan struct{}

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(cfg RuntimeConfig, pipeline PipelineRunner, snapshots store.SnapshotStore, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if snapshots == nil {
		snapshots = store.NewMemoryStore(0)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = cfg.RefreshInterval
	}
	if cfg.CacheInterval <= 0 {
		cfg.CacheInterval = 15 * time.Second
	}

	r := &Runtime{
		cfg:       cfg,
		pipeline:  pipeline,
		store:     snapshots,
		evaluator: health.NewStatusEvaluator(),
		logger:    logger,
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "champion_refresh_runs_total",
			Help: "Leaderboard refresh runs by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "champion_refresh_duration_seconds",
			Help:    "Duration of leaderboard refresh runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "champion_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}),
		Now: time.Now,
	}
	r.reader = exporter.NewCachedSnapshotReader(snapshots, exporter.CacheConfig{
		RefreshInterval: cfg.CacheInterval,
		Now:             func() time.Time { return r.Now() },
	})
	return r
}

// Store exposes the snapshot store.
func (r *Runtime) Store() store.SnapshotStore {
	return r.store
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	metricsHandler := exporter.NewOpenMetricsHandler(r.reader, r.refreshTotal, r.refreshDuration, r.lastSuccess)
	healthHandler := health.NewHandler(r)
	return NewHTTPHandler(metricsHandler, healthHandler, NewReportsHandler(r.reader))
}

// Start runs a refresh immediately and then every refresh interval until ctx ends or Stop is called.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.schedulerHealthy = true
	done := r.done
	r.mu.Unlock()

	r.logger.Info("starting refresh loop",
		zap.String("org", r.cfg.Organization),
		zap.Duration("interval", r.cfg.RefreshInterval),
	)
	go r.runLoop(loopCtx, done)
}

// Stop stops the refresh loop and waits for an in-flight refresh to return.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.schedulerHealthy = false
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("stopped refresh loop")
}

// RunRefreshCycle runs the pipeline once and publishes the result.
func (r *Runtime) RunRefreshCycle(ctx context.Context) error {
	start := r.Now()
	acquired, err := r.store.AcquireRefreshLock(ctx, r.cfg.RefreshTimeout, start)
	if err != nil {
		r.refreshTotal.WithLabelValues("lock_error").Inc()
		return r.recordRefresh(start, fmt.Errorf("acquire refresh lock: %w", err))
	}
	if !acquired {
		r.refreshTotal.WithLabelValues("skipped").Inc()
		r.logger.Debug("refresh skipped; another instance holds the refresh lock")
		return nil
	}

	window, err := r.cfg.TimeRange.Resolve(start)
	if err != nil {
		r.refreshTotal.WithLabelValues("failure").Inc()
		return r.recordRefresh(start, fmt.Errorf("resolve time range: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RefreshTimeout)
	defer cancel()
	output, err := r.pipeline.Run(runCtx, window)
	r.refreshDuration.Observe(r.Now().Sub(start).Seconds())
	if err != nil {
		result := "failure"
		if errors.Is(err, ErrNoMetrics) || errors.Is(err, ErrAllFiltered) {
			result = "empty"
		}
		r.refreshTotal.WithLabelValues(result).Inc()
		return r.recordRefresh(start, err)
	}

	if err := r.store.Publish(ctx, output.Snapshot(r.cfg.Organization)); err != nil {
		r.refreshTotal.WithLabelValues("publish_error").Inc()
		return r.recordRefresh(start, fmt.Errorf("publish snapshot: %w", err))
	}
	exporter.Invalidate(r.reader)

	r.refreshTotal.WithLabelValues("success").Inc()
	r.lastSuccess.Set(float64(output.GeneratedAt.Unix()))
	r.logger.Info("published leaderboard snapshot",
		zap.Int("repositories", len(output.Repositories)),
		zap.Int("dropped", len(output.Dropped)),
		zap.Int("failed", len(output.Failed)),
		zap.Duration("duration", r.Now().Sub(start)),
	)
	return r.recordRefresh(start, nil)
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	_, err := r.reader.Latest(ctx)

	r.mu.RLock()
	input := health.Input{
		StoreHealthy:         err == nil || errors.Is(err, store.ErrNoSnapshot),
		SchedulerHealthy:     r.schedulerHealthy,
		SnapshotPublished:    err == nil,
		LastRefreshSucceeded: r.lastRefreshErr == nil && !r.lastRefreshAt.IsZero(),
		LastRefreshAt:        r.lastRefreshAt,
	}
	if r.lastRefreshErr != nil {
		input.LastRefreshError = r.lastRefreshErr.Error()
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

func (r *Runtime) recordRefresh(at time.Time, err error) error {
	r.mu.Lock()
	r.lastRefreshAt = at
	r.lastRefreshErr = err
	r.mu.Unlock()
	return err
}

func (r *Runtime) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	r.refreshBestEffort(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("refresh loop stopped")
			return
		case <-ticker.C:
			r.refreshBestEffort(ctx)
		}
	}
}

func (r *Runtime) refreshBestEffort(ctx context.Context) {
	if err := r.RunRefreshCycle(ctx); err != nil {
		r.logger.Warn("leaderboard refresh failed", zap.Error(err))
	}
}
