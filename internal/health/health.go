// Package health evaluates liveness and readiness for serve mode.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all required dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates a snapshot is served but the latest refresh failed.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates nothing can be served.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents dependency states used for health evaluation.
type Input struct {
	StoreHealthy         bool
	SchedulerHealthy     bool
	SnapshotPublished    bool
	LastRefreshSucceeded bool
	LastRefreshAt        time.Time
	LastRefreshError     string
}

// Status represents evaluated application health.
type Status struct {
	Mode             Mode            `json:"mode"`
	Ready            bool            `json:"ready"`
	Components       map[string]bool `json:"components"`
	LastRefreshAt    string          `json:"lastRefreshAt,omitempty"`
	LastRefreshError string          `json:"lastRefreshError,omitempty"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates health and readiness.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	components := map[string]bool{
		"store":        input.StoreHealthy,
		"scheduler":    input.SchedulerHealthy,
		"snapshot":     input.SnapshotPublished,
		"last_refresh": input.LastRefreshSucceeded,
	}

	ready := input.StoreHealthy && input.SchedulerHealthy && input.SnapshotPublished

	mode := ModeHealthy
	if !ready {
		mode = ModeUnhealthy
	} else if !input.LastRefreshSucceeded {
		mode = ModeDegraded
	}

	status := Status{
		Mode:             mode,
		Ready:            ready,
		Components:       components,
		LastRefreshError: input.LastRefreshError,
	}
	if !input.LastRefreshAt.IsZero() {
		status.LastRefreshAt = input.LastRefreshAt.UTC().Format(time.RFC3339)
	}
	return status
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}
