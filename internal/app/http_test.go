package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cam3ron2/github-champion/internal/report"
	"github.com/cam3ron2/github-champion/internal/scoring"
	"github.com/cam3ron2/github-champion/internal/store"
)

func TestNewHTTPHandler(t *testing.T) {
	t.Parallel()

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("metrics"))
	})
	healthHandler := http.NewServeMux()
	healthHandler.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	healthHandler.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	healthHandler.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"mode":"healthy"}`))
	})

	reportsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("report " + r.URL.Path))
	})

	handler := NewHTTPHandler(metricsHandler, healthHandler, reportsHandler)

	testCases := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/metrics", wantCode: http.StatusOK, wantBody: "metrics"},
		{path: "/livez", wantCode: http.StatusOK, wantBody: "live"},
		{path: "/readyz", wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
		{path: "/healthz", wantCode: http.StatusOK, wantBody: `{"mode":"healthy"}`},
		{path: "/leaderboard", wantCode: http.StatusOK, wantBody: "report /leaderboard"},
		{path: "/detailed", wantCode: http.StatusOK, wantBody: "report /detailed"},
		{path: "/unknown", wantCode: http.StatusNotFound, wantBody: "404 page not found\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if rec.Body.String() != tc.wantBody {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestWrapHTTPHandlerByTraceMode(t *testing.T) {
	t.Parallel()

	base := &staticHandler{}

	testCases := []struct {
		name        string
		traceMode   string
		wantWrapped bool
	}{
		{
			name:        "trace_off",
			traceMode:   "off",
			wantWrapped: false,
		},
		{
			name:        "trace_sampled",
			traceMode:   "sampled",
			wantWrapped: true,
		},
		{
			name:        "trace_detailed",
			traceMode:   "detailed",
			wantWrapped: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wrapped := wrapHTTPHandler(tc.traceMode, "metrics", base)
			gotWrapped := wrapped != base
			if gotWrapped != tc.wantWrapped {
				t.Fatalf("wrapped = %t, want %t", gotWrapped, tc.wantWrapped)
			}
		})
	}
}

func TestWrapHTTPHandlerNilHandlerAndStatusCapture(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		traceMode string
		route     string
		handler   http.Handler
		wantCode  int
	}{
		{
			name:      "nil_handler_uses_not_found",
			traceMode: "sampled",
			route:     "metrics",
			handler:   nil,
			wantCode:  http.StatusNotFound,
		},
		{
			name:      "empty_route_defaults_operation_name",
			traceMode: "detailed",
			route:     "",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			wrapped := wrapHTTPHandler(tc.traceMode, tc.route, tc.handler)
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

type staticHandler struct{}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type fakeSnapshotReader struct {
	latestFn func(ctx context.Context) (store.Snapshot, error)
}

func (f *fakeSnapshotReader) Latest(ctx context.Context) (store.Snapshot, error) {
	return f.latestFn(ctx)
}

func TestReportsHandler(t *testing.T) {
	t.Parallel()

	published := store.Snapshot{
		Organization: "middle-earth",
		GeneratedAt:  time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
		Repositories: []string{"the-shire"},
		Leaderboard: report.LeaderboardReport{Sections: []report.Section{
			{Name: "Fellowship All-stars", Entries: []scoring.Entry{{Name: "frodo", Total: 4.5, IssuesClosed: 2}}},
		}},
	}

	testCases := []struct {
		name     string
		path     string
		snapshot store.Snapshot
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "leaderboard",
			path:     "/leaderboard",
			snapshot: published,
			wantCode: http.StatusOK,
			wantBody: `"Fellowship All-stars"`,
		},
		{
			name:     "detailed_without_rows_is_empty_array",
			path:     "/detailed",
			snapshot: published,
			wantCode: http.StatusOK,
			wantBody: "[]",
		},
		{
			name:     "no_snapshot",
			path:     "/leaderboard",
			err:      store.ErrNoSnapshot,
			wantCode: http.StatusServiceUnavailable,
			wantBody: "no leaderboard snapshot",
		},
		{
			name:     "store_failure",
			path:     "/detailed",
			err:      errors.New("redis down"),
			wantCode: http.StatusInternalServerError,
			wantBody: "read leaderboard snapshot",
		},
		{
			name:     "unknown_route",
			path:     "/reports",
			snapshot: published,
			wantCode: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := NewReportsHandler(&fakeSnapshotReader{latestFn: func(context.Context) (store.Snapshot, error) {
				return tc.snapshot, tc.err
			}})
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("body = %q, want substring %q", rec.Body.String(), tc.wantBody)
			}
			if tc.wantCode == http.StatusOK && rec.Header().Get("Content-Type") != "application/json" {
				t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}
