package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cam3ron2/github-champion/internal/exporter"
	"github.com/cam3ron2/github-champion/internal/report"
	"github.com/cam3ron2/github-champion/internal/store"
	"github.com/cam3ron2/github-champion/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewHTTPHandler wires metrics, health, and report endpoints on a single router.
func NewHTTPHandler(metricsHandler, healthHandler, reportsHandler http.Handler) http.Handler {
	router := chi.NewRouter()
	traceMode := telemetry.TraceMode()
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", metricsHandler))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	router.Method(http.MethodGet, "/leaderboard", wrapHTTPHandler(traceMode, "leaderboard", reportsHandler))
	router.Method(http.MethodGet, "/detailed", wrapHTTPHandler(traceMode, "detailed", reportsHandler))
	return router
}

// NewReportsHandler serves the latest leaderboard and detailed reports as JSON.
func NewReportsHandler(reader exporter.SnapshotReader) http.Handler {
	router := chi.NewRouter()
	router.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := latestSnapshot(w, r, reader)
		if !ok {
			return
		}
		writeJSON(w, snapshot.Leaderboard)
	})
	router.Get("/detailed", func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := latestSnapshot(w, r, reader)
		if !ok {
			return
		}
		detailed := snapshot.Detailed
		if detailed == nil {
			detailed = []report.DetailedMetric{}
		}
		writeJSON(w, detailed)
	})
	return router
}

func latestSnapshot(w http.ResponseWriter, r *http.Request, reader exporter.SnapshotReader) (store.Snapshot, bool) {
	snapshot, err := reader.Latest(r.Context())
	switch {
	case err == nil:
		return snapshot, true
	case errors.Is(err, store.ErrNoSnapshot):
		http.Error(w, "no leaderboard snapshot published yet", http.StatusServiceUnavailable)
	default:
		http.Error(w, "read leaderboard snapshot", http.StatusInternalServerError)
	}
	return store.Snapshot{}, false
}

func writeJSON(w http.ResponseWriter, value any) {
	payload, err := report.Encode(value)
	if err != nil {
		http.Error(w, "encode report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		return
	}
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer(tracerName).Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
