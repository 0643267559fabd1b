// Package telemetry configures OpenTelemetry tracing for the collector and the HTTP surface.
package telemetry

import (
	"context"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when the configuration leaves it empty.
const DefaultServiceName = "github-champion"

// Trace modes.
const (
	TraceModeOff      = "off"
	TraceModeErrors   = "errors"
	TraceModeSampled  = "sampled"
	TraceModeDetailed = "detailed"
)

var globalTraceMode atomic.Value

// Config configures tracing.
type Config struct {
	Enabled          bool
	ServiceName      string
	TraceMode        string
	TraceSampleRatio float64
	// SpanProcessors are registered on the provider, e.g. a batch exporter or a test recorder.
	SpanProcessors []sdktrace.SpanProcessor
}

// Runtime holds the installed provider.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// Setup installs a global tracer provider for cfg.
func Setup(cfg Config) (Runtime, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	mode := normalizeTraceMode(cfg.TraceMode)
	if !cfg.Enabled {
		mode = TraceModeOff
	}
	setTraceMode(mode)

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return Runtime{}, err
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(samplerForMode(mode, cfg.TraceSampleRatio)),
		sdktrace.WithResource(res),
	}
	for _, processor := range cfg.SpanProcessors {
		options = append(options, sdktrace.WithSpanProcessor(processor))
	}

	provider := sdktrace.NewTracerProvider(options...)
	otel.SetTracerProvider(provider)
	return Runtime{TracerProvider: provider, Shutdown: provider.Shutdown}, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// TraceMode reports the active trace mode.
func TraceMode() string {
	mode, _ := globalTraceMode.Load().(string)
	if mode == "" {
		return TraceModeOff
	}
	return mode
}

// ShouldTraceDependencies reports whether per-request GitHub spans should be emitted.
func ShouldTraceDependencies() bool {
	return TraceMode() == TraceModeDetailed
}

// Enabled reports whether any spans are being recorded.
func Enabled() bool {
	return TraceMode() != TraceModeOff
}

func samplerForMode(mode string, ratio float64) sdktrace.Sampler {
	ratio = clampRatio(ratio)
	switch normalizeTraceMode(mode) {
	case TraceModeOff:
		return sdktrace.NeverSample()
	case TraceModeDetailed:
		return sdktrace.AlwaysSample()
	case TraceModeErrors:
		if ratio <= 0 {
			ratio = 0.01
		}
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func setTraceMode(mode string) {
	globalTraceMode.Store(normalizeTraceMode(mode))
}

func normalizeTraceMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case TraceModeOff:
		return TraceModeOff
	case TraceModeErrors:
		return TraceModeErrors
	case TraceModeDetailed:
		return TraceModeDetailed
	default:
		return TraceModeSampled
	}
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
