package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/github-champion/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github-champion/internal/githubapi"

// RetryConfig controls how often and how patiently a request is retried.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports what happened while serving one logical call.
type CallMetadata struct {
	Attempts        int
	Waited          time.Duration
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client sends GitHub requests with retries and rate-limit pacing.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	logger     *zap.Logger
	// Sleep waits between attempts; it returns early with the context error on cancellation.
	Sleep func(ctx context.Context, duration time.Duration) error
}

// NewClient creates a request client. A nil logger discards output.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy, logger *zap.Logger) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		logger:     logger,
		Sleep:      sleepContext,
	}
}

// Do executes req, retrying network errors, 429 and 5xx responses, and pausing when the
// rate-limit policy says the budget is spent. The last response is returned as-is once
// attempts run out so callers can classify it.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer(tracerName).Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}
	fail := func(status string) {
		if span != nil {
			span.SetStatus(codes.Error, status)
		}
	}

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt
		last := attempt == c.retry.MaxAttempts

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(attribute.Int("github.attempt", attempt)))
			}
			if last || ctx.Err() != nil {
				fail(err.Error())
				return nil, metadata, err
			}
			if waitErr := c.wait(ctx, &metadata, backoffForAttempt(c.retry, attempt)); waitErr != nil {
				fail(waitErr.Error())
				return nil, metadata, waitErr
			}
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastRateHeaders = headers
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		retryable := !decision.Allow || isTransientStatus(resp.StatusCode)
		if !retryable {
			if span != nil {
				span.SetStatus(codes.Ok, "request completed")
			}
			return resp, metadata, nil
		}
		if last {
			fail(fmt.Sprintf("gave up with status %d (%s)", resp.StatusCode, decision.Reason))
			return resp, metadata, nil
		}
		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		pause := backoffForAttempt(c.retry, attempt)
		if !decision.Allow {
			pause = decision.WaitFor
			c.logger.Info(
				"github rate limit pause",
				zap.String("path", req.URL.Path),
				zap.String("reason", decision.Reason),
				zap.Duration("wait", pause),
			)
		}
		if waitErr := c.wait(ctx, &metadata, pause); waitErr != nil {
			fail(waitErr.Error())
			return nil, metadata, waitErr
		}
	}

	fail("request attempts exhausted")
	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

func (c *Client) wait(ctx context.Context, metadata *CallMetadata, duration time.Duration) error {
	metadata.Waited += duration
	return c.Sleep(ctx, duration)
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransientStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode <= 599)
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			break
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
