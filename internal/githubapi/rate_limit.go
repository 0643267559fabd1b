package githubapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Decision reasons.
const (
	ReasonWithinBudget    = "within_budget"
	ReasonResetElapsed    = "reset_elapsed"
	ReasonBelowThreshold  = "remaining_below_threshold"
	ReasonSecondaryLimit  = "secondary_limit"
	ReasonHeadersAbsent   = "headers_absent"
	defaultSecondaryPause = time.Minute
)

// RateLimitHeaders is the parsed rate-limit state reported by one response.
type RateLimitHeaders struct {
	Present          bool
	Limit            int
	Remaining        int
	Used             int
	ResetUnix        int64
	Resource         string
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// Decision says whether the next request may go out and, if not, how long to wait.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy paces requests against GitHub's primary and secondary limits.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// ParseRateLimitHeaders reads the X-RateLimit-* and Retry-After headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{
		Present:   strings.TrimSpace(header.Get("X-RateLimit-Remaining")) != "",
		Limit:     parseInt(header.Get("X-RateLimit-Limit")),
		Remaining: parseInt(header.Get("X-RateLimit-Remaining")),
		Used:      parseInt(header.Get("X-RateLimit-Used")),
		ResetUnix: parseInt64(header.Get("X-RateLimit-Reset")),
		Resource:  strings.TrimSpace(header.Get("X-RateLimit-Resource")),
	}
	if seconds := parseInt(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		parsed.SecondaryLimited = true
	case statusCode == http.StatusForbidden && (parsed.RetryAfter > 0 || (parsed.Present && parsed.Remaining == 0)):
		parsed.SecondaryLimited = true
	}
	return parsed
}

// Evaluate decides whether calls may continue.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.SecondaryLimited {
		waitFor := p.SecondaryLimitBackoff
		if waitFor <= 0 {
			waitFor = defaultSecondaryPause
		}
		if headers.RetryAfter > waitFor {
			waitFor = headers.RetryAfter
		}
		if resetAt := time.Unix(headers.ResetUnix, 0); headers.ResetUnix > 0 && resetAt.Sub(now) > waitFor {
			waitFor = resetAt.Sub(now) + p.MinResetBuffer
		}
		return Decision{Allow: false, WaitFor: waitFor, Reason: ReasonSecondaryLimit}
	}

	if !headers.Present {
		return Decision{Allow: true, Reason: ReasonHeadersAbsent}
	}
	if headers.Remaining >= p.MinRemainingThreshold {
		return Decision{Allow: true, Reason: ReasonWithinBudget}
	}

	resetAt := time.Unix(headers.ResetUnix, 0)
	if !resetAt.After(now) {
		return Decision{Allow: true, Reason: ReasonResetElapsed}
	}
	return Decision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  ReasonBelowThreshold,
	}
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
