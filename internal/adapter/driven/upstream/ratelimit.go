package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is the token-bucket budget of one provider.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimits keeps each provider well below its published quota.
var DefaultRateLimits = map[string]RateLimit{
	"gmail":    {RequestsPerSecond: 10, Burst: 20},
	"calendar": {RequestsPerSecond: 10, Burst: 20},
	"gdrive":   {RequestsPerSecond: 10, Burst: 20},
	"slack":    {RequestsPerSecond: 1, Burst: 5},
	"notion":   {RequestsPerSecond: 3, Burst: 6},
	"github":   {RequestsPerSecond: 10, Burst: 20},
}

// defaultBackoff applies when a 429 carries no usable Retry-After header.
const defaultBackoff = 30 * time.Second

// RateLimitedTransport waits for a token before each request. The wait is
// bounded by the request context, so it counts against the outbound timeout
// like any other part of the call. After a rate-limit answer further requests wait until
// the provider's Retry-After has passed; the rejected request itself is not
// replayed.
type RateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
	now     func() time.Time

	mu      sync.Mutex
	retryAt time.Time
}

// NewRateLimitedTransport wraps base with limit. A non-positive rate
// disables limiting and returns base unchanged.
func NewRateLimitedTransport(base http.RoundTripper, limit RateLimit) http.RoundTripper {
	if limit.RequestsPerSecond <= 0 {
		return base
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), burst),
		now:     time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	t.mu.Lock()
	retryAt := t.retryAt
	t.mu.Unlock()

	if wait := retryAt.Sub(t.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The limiter refuses waits that would outlive the deadline.
		return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}

	resp, err := t.base.RoundTrip(req)
	if err == nil && limited(resp) {
		t.backoff(resp.Header.Get("Retry-After"))
	}
	return resp, err
}

// limited reports a rate-limit answer: any 429, or a 403 carrying
// Retry-After (GitHub's secondary limits).
func limited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("Retry-After") != ""
	}
	return false
}

func (t *RateLimitedTransport) backoff(retryAfter string) {
	d := defaultBackoff
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(retryAfter); err == nil {
		d = at.Sub(t.now())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if until := t.now().Add(d); until.After(t.retryAt) {
		t.retryAt = until
	}
}
