// Package github implements the "github" app adapter using the go-github
// library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_primary_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_secondary_ratelimit"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

const AppName = "github"

// Compile-time interface satisfaction check.
var _ driven.AppAdapter = (*Adapter)(nil)

// Adapter exposes GitHub actions. Every call builds a go-github client for
// the caller's token over one shared transport stack:
//  1. go-github-ratelimit (primary and secondary limit detection; it never
//     sleeps, so a limited request fails instead of being sent again)
//  2. httpcache (ETag-based conditional request caching)
//  3. the provider transport (per-app rate limit, Retry-After pause, tracing)
//
// The cache is shared by all users. GitHub marks responses with
// "Vary: Authorization", so a cached entry is only served to the token that
// fetched it.
type Adapter struct {
	p       *upstream.Provider
	http    *http.Client
	baseURL *url.URL // nil selects api.github.com.
	logger  *slog.Logger
}

// New creates the GitHub adapter over p. A provider base URL points the
// client at GitHub Enterprise or a test server.
func New(p *upstream.Provider, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = p.Transport()
	limiter := github_ratelimit.New(singleAttempt{next: cacheTransport},
		github_secondary_ratelimit.WithSingleSleepLimit(0, nil))
	client := &http.Client{Transport: attemptCounter{next: limiter}, Timeout: p.Timeout()}

	a := &Adapter{p: p, http: client, logger: logger}
	if base := p.BaseURL(); base != "" {
		u, err := url.Parse(base + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		a.baseURL = u
	}
	return a, nil
}

// Name implements driven.AppAdapter.
func (a *Adapter) Name() string { return AppName }

// DisplayName implements driven.AppAdapter.
func (a *Adapter) DisplayName() string { return a.p.Name() }

// Actions implements driven.AppAdapter.
func (a *Adapter) Actions() []driven.Action {
	repo := model.FieldSpec{Name: "repo", Type: model.FieldString, Required: true, Description: "owner/repo"}
	perPage := model.FieldSpec{Name: "per_page", Type: model.FieldInt, Default: 30, Description: "1 to 100"}
	state := model.FieldSpec{Name: "state", Type: model.FieldString, Default: "open", Description: "open, closed or all"}

	return []driven.Action{
		{
			Name:        "listIssues",
			Description: "List issues of a repository, newest first. Pull requests are left out.",
			ReadOnly:    true,
			Fields: []model.FieldSpec{
				repo, state, perPage,
				{Name: "labels", Type: model.FieldStringList, Description: "only issues carrying all of these labels"},
			},
			Handler: a.listIssues,
		},
		{
			Name:        "createIssue",
			Description: "Open an issue.",
			Fields: []model.FieldSpec{
				repo,
				{Name: "title", Type: model.FieldString, Required: true},
				{Name: "body", Type: model.FieldString},
				{Name: "labels", Type: model.FieldStringList},
				{Name: "assignees", Type: model.FieldStringList},
			},
			Handler: a.createIssue,
		},
		{
			Name:        "addComment",
			Description: "Comment on an issue or pull request.",
			Fields: []model.FieldSpec{
				repo,
				{Name: "number", Type: model.FieldInt, Required: true},
				{Name: "body", Type: model.FieldString, Required: true},
			},
			Handler: a.addComment,
		},
		{
			Name:        "listPullRequests",
			Description: "List pull requests of a repository, most recently updated first.",
			ReadOnly:    true,
			Fields:      []model.FieldSpec{repo, state, perPage},
			Handler:     a.listPullRequests,
		},
	}
}

// client returns a go-github client authenticated as token.
func (a *Adapter) client(token string) *gh.Client {
	c := gh.NewClient(a.http).WithAuthToken(token)
	if a.baseURL != nil {
		c.BaseURL = a.baseURL
	}
	return c
}

type attemptsKey struct{}

// attemptCounter gives every outgoing request its own attempt counter.
type attemptCounter struct{ next http.RoundTripper }

func (t attemptCounter) RoundTrip(req *http.Request) (*http.Response, error) {
	var n atomic.Int32
	return t.next.RoundTrip(req.WithContext(context.WithValue(req.Context(), attemptsKey{}, &n)))
}

// singleAttempt refuses to send a request a second time. The secondary
// limiter resends a request whose reported reset time has already passed;
// outbound calls are never repeated, so that resend fails as a rate limit.
type singleAttempt struct{ next http.RoundTripper }

func (t singleAttempt) RoundTrip(req *http.Request) (*http.Response, error) {
	if n, ok := req.Context().Value(attemptsKey{}).(*atomic.Int32); ok && n.Add(1) > 1 {
		return nil, &upstream.StatusError{Code: http.StatusTooManyRequests, Detail: "secondary rate limit"}
	}
	return t.next.RoundTrip(req)
}

// translate maps go-github errors onto proxy errors.
func (a *Adapter) translate(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return model.UpstreamAPI(a.p.Name(), fmt.Sprintf("rate limit exceeded, resets at %s",
			rateErr.Rate.Reset.UTC().Format(time.RFC3339)), err)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return model.UpstreamAPI(a.p.Name(), "rate limit exceeded, try again later", err)
	}
	var reachedErr *github_primary_ratelimit.RateLimitReachedError
	if errors.As(err, &reachedErr) && reachedErr.ResetTime != nil {
		return model.UpstreamAPI(a.p.Name(), fmt.Sprintf("rate limit exceeded, resets at %s",
			reachedErr.ResetTime.UTC().Format(time.RFC3339)), err)
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return a.p.FromStatus(respErr.Response.StatusCode, respErr.Message, err)
	}
	return a.p.Translate(err)
}

// logRateLimit records the primary rate limit reported by a response.
func (a *Adapter) logRateLimit(resp *gh.Response, endpoint string, count int) {
	if resp == nil {
		return
	}

	a.logger.Debug("github api call",
		"endpoint", endpoint,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		a.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(fullName), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", model.PayloadValidation("invalid repo %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}

func perPage(p model.Payload) (int, error) {
	n := p.Int("per_page")
	if n < 1 || n > 100 {
		return 0, model.PayloadValidation("per_page must be between 1 and 100")
	}
	return n, nil
}

func listState(p model.Payload) (string, error) {
	switch s := p.String("state"); s {
	case "open", "closed", "all":
		return s, nil
	default:
		return "", model.PayloadValidation("state must be open, closed or all")
	}
}
