package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

func newTestProvider(t *testing.T, handler http.Handler, opts ProviderOptions) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	return NewProvider("Slack", http.DefaultTransport, opts)
}

func TestDoJSON_SendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotCT, gotCustom string
	var gotBody map[string]any

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("Notion-Version")
		assert.Equal(t, "/v1/pages", r.URL.Path)
		assert.Equal(t, "x", r.URL.Query().Get("q"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"page-1"}`))
	}), ProviderOptions{})

	var out struct {
		ID string `json:"id"`
	}
	err := p.DoJSON(context.Background(), "tok-123", JSONRequest{
		Method: http.MethodPost,
		Path:   "/v1/pages",
		Query:  map[string][]string{"q": {"x"}},
		Body:   map[string]any{"title": "hello"},
		Header: http.Header{"Notion-Version": {"2022-06-28"}},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "page-1", out.ID)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "application/json; charset=utf-8", gotCT)
	assert.Equal(t, "2022-06-28", gotCustom)
	assert.Equal(t, "hello", gotBody["title"])
}

func TestDoJSON_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{"message field", http.StatusBadRequest, `{"object":"error","message":"body failed validation"}`, "body failed validation"},
		{"string error field", http.StatusForbidden, `{"ok":false,"error":"missing_scope"}`, "missing_scope"},
		{"nested error", http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`, "Not Found"},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "Bad Gateway"},
		{"empty body", http.StatusInternalServerError, ``, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), ProviderOptions{})

			err := p.DoJSON(context.Background(), "tok", JSONRequest{Method: http.MethodGet, Path: "/"}, nil)

			var serr *StatusError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.status, serr.Code)
			assert.Equal(t, tt.wantDetail, serr.Detail)
		})
	}
}

func TestTranslate(t *testing.T) {
	p := NewProvider("Gmail", nil, ProviderOptions{Timeout: 30 * time.Second})

	tests := []struct {
		name     string
		err      error
		wantKind model.ErrorKind
		wantMsg  string
	}{
		{
			name:     "deadline",
			err:      fmt.Errorf("get: %w", context.DeadlineExceeded),
			wantKind: model.KindTimeout,
			wantMsg:  "Timeout: Gmail API did not respond within 30s",
		},
		{
			name:     "google 401",
			err:      &googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"},
			wantKind: model.KindTokenExpired,
			wantMsg:  "Gmail access token is invalid or expired. Please reconnect your Gmail account.",
		},
		{
			name:     "google 403",
			err:      &googleapi.Error{Code: http.StatusForbidden, Message: "Insufficient Permission"},
			wantKind: model.KindUpstreamAPI,
			wantMsg:  "Gmail API error: 403 Insufficient Permission",
		},
		{
			name:     "google error without message",
			err:      &googleapi.Error{Code: http.StatusNotFound, Errors: []googleapi.ErrorItem{{Message: "Requested entity was not found."}}},
			wantKind: model.KindUpstreamAPI,
			wantMsg:  "Gmail API error: 404 Requested entity was not found.",
		},
		{
			name:     "status 429",
			err:      &StatusError{Code: http.StatusTooManyRequests, Detail: "ratelimited"},
			wantKind: model.KindUpstreamAPI,
			wantMsg:  "Gmail API error: rate limit exceeded, try again later",
		},
		{
			name:     "malformed json",
			err:      fmt.Errorf("decode response: %w", &json.SyntaxError{Offset: 3}),
			wantKind: model.KindUpstreamAPI,
			wantMsg:  "Gmail API error: unexpected response format",
		},
		{
			name:     "anything else",
			err:      errors.New("connection reset by peer"),
			wantKind: model.KindUpstreamAPI,
			wantMsg:  "Gmail API error: request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Translate(tt.err)
			assert.Equal(t, tt.wantKind, model.KindOf(got))
			assert.Equal(t, tt.wantMsg, got.Error())
		})
	}

	assert.NoError(t, p.Translate(nil))
	assert.True(t, errors.Is(p.Translate(context.Canceled), context.Canceled))

	drive := NewProvider("Google Drive", nil, ProviderOptions{Account: "Google"})
	assert.Equal(t, "Google Drive access token is invalid or expired. Please reconnect your Google account.",
		drive.Translate(&googleapi.Error{Code: http.StatusUnauthorized}).Error())

	already := model.UpstreamAPI("Gmail", "custom", nil)
	assert.Same(t, already, p.Translate(already))
}

func TestDoJSON_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), ProviderOptions{Timeout: 5 * time.Second})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.DoJSON(ctx, "tok", JSONRequest{Method: http.MethodGet, Path: "/slow"}, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	translated := p.Translate(err)
	assert.Equal(t, model.KindTimeout, model.KindOf(translated))
	assert.Equal(t, "Timeout: Slack API did not respond within 5s", translated.Error())
}

func TestRateLimitedTransport_BacksOffAfter429(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}), ProviderOptions{RateLimit: RateLimit{RequestsPerSecond: 100, Burst: 10}})

	err := p.DoJSON(context.Background(), "tok", JSONRequest{Method: http.MethodGet, Path: "/"}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a 429 is not replayed")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = p.DoJSON(ctx, "tok", JSONRequest{Method: http.MethodGet, Path: "/"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), calls.Load(), "backoff holds the next request")
}

func TestRateLimitedTransport_ForbiddenBackoff(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		wantCalls  int32
	}{
		{name: "403 with Retry-After pauses", retryAfter: "60", wantCalls: 1},
		{name: "plain 403 does not pause", wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(http.StatusForbidden)
			}), ProviderOptions{RateLimit: RateLimit{RequestsPerSecond: 100, Burst: 10}})

			for range 2 {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				err := p.DoJSON(ctx, "tok", JSONRequest{Method: http.MethodGet, Path: "/"}, nil)
				cancel()
				require.Error(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestRateLimitedTransport_WaitBoundedByDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewRateLimitedTransport(http.DefaultTransport, RateLimit{RequestsPerSecond: 0.01, Burst: 1})}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewRateLimitedTransport_DisabledReturnsBase(t *testing.T) {
	base := http.DefaultTransport
	assert.Same(t, base, NewRateLimitedTransport(base, RateLimit{}))
}
