package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// maxErrorBody caps how much of a failed response is read for diagnostics.
const maxErrorBody = 64 << 10

// ProviderOptions configures one provider.
type ProviderOptions struct {
	BaseURL   string
	RateLimit RateLimit
	Timeout   time.Duration
	// Account names the account a user reconnects after a 401; defaults
	// to the provider name.
	Account string
}

// Provider bundles the outbound plumbing of one third-party API: its base
// URL, its rate limiter over the shared transport and the display name used
// in error messages. A Provider holds no credentials; every call is
// authenticated with the token of the user being served.
type Provider struct {
	name      string
	account   string
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewProvider creates a Provider named name (for example "Gmail") over the
// shared transport base.
func NewProvider(name string, base http.RoundTripper, opts ProviderOptions) *Provider {
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	account := opts.Account
	if account == "" {
		account = name
	}
	return &Provider{
		name:      name,
		account:   account,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   timeout,
		transport: NewRateLimitedTransport(base, opts.RateLimit),
	}
}

// Name returns the display name used in error messages.
func (p *Provider) Name() string { return p.name }

// BaseURL returns the API root without a trailing slash.
func (p *Provider) BaseURL() string { return p.baseURL }

// Timeout returns the bound applied to each outbound call.
func (p *Provider) Timeout() time.Duration { return p.timeout }

// Transport returns the rate-limited, unauthenticated transport.
func (p *Provider) Transport() http.RoundTripper { return p.transport }

// BearerClient returns a client that sends token as a bearer credential.
func (p *Provider) BearerClient(token string) *http.Client {
	return &http.Client{
		Timeout: p.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   p.transport,
		},
	}
}

// JSONRequest describes a JSON API call relative to the provider base URL.
type JSONRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// DoJSON sends req authenticated with token and decodes a 2xx JSON response
// into out (which may be nil). Non-2xx responses become *StatusError.
func (p *Provider) DoJSON(ctx context.Context, token string, req JSONRequest, out any) error {
	target := p.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := p.BearerClient(token).Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx response from a JSON API.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Detail)
}

func readStatusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Detail: errorDetail(raw, resp.StatusCode)}
}

// errorDetail pulls a short message out of an error body. It understands the
// {"message": ...}, {"error": "..."} and {"error": {"message": ...}} shapes.
func errorDetail(raw []byte, code int) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}

	text := strings.TrimSpace(string(raw))
	if text == "" || strings.HasPrefix(text, "<") {
		return http.StatusText(code)
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// Translate converts an outbound failure into a *model.ProxyError carrying a
// caller-safe message. Proxy errors pass through, and a cancelled context is
// returned as is so the dispatcher can report the cancellation.
func (p *Provider) Translate(err error) error {
	if err == nil {
		return nil
	}

	var pe *model.ProxyError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return model.Timeout(p.name, p.timeout, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return p.FromStatus(gerr.Code, googleDetail(gerr), err)
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return p.FromStatus(serr.Code, serr.Detail, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return model.UpstreamAPI(p.name, "unexpected response format", err)
	}

	return model.UpstreamAPI(p.name, "request failed", err)
}

// FromStatus maps an HTTP status and provider detail to a proxy error.
func (p *Provider) FromStatus(code int, detail string, cause error) error {
	if code == http.StatusUnauthorized {
		return model.Unauthorized(p.name, p.account, cause)
	}
	if detail == "" {
		detail = http.StatusText(code)
	}
	if code == http.StatusTooManyRequests {
		return model.UpstreamAPI(p.name, "rate limit exceeded, try again later", cause)
	}
	return model.UpstreamAPI(p.name, fmt.Sprintf("%d %s", code, detail), cause)
}

func googleDetail(gerr *googleapi.Error) string {
	if gerr.Message != "" {
		return gerr.Message
	}
	if len(gerr.Errors) > 0 && gerr.Errors[0].Message != "" {
		return gerr.Errors[0].Message
	}
	return http.StatusText(gerr.Code)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
