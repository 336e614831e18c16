package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies every way a dispatch can fail.
type ErrorKind string

const (
	KindUnsupportedApp             ErrorKind = "unsupported_app"
	KindUnsupportedAction          ErrorKind = "unsupported_action"
	KindNoCredentials              ErrorKind = "no_credentials"
	KindTokenExpired               ErrorKind = "token_expired"
	KindCredentialStoreUnavailable ErrorKind = "credential_store_unavailable"
	KindPayloadValidation          ErrorKind = "payload_validation"
	KindUpstreamAPI                ErrorKind = "upstream_api_error"
	KindTimeout                    ErrorKind = "timeout"
	KindInternal                   ErrorKind = "internal"
)

// UserCorrectable reports whether the caller can fix the failure without
// operator involvement (reconnecting an app, fixing the payload, picking a
// supported app or action). Infrastructure kinds return false.
func (k ErrorKind) UserCorrectable() bool {
	switch k {
	case KindUnsupportedApp, KindUnsupportedAction, KindNoCredentials, KindTokenExpired, KindPayloadValidation:
		return true
	default:
		return false
	}
}

// Code returns the upper-case error code reported in envelopes.
func (k ErrorKind) Code() string {
	if k == KindUpstreamAPI {
		return "UPSTREAM_API_ERROR"
	}
	return strings.ToUpper(string(k))
}

// ProxyError is the only error type whose message may reach an Envelope.
// Message is human-readable and safe to return; Err keeps the underlying
// cause for logs and errors.Is/As and is never serialised.
type ProxyError struct {
	Kind    ErrorKind
	Code    string // Machine-readable code; defaults to Kind.Code().
	Message string
	Err     error
}

// Error returns the caller-facing message.
func (e *ProxyError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the machine-readable code of e.
func (e *ProxyError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.Code()
}

// KindOf returns the kind of the first ProxyError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// UnsupportedApp is returned when no adapter is registered for app.
func UnsupportedApp(app string) *ProxyError {
	return &ProxyError{Kind: KindUnsupportedApp, Message: fmt.Sprintf("Unsupported app: %s", app)}
}

// UnsupportedAction is returned when the adapter for app has no such action.
func UnsupportedAction(app, action string) *ProxyError {
	return &ProxyError{Kind: KindUnsupportedAction, Message: fmt.Sprintf("Unsupported %s action: %s", app, action)}
}

// NoCredentials is returned when the user never connected app or revoked it.
func NoCredentials(app string) *ProxyError {
	return &ProxyError{
		Kind:    KindNoCredentials,
		Message: fmt.Sprintf("No credentials found for %s. Please connect your account first.", app),
	}
}

// InvalidCredentials is returned when a stored record carries no token.
func InvalidCredentials(app string) *ProxyError {
	return &ProxyError{
		Kind:    KindNoCredentials,
		Code:    "INVALID_CREDENTIALS",
		Message: fmt.Sprintf("Invalid credentials for %s. Please reconnect your account.", app),
	}
}

// TokenExpired is returned when the access token expired and no refresher
// could renew it.
func TokenExpired(app string, cause error) *ProxyError {
	return &ProxyError{
		Kind:    KindTokenExpired,
		Message: fmt.Sprintf("Your %s access token has expired. Please reconnect your account.", app),
		Err:     cause,
	}
}

// CredentialStoreUnavailable wraps a read failure of the credential store.
func CredentialStoreUnavailable(app string, cause error) *ProxyError {
	return &ProxyError{
		Kind:    KindCredentialStoreUnavailable,
		Message: fmt.Sprintf("Credential store unavailable while loading %s credentials. Please try again later.", app),
		Err:     cause,
	}
}

// PayloadValidation is returned before any outbound call when the payload
// is missing required fields or carries values of the wrong type.
func PayloadValidation(format string, args ...any) *ProxyError {
	return &ProxyError{Kind: KindPayloadValidation, Message: fmt.Sprintf(format, args...)}
}

// MissingFields builds the PayloadValidation error naming every missing field.
func MissingFields(fields ...string) *ProxyError {
	return PayloadValidation("missing required field(s): %s", strings.Join(fields, ", "))
}

// UpstreamAPI reports a failed third-party call with a short diagnostic,
// rendered as "{Provider} API error: {detail}".
func UpstreamAPI(provider, detail string, cause error) *ProxyError {
	return &ProxyError{
		Kind:    KindUpstreamAPI,
		Message: fmt.Sprintf("%s API error: %s", provider, detail),
		Err:     cause,
	}
}

// Unauthorized reports a 401 from provider: the stored token was revoked or
// expired on the provider side. account names the account the user has to
// reconnect ("Google" for every Google API).
func Unauthorized(provider, account string, cause error) *ProxyError {
	return &ProxyError{
		Kind: KindTokenExpired,
		Code: "TOKEN_INVALID",
		Message: fmt.Sprintf("%s access token is invalid or expired. Please reconnect your %s account.",
			provider, account),
		Err: cause,
	}
}

// UpstreamMessage reports a failed third-party call whose message is
// already fully formed (for example a partial Notion write).
func UpstreamMessage(message string, cause error) *ProxyError {
	return &ProxyError{Kind: KindUpstreamAPI, Message: message, Err: cause}
}

// Timeout reports an outbound call that did not finish within limit.
func Timeout(provider string, limit time.Duration, cause error) *ProxyError {
	msg := fmt.Sprintf("Timeout: %s API did not respond in time", provider)
	if limit > 0 {
		msg = fmt.Sprintf("Timeout: %s API did not respond within %s", provider, limit)
	}
	return &ProxyError{Kind: KindTimeout, Message: msg, Err: cause}
}

// Internal hides an unexpected fault behind a generic message.
func Internal(message string, cause error) *ProxyError {
	return &ProxyError{Kind: KindInternal, Message: message, Err: cause}
}
