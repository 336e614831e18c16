package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ProxyRequest is the body of POST /proxy/{app_name}/{action}.
// Body is the field name older workflow callers send the payload under.
type ProxyRequest struct {
	UserID  string        `json:"user_id"`
	Payload model.Payload `json:"payload"`
	Body    model.Payload `json:"body"`
}

// effectivePayload returns Payload, falling back to Body when Payload is empty.
func (r ProxyRequest) effectivePayload() model.Payload {
	if len(r.Payload) == 0 && len(r.Body) > 0 {
		return r.Body
	}
	if r.Payload == nil {
		return model.Payload{}
	}
	return r.Payload
}

// ConnectAppRequest is the body of POST /api/mcp/connect-app.
type ConnectAppRequest struct {
	UserID      string         `json:"user_id"`
	AppName     string         `json:"app_name"`
	AppType     string         `json:"app_type"`
	Credentials AppCredentials `json:"credentials"`
	Metadata    AppMetadata    `json:"metadata"`
}

// AppCredentials is the OAuth token material of a connect request.
// ExpiryDate is in milliseconds since the Unix epoch.
type AppCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiryDate   int64  `json:"expiry_date,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AppMetadata is descriptive data about the connected account.
type AppMetadata struct {
	Email       string   `json:"email,omitempty"`
	ConnectedAt string   `json:"connected_at,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

func (r ConnectAppRequest) toConnectRequest() application.ConnectRequest {
	meta := model.CredentialMetadata{
		Email:  r.Metadata.Email,
		Scopes: r.Metadata.Scopes,
	}
	if ts, err := time.Parse(time.RFC3339, r.Metadata.ConnectedAt); err == nil {
		meta.ConnectedAt = ts.UTC()
	}
	if len(meta.Scopes) == 0 {
		meta.Scopes = splitScopes(r.Credentials.Scope)
	}

	return application.ConnectRequest{
		UserID:       r.UserID,
		AppName:      r.AppName,
		AppType:      r.AppType,
		AccessToken:  r.Credentials.AccessToken,
		RefreshToken: r.Credentials.RefreshToken,
		TokenType:    r.Credentials.TokenType,
		Expiry:       expiryFromMillis(r.Credentials.ExpiryDate),
		Scope:        r.Credentials.Scope,
		Metadata:     meta,
	}
}

// ConnectAppResponse is the JSON representation of a connect outcome.
type ConnectAppResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	CredentialID string `json:"credential_id,omitempty"`
	AppName      string `json:"app_name"`
	Error        string `json:"error,omitempty"`
}

// ConnectedAppsResponse lists the apps a user has connected.
type ConnectedAppsResponse struct {
	UserID string   `json:"user_id"`
	Apps   []string `json:"apps"`
	Count  int      `json:"count"`
}

// AppsResponse is the registry catalog.
type AppsResponse struct {
	Apps  []application.AppInfo `json:"apps"`
	Count int                   `json:"count"`
}

// HealthResponse is the JSON representation of the health check.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Time     string            `json:"time"`
}

// RootResponse identifies the running service.
type RootResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
