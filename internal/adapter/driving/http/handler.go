package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Blimp MCP Server"

// maxBodyBytes caps request bodies. It leaves room for a base64 encoded
// Drive upload at its size limit.
const maxBodyBytes = 16 << 20

// Handler is the HTTP driving adapter that serves the proxy and REST API.
type Handler struct {
	dispatcher  *application.Dispatcher
	connections *application.ConnectionService
	health      *application.HealthService
	version     string
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	dispatcher *application.Dispatcher,
	connections *application.ConnectionService,
	health *application.HealthService,
	version string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		dispatcher:  dispatcher,
		connections: connections,
		health:      health,
		version:     version,
		logger:      logger,
	}
}

// Mounts are handlers served next to the API. Nil entries are not routed.
type Mounts struct {
	Metrics http.Handler
	MCP     http.Handler
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware.
func NewServeMux(h *Handler, mounts Mounts, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /proxy/{app_name}/{action}", h.Proxy)
	mux.HandleFunc("POST /api/mcp/connect-app", h.ConnectApp)
	mux.HandleFunc("GET /api/v1/users/{user_id}/apps", h.ListConnectedApps)
	mux.HandleFunc("DELETE /api/v1/users/{user_id}/apps/{app_name}", h.DisconnectApp)
	mux.HandleFunc("GET /api/v1/apps", h.ListApps)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /{$}", h.Root)

	if mounts.Metrics != nil {
		mux.Handle("GET /metrics", mounts.Metrics)
	}
	if mounts.MCP != nil {
		mux.Handle("/mcp", mounts.MCP)
		mux.Handle("/mcp/", mounts.MCP)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Proxy dispatches one app action on behalf of the user named in the body.
// It always answers 200; the outcome is carried in the envelope.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	app := r.PathValue("app_name")
	action := r.PathValue("action")

	var req ProxyRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.Warn("malformed proxy request",
			"app", app,
			"action", action,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusOK, model.Fail(model.PayloadValidation("invalid request body: %s", bodyErrorMessage(err))))
		return
	}

	env := h.dispatcher.Dispatch(r.Context(), app, action, req.UserID, req.effectivePayload())
	writeJSON(w, http.StatusOK, env)
}

// ConnectApp stores the OAuth material the UI obtained for a user's app.
func (h *Handler) ConnectApp(w http.ResponseWriter, r *http.Request) {
	var req ConnectAppRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ConnectAppResponse{
			Success: false,
			Message: "Failed to connect app",
			Error:   "invalid request body",
		})
		return
	}

	id, err := h.connections.Connect(r.Context(), req.toConnectRequest())
	if err != nil {
		status, msg := connectErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to connect app",
				"user_id", req.UserID,
				"app", req.AppName,
				"error", err,
			)
		}
		writeJSON(w, status, ConnectAppResponse{
			Success: false,
			Message: "Failed to connect app",
			AppName: req.AppName,
			Error:   msg,
		})
		return
	}

	writeJSON(w, http.StatusOK, ConnectAppResponse{
		Success:      true,
		Message:      "App connected successfully",
		CredentialID: id,
		AppName:      req.AppName,
	})
}

// ListConnectedApps returns the apps a user has an active credential for.
func (h *Handler) ListConnectedApps(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	apps, err := h.connections.ConnectedApps(r.Context(), userID)
	if err != nil {
		if errors.Is(err, application.ErrInvalidConnectRequest) {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
			return
		}
		h.logger.Error("failed to list connected apps", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ConnectedAppsResponse{UserID: userID, Apps: apps, Count: len(apps)})
}

// DisconnectApp revokes a user's credential for an app.
func (h *Handler) DisconnectApp(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	app := r.PathValue("app_name")

	if err := h.connections.Disconnect(r.Context(), userID, app); err != nil {
		if errors.Is(err, driven.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("failed to disconnect app", "user_id", userID, "app", app, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListApps returns the catalog of registered apps and actions.
func (h *Handler) ListApps(w http.ResponseWriter, _ *http.Request) {
	catalog := h.dispatcher.Registry().Catalog()
	writeJSON(w, http.StatusOK, AppsResponse{Apps: catalog, Count: len(catalog)})
}

// Health reports the status of each component. A degraded service answers
// 503 so load balancers and the container probe take it out of rotation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{
		Status:   report.Status,
		Services: report.Services,
		Time:     time.Now().UTC().Format(time.RFC3339),
	})
}

// Root identifies the service.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Status:  application.StatusHealthy,
		Service: ServiceName,
		Version: h.version,
	})
}

// decodeBody decodes a JSON request body of at most maxBodyBytes into v.
var errTrailingData = errors.New("unexpected data after JSON object")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// bodyErrorMessage describes a decode failure in terms of the JSON document,
// never the Go types it is decoded into.
func bodyErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("%s must be %s", typeErr.Field, jsonKind(typeErr.Type))
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, errTrailingData):
		return errTrailingData.Error()
	default:
		return "malformed JSON"
	}
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "a different type"
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Map, reflect.Struct:
		return "an object"
	default:
		return "a different type"
	}
}

// connectErrorStatus maps a ConnectionService error to a status code and a
// message safe to return.
func connectErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrInvalidConnectRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusServiceUnavailable, "credential storage is not configured"
	default:
		return http.StatusInternalServerError, "failed to store credentials"
	}
}

// expiryFromMillis converts a JavaScript epoch-milliseconds timestamp.
// Zero or negative values mean no expiry.
func expiryFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// splitScopes accepts space or comma separated scope lists.
func splitScopes(scope string) []string {
	return strings.FieldsFunc(scope, func(r rune) bool { return r == ' ' || r == ',' })
}
