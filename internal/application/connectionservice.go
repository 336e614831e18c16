package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// ErrInvalidConnectRequest is returned by ConnectionService.Connect when the
// request is incomplete.
var ErrInvalidConnectRequest = errors.New("invalid connect request")

// ConnectRequest carries the OAuth material for a freshly connected app.
type ConnectRequest struct {
	UserID       string
	AppName      string // Display name, e.g. "Gmail".
	AppType      string // Registry key; derived from AppName when empty.
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scope        string
	Metadata     model.CredentialMetadata
}

// ConnectionService manages the credentials users connect to the proxy.
type ConnectionService struct {
	registry *Registry
	store    driven.CredentialStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewConnectionService creates a ConnectionService. registry restricts
// connections to registered apps.
func NewConnectionService(registry *Registry, store driven.CredentialStore, logger *slog.Logger) *ConnectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{registry: registry, store: store, logger: logger, now: time.Now}
}

// Connect validates req and stores it as the user's active credential for the
// app, replacing any previous one. It returns the credential id.
func (s *ConnectionService) Connect(ctx context.Context, req ConnectRequest) (string, error) {
	appType := NormalizeAppName(req.AppType)
	if appType == "" {
		appType = NormalizeAppName(req.AppName)
	}

	var missing []string
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if appType == "" {
		missing = append(missing, "app_name")
	}
	if req.AccessToken == "" {
		missing = append(missing, "credentials.access_token")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidConnectRequest, strings.Join(missing, ", "))
	}

	adapter, ok := s.registry.Lookup(appType)
	if !ok {
		return "", fmt.Errorf("%w: unsupported app %q", ErrInvalidConnectRequest, appType)
	}

	appName := req.AppName
	if appName == "" {
		appName = adapter.DisplayName()
	}
	meta := req.Metadata
	if meta.ConnectedAt.IsZero() {
		meta.ConnectedAt = s.now().UTC()
	}
	if len(meta.Scopes) == 0 && req.Scope != "" {
		meta.Scopes = strings.Fields(req.Scope)
	}
	tokenType := req.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	id, err := s.store.Put(ctx, model.CredentialRecord{
		UserID:       req.UserID,
		AppType:      appType,
		AppName:      appName,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    tokenType,
		Expiry:       req.Expiry,
		Scope:        req.Scope,
		Metadata:     meta,
		IsActive:     true,
	})
	if err != nil {
		return "", fmt.Errorf("store %s credential: %w", appType, err)
	}

	s.logger.Info("app connected", "user_id", req.UserID, "app", appType, "credential_id", id)
	return id, nil
}

// ConnectedApps returns the apps the user has an active credential for.
func (s *ConnectionService) ConnectedApps(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidConnectRequest)
	}
	apps, err := s.store.ListConnectedApps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected apps: %w", err)
	}
	if apps == nil {
		apps = []string{}
	}
	return apps, nil
}

// Disconnect deactivates the user's credential for app.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, app string) error {
	appType := NormalizeAppName(app)
	if err := s.store.Deactivate(ctx, userID, appType); err != nil {
		return fmt.Errorf("disconnect %s: %w", appType, err)
	}
	s.logger.Info("app disconnected", "user_id", userID, "app", appType)
	return nil
}
