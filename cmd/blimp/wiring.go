package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/calendar"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/gdrive"
	githubadapter "github.com/ericfisherdev/blimp/internal/adapter/driven/github"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/gmail"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/notion"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/slack"
	sqliteadapter "github.com/ericfisherdev/blimp/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/config"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// newLogger builds the process logger selected by BLIMP_LOG_FORMAT and
// BLIMP_LOG_LEVEL.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// providerSpec describes how one app adapter is built.
type providerSpec struct {
	app         string
	displayName string
	account     string
	baseURL     string
	build       func(p *upstream.Provider, logger *slog.Logger) (driven.AppAdapter, error)
}

var providerSpecs = []providerSpec{
	{
		app:         gmail.AppName,
		displayName: "Gmail",
		build: func(p *upstream.Provider, _ *slog.Logger) (driven.AppAdapter, error) {
			return gmail.New(p), nil
		},
	},
	{
		app:         slack.AppName,
		displayName: "Slack",
		baseURL:     slack.DefaultBaseURL,
		build: func(p *upstream.Provider, _ *slog.Logger) (driven.AppAdapter, error) {
			return slack.New(p), nil
		},
	},
	{
		app:         notion.AppName,
		displayName: "Notion",
		baseURL:     notion.DefaultBaseURL,
		build: func(p *upstream.Provider, _ *slog.Logger) (driven.AppAdapter, error) {
			return notion.New(p), nil
		},
	},
	{
		app:         calendar.AppName,
		displayName: "Google Calendar",
		account:     "Google",
		build: func(p *upstream.Provider, _ *slog.Logger) (driven.AppAdapter, error) {
			return calendar.New(p), nil
		},
	},
	{
		app:         gdrive.AppName,
		displayName: "Google Drive",
		account:     "Google",
		build: func(p *upstream.Provider, _ *slog.Logger) (driven.AppAdapter, error) {
			return gdrive.New(p), nil
		},
	},
	{
		app:         githubadapter.AppName,
		displayName: "GitHub",
		build: func(p *upstream.Provider, logger *slog.Logger) (driven.AppAdapter, error) {
			return githubadapter.New(p, logger)
		},
	},
}

// buildRegistry creates every enabled app adapter over the shared transport
// base and registers them. Adapter file overrides replace base URLs and rate
// limits.
func buildRegistry(cfg *config.Config, base http.RoundTripper, logger *slog.Logger) (*application.Registry, error) {
	adapters := make([]driven.AppAdapter, 0, len(providerSpecs))
	for _, spec := range providerSpecs {
		override := cfg.Adapter(spec.app)
		if override.Disabled {
			logger.Info("adapter disabled", "app", spec.app)
			continue
		}

		opts := upstream.ProviderOptions{
			BaseURL:   spec.baseURL,
			RateLimit: upstream.DefaultRateLimits[spec.app],
			Timeout:   cfg.UpstreamTimeout,
			Account:   spec.account,
		}
		if override.BaseURL != "" {
			opts.BaseURL = override.BaseURL
		}
		if rl := override.RateLimit; rl != nil {
			opts.RateLimit = upstream.RateLimit{RequestsPerSecond: rl.RequestsPerSecond, Burst: rl.Burst}
		}

		adapter, err := spec.build(upstream.NewProvider(spec.displayName, base, opts), logger)
		if err != nil {
			return nil, fmt.Errorf("build %s adapter: %w", spec.app, err)
		}
		adapters = append(adapters, adapter)
	}

	for app := range cfg.Adapters {
		if !knownApp(app) {
			logger.Warn("adapters file names an unknown app", "app", app)
		}
	}

	return application.NewRegistry(adapters...)
}

func knownApp(app string) bool {
	for _, spec := range providerSpecs {
		if spec.app == app {
			return true
		}
	}
	return false
}

// openStore opens the credential database, applies migrations and returns
// the credential repository over it. The caller closes the DB.
func openStore(cfg *config.Config, logger *slog.Logger) (*sqliteadapter.DB, *sqliteadapter.CredentialRepo, error) {
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Debug("database ready", "path", db.Path(), "schema_version", version)

	if !cfg.HasSecretKey() {
		logger.Warn("BLIMP_SECRET_KEY is not set, credential operations will fail")
	}
	return db, sqliteadapter.NewCredentialRepo(db, cfg.SecretKey), nil
}
