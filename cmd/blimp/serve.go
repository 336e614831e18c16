package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/telemetry"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	httphandler "github.com/ericfisherdev/blimp/internal/adapter/driving/http"
	mcpadapter "github.com/ericfisherdev/blimp/internal/adapter/driving/mcp"
	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/config"
)

// shutdownTimeout bounds the drain of in-flight requests on shutdown.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy server",
		Long: `Start the HTTP server that serves the proxy endpoint, the connect and
catalog API, the MCP endpoint at /mcp, /health and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"upstream_timeout", cfg.UpstreamTimeout,
		"adapters_file", cfg.AdaptersFile,
		"tracing", cfg.OTelEndpoint != "",
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Tracing.
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:    "blimp",
		ServiceVersion: version,
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
	}()

	// 4. Open database, run migrations, wire the credential store.
	db, store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// 5. Shared outbound transport and app adapters.
	transport := upstream.NewTransport(upstream.TransportOptions{ConnectTimeout: cfg.ConnectTimeout})
	registry, err := buildRegistry(cfg, transport, logger)
	if err != nil {
		return err
	}
	logger.Info("adapters registered", "apps", registry.Apps())

	// 6. Application services.
	metrics := telemetry.NewMetrics()
	dispatcher := application.NewDispatcher(registry, store, application.DispatcherOptions{
		Timeout:  cfg.UpstreamTimeout,
		Recorder: metrics,
		Logger:   logger,
	})
	connections := application.NewConnectionService(registry, store, logger)

	health := application.NewHealthService(2 * time.Second)
	health.Register("credential_store", db.Ping)
	health.Register("adapters", application.RegistryProbe(registry))
	health.Register("encryption_key", func(context.Context) error {
		if !cfg.HasSecretKey() {
			return errors.New("BLIMP_SECRET_KEY is not set")
		}
		return nil
	})

	// 7. Driving adapters: REST API and MCP.
	mcpServer, err := mcpadapter.NewServer(dispatcher, version, logger)
	if err != nil {
		return err
	}
	apiHandler := httphandler.NewHandler(dispatcher, connections, health, version, logger)
	handler := httphandler.NewServeMux(apiHandler, httphandler.Mounts{
		Metrics: metrics.Handler(),
		MCP:     mcpServer.Handler(),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(handler, "blimp"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 8. Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// 9. Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	transport.CloseIdleConnections()

	logger.Info("shutdown complete")
	return nil
}
