// Package config loads application configuration from environment variables
// and the optional adapters file.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	SecretKey       []byte // 32 bytes, or nil when credential storage is disabled.
	UpstreamTimeout time.Duration
	ConnectTimeout  time.Duration
	LogLevel        slog.Level
	LogFormat       string
	OTelEndpoint    string
	OTelInsecure    bool
	AdaptersFile    string
	Adapters        map[string]AdapterConfig
}

// Log formats accepted in BLIMP_LOG_FORMAT.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// HasSecretKey reports whether credential encryption is configured.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == 32
}

// Adapter returns the overrides for app, or the zero value.
func (c *Config) Adapter(app string) AdapterConfig {
	return c.Adapters[app]
}

// Load reads configuration from environment variables and returns a validated Config.
// BLIMP_SECRET_KEY is optional; without it the service starts but every
// credential operation fails until a key is provided.
// Optional variables with defaults: BLIMP_LISTEN_ADDR (127.0.0.1:8080),
// BLIMP_DB_PATH (blimp.db), BLIMP_UPSTREAM_TIMEOUT (30s),
// BLIMP_CONNECT_TIMEOUT (10s), BLIMP_LOG_LEVEL (info), BLIMP_LOG_FORMAT (text).
// BLIMP_OTEL_ENDPOINT enables trace export; BLIMP_ADAPTERS_FILE names a YAML
// file with per-app overrides.
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("BLIMP_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "blimp.db"
	if v, ok := os.LookupEnv("BLIMP_DB_PATH"); ok {
		dbPath = v
	}

	secretKey, err := parseSecretKey(os.Getenv("BLIMP_SECRET_KEY"))
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := durationEnv("BLIMP_UPSTREAM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := durationEnv("BLIMP_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("BLIMP_LOG_LEVEL"); ok && v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("BLIMP_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	logFormat := LogFormatText
	if v, ok := os.LookupEnv("BLIMP_LOG_FORMAT"); ok && v != "" {
		logFormat = strings.ToLower(v)
	}
	if logFormat != LogFormatText && logFormat != LogFormatJSON {
		return nil, fmt.Errorf("BLIMP_LOG_FORMAT must be %q or %q, got %q", LogFormatText, LogFormatJSON, logFormat)
	}

	otelInsecure := false
	if v, ok := os.LookupEnv("BLIMP_OTEL_INSECURE"); ok && v != "" {
		otelInsecure, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("BLIMP_OTEL_INSECURE has invalid boolean %q: %w", v, err)
		}
	}

	adaptersFile := os.Getenv("BLIMP_ADAPTERS_FILE")
	adapters := map[string]AdapterConfig{}
	if adaptersFile != "" {
		adapters, err = LoadAdapters(adaptersFile)
		if err != nil {
			return nil, fmt.Errorf("BLIMP_ADAPTERS_FILE: %w", err)
		}
	}

	return &Config{
		ListenAddr:      listenAddr,
		DBPath:          dbPath,
		SecretKey:       secretKey,
		UpstreamTimeout: upstreamTimeout,
		ConnectTimeout:  connectTimeout,
		LogLevel:        logLevel,
		LogFormat:       logFormat,
		OTelEndpoint:    os.Getenv("BLIMP_OTEL_ENDPOINT"),
		OTelInsecure:    otelInsecure,
		AdaptersFile:    adaptersFile,
		Adapters:        adapters,
	}, nil
}

// parseSecretKey decodes a 64-character hex key. An empty value disables
// credential storage.
func parseSecretKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("BLIMP_SECRET_KEY must be 64 hex characters (32 bytes), got %d characters", len(raw))
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("BLIMP_SECRET_KEY is not valid hex: %w", err)
	}
	return key, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
