package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildRegistry_AllApps(t *testing.T) {
	registry, err := buildRegistry(&config.Config{}, http.DefaultTransport, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"calendar", "gdrive", "github", "gmail", "notion", "slack"}, registry.Apps())

	for app, display := range map[string]string{
		"gmail":    "Gmail",
		"slack":    "Slack",
		"notion":   "Notion",
		"calendar": "Google Calendar",
		"gdrive":   "Google Drive",
		"github":   "GitHub",
	} {
		a, ok := registry.Lookup(app)
		require.True(t, ok, app)
		assert.Equal(t, display, a.DisplayName(), app)
	}
}

func TestBuildRegistry_Overrides(t *testing.T) {
	cfg := &config.Config{Adapters: map[string]config.AdapterConfig{
		"github": {Disabled: true},
		"slack":  {BaseURL: "http://127.0.0.1:9/api", RateLimit: &config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}},
		"fax":    {BaseURL: "http://fax.invalid"},
	}}

	registry, err := buildRegistry(cfg, http.DefaultTransport, discardLogger())
	require.NoError(t, err)

	assert.NotContains(t, registry.Apps(), "github")
	assert.Contains(t, registry.Apps(), "slack")
	assert.Len(t, registry.Apps(), 5)
}

func TestPrintCatalog(t *testing.T) {
	registry, err := buildRegistry(&config.Config{}, http.DefaultTransport, discardLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printCatalog(&buf, registry.Catalog()))

	out := buf.String()
	assert.Contains(t, out, "APP")
	assert.Contains(t, out, "sendEmail")
	assert.Contains(t, out, "to*")
	assert.Contains(t, out, "listChannels")
	assert.Regexp(t, `fetchEmails\s+read`, out)
	assert.Regexp(t, `postMessage\s+write`, out)
}

func TestRootCmd_AppsJSON(t *testing.T) {
	t.Setenv("BLIMP_ADAPTERS_FILE", "")
	t.Setenv("BLIMP_SECRET_KEY", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"apps", "--json"})

	require.NoError(t, cmd.Execute())

	var catalog []application.AppInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &catalog))
	assert.Len(t, catalog, 6)
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&config.Config{LogFormat: config.LogFormatJSON}, &buf).Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	newLogger(&config.Config{LogFormat: config.LogFormatText, LogLevel: slog.LevelWarn}, &buf).Info("quiet")
	assert.Empty(t, buf.String())
}
