package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AdapterConfig overrides the defaults of one app adapter.
type AdapterConfig struct {
	// BaseURL replaces the provider's API root, for example to point an
	// adapter at a regional endpoint or a recording proxy.
	BaseURL   string           `yaml:"base_url"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	// Disabled removes the app from the registry.
	Disabled bool `yaml:"disabled"`
}

// RateLimitConfig is the token bucket of one app.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type adaptersFile struct {
	Adapters map[string]AdapterConfig `yaml:"adapters"`
}

// LoadAdapters reads the per-app overrides from the YAML file at path.
// App keys are lower-cased. Unknown keys are rejected so typos do not
// silently fall back to defaults.
func LoadAdapters(path string) (map[string]AdapterConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open adapters file: %w", err)
	}
	defer f.Close()

	return ParseAdapters(f)
}

// ParseAdapters decodes an adapters document from r.
func ParseAdapters(r io.Reader) (map[string]AdapterConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc adaptersFile
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse adapters file: %w", err)
	}

	out := make(map[string]AdapterConfig, len(doc.Adapters))
	for name, ac := range doc.Adapters {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, errors.New("adapters file: empty app name")
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("adapters file: app %q listed twice", key)
		}
		if err := ac.validate(); err != nil {
			return nil, fmt.Errorf("adapters file: %s: %w", key, err)
		}
		ac.BaseURL = strings.TrimRight(ac.BaseURL, "/")
		out[key] = ac
	}
	return out, nil
}

func (ac AdapterConfig) validate() error {
	if ac.BaseURL != "" {
		u, err := url.Parse(ac.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", ac.BaseURL)
		}
	}
	if rl := ac.RateLimit; rl != nil {
		if rl.RequestsPerSecond < 0 {
			return errors.New("rate_limit.requests_per_second must not be negative")
		}
		if rl.Burst < 0 {
			return errors.New("rate_limit.burst must not be negative")
		}
	}
	return nil
}
