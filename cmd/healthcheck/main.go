// Command healthcheck probes GET /health of a local blimp server and exits
// non-zero unless every component is operational. It is the container
// HEALTHCHECK of images that ship no shell or curl.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

// healthBody is the subset of the /health response the probe reports on.
type healthBody struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "http://" + normalizeAddr(os.Getenv("BLIMP_LISTEN_ADDR")) + "/health"
	if err := check(ctx, &http.Client{Timeout: 2 * time.Second}, url); err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
}

// check returns nil when url answers 200 with status "healthy".
func check(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body healthBody
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && len(body.Services) > 0 {
			return fmt.Errorf("status %d, %s: %s", resp.StatusCode, body.Status, downServices(body.Services))
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode health response: %w", decodeErr)
	}
	if body.Status != "healthy" {
		return fmt.Errorf("status %q", body.Status)
	}
	return nil
}

// downServices lists the components that are not operational, sorted.
func downServices(services map[string]string) string {
	var down []string
	for name, status := range services {
		if status != "operational" {
			down = append(down, name+"="+status)
		}
	}
	sort.Strings(down)
	return strings.Join(down, ", ")
}

// normalizeAddr ensures the healthcheck connects to loopback rather than the
// bind-all address. Docker containers bind 0.0.0.0 but the healthcheck runs
// inside the same container, so loopback is reachable and more correct.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}

	return net.JoinHostPort(host, port)
}
