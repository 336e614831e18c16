package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Component statuses reported by HealthService.
const (
	StatusOperational = "operational"
	StatusDown        = "down"
)

// Overall statuses reported by HealthService.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// defaultProbeTimeout bounds a single probe when none is configured.
const defaultProbeTimeout = 2 * time.Second

// Probe checks one component. A nil error means the component is usable.
type Probe func(ctx context.Context) error

// HealthReport is the result of HealthService.Check.
type HealthReport struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Healthy reports whether every probe passed.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// HealthService runs the registered component probes for the health endpoint.
type HealthService struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

// NewHealthService creates a HealthService whose probes each run under timeout.
func NewHealthService(timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthService{probes: make(map[string]Probe), timeout: timeout}
}

// Register adds or replaces the probe for component name.
func (s *HealthService) Register(name string, probe Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = probe
}

// RegistryProbe fails when no adapter is registered.
func RegistryProbe(r *Registry) Probe {
	return func(context.Context) error {
		if len(r.Apps()) == 0 {
			return errors.New("no app adapters registered")
		}
		return nil
	}
}

// Check runs every probe concurrently. The overall status is degraded as soon
// as one component is down.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	s.mu.RLock()
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(s.probes))
	for k, v := range s.probes {
		probes[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.run(ctx, probes[name])
		}()
	}
	wg.Wait()

	report := HealthReport{Status: StatusHealthy, Services: make(map[string]string, len(names))}
	for i, name := range names {
		report.Services[name] = results[i]
		if results[i] != StatusOperational {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (s *HealthService) run(ctx context.Context, probe Probe) (status string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			status = StatusDown
		}
	}()

	if err := probe(ctx); err != nil {
		return StatusDown
	}
	return StatusOperational
}
