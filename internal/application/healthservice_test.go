package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

func TestHealthService_Check(t *testing.T) {
	ok := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("disk I/O error") }
	panicking := func(context.Context) error { panic("boom") }

	tests := []struct {
		name         string
		probes       map[string]Probe
		wantStatus   string
		wantServices map[string]string
	}{
		{
			name:         "no probes",
			probes:       nil,
			wantStatus:   StatusHealthy,
			wantServices: map[string]string{},
		},
		{
			name:       "all operational",
			probes:     map[string]Probe{"credential_store": ok, "adapters": ok},
			wantStatus: StatusHealthy,
			wantServices: map[string]string{
				"credential_store": StatusOperational,
				"adapters":         StatusOperational,
			},
		},
		{
			name:       "one component down degrades the whole",
			probes:     map[string]Probe{"credential_store": failing, "adapters": ok},
			wantStatus: StatusDegraded,
			wantServices: map[string]string{
				"credential_store": StatusDown,
				"adapters":         StatusOperational,
			},
		},
		{
			name:         "panicking probe is down",
			probes:       map[string]Probe{"adapters": panicking},
			wantStatus:   StatusDegraded,
			wantServices: map[string]string{"adapters": StatusDown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHealthService(time.Second)
			for name, p := range tt.probes {
				svc.Register(name, p)
			}

			report := svc.Check(context.Background())
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantServices, report.Services)
			assert.Equal(t, tt.wantStatus == StatusHealthy, report.Healthy())
		})
	}
}

func TestHealthService_ProbeTimeout(t *testing.T) {
	svc := NewHealthService(20 * time.Millisecond)
	svc.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report := svc.Check(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDown, report.Services["slow"])
}

func TestRegistryProbe(t *testing.T) {
	empty, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, RegistryProbe(empty)(context.Background()))

	reg, err := NewRegistry(&stubAdapter{
		name:    "slack",
		display: "Slack",
		actions: []driven.Action{{Name: "postMessage", Handler: noopHandler}},
	})
	require.NoError(t, err)
	assert.NoError(t, RegistryProbe(reg)(context.Background()))
}
