// Package calendar implements the "calendar" app adapter on the Google
// Calendar API.
package calendar

import (
	"context"
	"fmt"

	calendarv3 "google.golang.org/api/calendar/v3"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

const (
	AppName = "calendar"

	maxEvents     = 50
	maxListResult = 250
)

var _ driven.AppAdapter = (*Adapter)(nil)

// Adapter exposes Google Calendar actions.
type Adapter struct {
	p *upstream.Provider
}

// New creates the Calendar adapter. An empty provider base URL selects the
// public Google endpoint.
func New(p *upstream.Provider) *Adapter {
	return &Adapter{p: p}
}

// Name implements driven.AppAdapter.
func (a *Adapter) Name() string { return AppName }

// DisplayName implements driven.AppAdapter.
func (a *Adapter) DisplayName() string { return a.p.Name() }

// Actions implements driven.AppAdapter.
func (a *Adapter) Actions() []driven.Action {
	return []driven.Action{
		{
			Name: "createEvent",
			Description: "Create one or more events. Every event is validated before the first is created; " +
				"the result reports each event separately.",
			Fields: []model.FieldSpec{
				{Name: "events", Type: model.FieldObjectList, Required: true,
					Description: "events with summary, start, end and optional description, location, attendees, time_zone"},
				{Name: "calendar_id", Type: model.FieldString, Default: "primary"},
			},
			Handler: a.createEvents,
		},
		{
			Name:        "listEvents",
			Description: "List upcoming events in a time window, ordered by start time.",
			ReadOnly:    true,
			Fields: []model.FieldSpec{
				{Name: "calendar_id", Type: model.FieldString, Default: "primary"},
				{Name: "time_min", Type: model.FieldString, Description: "RFC 3339 lower bound"},
				{Name: "time_max", Type: model.FieldString, Description: "RFC 3339 upper bound"},
				{Name: "query", Type: model.FieldString, Description: "free text search"},
				{Name: "max_results", Type: model.FieldInt, Default: 25, Description: "1 to 250"},
			},
			Handler: a.listEvents,
		},
	}
}

func (a *Adapter) service(ctx context.Context, cred model.CredentialRecord) (*calendarv3.Service, error) {
	svc, err := calendarv3.NewService(ctx, a.p.GoogleOptions(cred.AccessToken, "/calendar/v3/")...)
	if err != nil {
		return nil, model.Internal("Google Calendar client could not be created", fmt.Errorf("calendar.NewService: %w", err))
	}
	return svc, nil
}
