package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	calendarv3 "google.golang.org/api/calendar/v3"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// Per-event outcomes of createEvent.
const (
	StatusCreated = "created"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const dateLayout = "2006-01-02"

// EventOutcome reports one element of the createEvent input.
type EventOutcome struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	ID       string `json:"id,omitempty"`
	HTMLLink string `json:"html_link,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CreateResult is returned by createEvent. Created + Failed + Skipped always
// equals the number of input events.
type CreateResult struct {
	Events  []EventOutcome `json:"events"`
	Created int            `json:"created"`
	Failed  int            `json:"failed"`
	Skipped int            `json:"skipped"`
}

// createEvents validates every event, then inserts them in order. Once one
// insert is refused for an invalid token or the request is cancelled, the
// remaining events are skipped. When nothing was created the first failure
// becomes the dispatch error.
func (a *Adapter) createEvents(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	raw := p.Objects("events")
	if len(raw) > maxEvents {
		return nil, model.PayloadValidation("at most %d events can be created per call", maxEvents)
	}

	events := make([]*calendarv3.Event, len(raw))
	var problems []string
	for i, m := range raw {
		ev, err := parseEvent(m)
		if err != nil {
			problems = append(problems, fmt.Sprintf("events[%d]: %s", i, err))
			continue
		}
		events[i] = ev
	}
	if len(problems) > 0 {
		return nil, model.PayloadValidation("invalid event(s): %s", strings.Join(problems, "; "))
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	calendarID := p.String("calendar_id")
	res := CreateResult{Events: make([]EventOutcome, len(events))}
	var firstErr error
	stop := false
	for i, ev := range events {
		out := EventOutcome{Index: i}
		if stop {
			out.Status = StatusSkipped
			res.Skipped++
			res.Events[i] = out
			continue
		}

		created, err := svc.Events.Insert(calendarID, ev).Context(ctx).Do()
		if err != nil {
			err = a.p.Translate(err)
			if firstErr == nil {
				firstErr = err
			}
			out.Status = StatusFailed
			out.Error = outcomeError(err)
			res.Failed++
			stop = model.KindOf(err) == model.KindTokenExpired || ctx.Err() != nil
		} else {
			out.Status = StatusCreated
			out.ID = created.Id
			out.HTMLLink = created.HtmlLink
			res.Created++
		}
		res.Events[i] = out
	}

	if res.Created == 0 && firstErr != nil {
		return nil, firstErr
	}
	return res, nil
}

// outcomeError is the per-event message. Errors that are not proxy errors
// only arise from cancellation and carry transport detail.
func outcomeError(err error) string {
	var pe *model.ProxyError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return "cancelled"
}

func parseEvent(m map[string]any) (*calendarv3.Event, error) {
	summary, _ := m["summary"].(string)
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("summary is required")
	}
	zone, _ := m["time_zone"].(string)
	if zone != "" {
		if _, err := time.LoadLocation(zone); err != nil {
			return nil, fmt.Errorf("unknown time_zone %q", zone)
		}
	}

	start, startAt, err := parseWhen(m["start"], zone)
	if err != nil {
		return nil, fmt.Errorf("start %w", err)
	}
	end, endAt, err := parseWhen(m["end"], zone)
	if err != nil {
		return nil, fmt.Errorf("end %w", err)
	}
	if (start.Date == "") != (end.Date == "") {
		return nil, fmt.Errorf("start and end must both be dates or both be date-times")
	}
	if !endAt.After(startAt) {
		return nil, fmt.Errorf("end must be after start")
	}

	ev := &calendarv3.Event{Summary: summary, Start: start, End: end}
	ev.Description, _ = m["description"].(string)
	ev.Location, _ = m["location"].(string)

	attendees, err := parseAttendees(m["attendees"])
	if err != nil {
		return nil, err
	}
	ev.Attendees = attendees
	return ev, nil
}

// parseWhen accepts an RFC 3339 date-time, a YYYY-MM-DD date, or the API's
// own {"dateTime"|"date", "timeZone"} object.
func parseWhen(v any, zone string) (*calendarv3.EventDateTime, time.Time, error) {
	switch t := v.(type) {
	case string:
		return parseWhenString(strings.TrimSpace(t), zone)
	case map[string]any:
		if tz, ok := t["timeZone"].(string); ok && tz != "" {
			zone = tz
		}
		if s, ok := t["dateTime"].(string); ok {
			return parseWhenString(strings.TrimSpace(s), zone)
		}
		if s, ok := t["date"].(string); ok {
			return parseWhenString(strings.TrimSpace(s), zone)
		}
		return nil, time.Time{}, fmt.Errorf("needs dateTime or date")
	case nil:
		return nil, time.Time{}, fmt.Errorf("is required")
	default:
		return nil, time.Time{}, fmt.Errorf("must be a string or an object")
	}
}

func parseWhenString(s, zone string) (*calendarv3.EventDateTime, time.Time, error) {
	if s == "" {
		return nil, time.Time{}, fmt.Errorf("is required")
	}
	if at, err := time.Parse(time.RFC3339, s); err == nil {
		return &calendarv3.EventDateTime{DateTime: s, TimeZone: zone}, at, nil
	}
	if at, err := time.Parse(dateLayout, s); err == nil {
		return &calendarv3.EventDateTime{Date: s}, at, nil
	}
	return nil, time.Time{}, fmt.Errorf("%q is neither an RFC 3339 date-time nor a YYYY-MM-DD date", s)
}

func parseAttendees(v any) ([]*calendarv3.EventAttendee, error) {
	var emails []string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		emails = t
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("attendees must be a list of email addresses")
			}
			emails = append(emails, s)
		}
	case string:
		emails = strings.Split(t, ",")
	default:
		return nil, fmt.Errorf("attendees must be a list of email addresses")
	}

	out := make([]*calendarv3.EventAttendee, 0, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, &calendarv3.EventAttendee{Email: e})
		}
	}
	return out, nil
}

// Event is one listEvents item. Start and End hold the date-time, or the
// date for all-day events.
type Event struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	AllDay   bool   `json:"all_day"`
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
	HTMLLink string `json:"html_link"`
}

// ListResult is returned by listEvents.
type ListResult struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

func (a *Adapter) listEvents(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	limit := p.Int("max_results")
	if limit < 1 || limit > maxListResult {
		return nil, model.PayloadValidation("max_results must be between 1 and %d", maxListResult)
	}
	for _, key := range []string{"time_min", "time_max"} {
		if s := p.String(key); s != "" {
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return nil, model.PayloadValidation("%s must be an RFC 3339 date-time", key)
			}
		}
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List(p.String("calendar_id")).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(limit)).
		Context(ctx)
	if s := p.String("time_min"); s != "" {
		call = call.TimeMin(s)
	}
	if s := p.String("time_max"); s != "" {
		call = call.TimeMax(s)
	}
	if q := p.String("query"); q != "" {
		call = call.Q(q)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, a.p.Translate(err)
	}

	out := ListResult{Events: make([]Event, 0, len(resp.Items))}
	for _, item := range resp.Items {
		ev := Event{
			ID:       item.Id,
			Summary:  item.Summary,
			Status:   item.Status,
			Location: item.Location,
			HTMLLink: item.HtmlLink,
		}
		ev.Start, ev.AllDay = when(item.Start)
		ev.End, _ = when(item.End)
		out.Events = append(out.Events, ev)
	}
	out.Count = len(out.Events)
	return out, nil
}

func when(dt *calendarv3.EventDateTime) (string, bool) {
	if dt == nil {
		return "", false
	}
	if dt.DateTime != "" {
		return dt.DateTime, false
	}
	return dt.Date, dt.Date != ""
}
