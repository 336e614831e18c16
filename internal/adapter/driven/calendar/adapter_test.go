package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/adaptertest"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
)

const eventsPath = "/calendar/v3/calendars/primary/events"

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	return New(adaptertest.Provider(t, "Google Calendar", mux, upstream.ProviderOptions{Account: "Google"}))
}

func event(summary, start, end string) map[string]any {
	return map[string]any{"summary": summary, "start": start, "end": end}
}

func TestCreateEvent_AllCreated(t *testing.T) {
	var bodies []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+eventsPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ev-` + body["summary"].(string) + `","htmlLink":"https://calendar.google.com/e"}`))
	})
	a := newTestAdapter(t, mux)

	res, err := adaptertest.Invoke(t, a, "createEvent", model.Payload{"events": []any{
		map[string]any{
			"summary":   "standup",
			"start":     "2026-03-02T09:00:00Z",
			"end":       "2026-03-02T09:15:00Z",
			"time_zone": "UTC",
			"attendees": []any{"bob@example.com"},
		},
		event("offsite", "2026-03-05", "2026-03-06"),
	}})
	require.NoError(t, err)

	out := res.(CreateResult)
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, EventOutcome{Index: 0, Status: StatusCreated, ID: "ev-standup", HTMLLink: "https://calendar.google.com/e"}, out.Events[0])

	require.Len(t, bodies, 2)
	assert.Equal(t, map[string]any{"dateTime": "2026-03-02T09:00:00Z", "timeZone": "UTC"}, bodies[0]["start"])
	assert.Equal(t, []any{map[string]any{"email": "bob@example.com"}}, bodies[0]["attendees"])
	assert.Equal(t, map[string]any{"date": "2026-03-05"}, bodies[1]["start"])
}

func TestCreateEvent_ValidatesEverythingFirst(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+eventsPath, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	})
	a := newTestAdapter(t, mux)

	_, err := adaptertest.Invoke(t, a, "createEvent", model.Payload{"events": []any{
		event("fine", "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z"),
		event("", "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z"),
		event("backwards", "2026-03-02T10:00:00Z", "2026-03-02T09:00:00Z"),
		event("mixed", "2026-03-02", "2026-03-02T10:00:00Z"),
	}})
	require.Error(t, err)
	assert.Equal(t, model.KindPayloadValidation, model.KindOf(err))
	assert.Equal(t, "invalid event(s): events[1]: summary is required; events[2]: end must be after start; "+
		"events[3]: start and end must both be dates or both be date-times", err.Error())
	assert.Zero(t, calls.Load(), "no event is created when any is invalid")
}

func TestCreateEvent_PartialFailure(t *testing.T) {
	var n atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+eventsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if n.Add(1) == 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid attendee"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"ok"}`))
	})
	a := newTestAdapter(t, mux)

	res, err := adaptertest.Invoke(t, a, "createEvent", model.Payload{"events": []any{
		event("a", "2026-03-02", "2026-03-03"),
		event("b", "2026-03-03", "2026-03-04"),
		event("c", "2026-03-04", "2026-03-05"),
	}})
	require.NoError(t, err)

	out := res.(CreateResult)
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, StatusFailed, out.Events[1].Status)
	assert.Equal(t, "Google Calendar API error: 400 Invalid attendee", out.Events[1].Error)
	assert.Equal(t, StatusCreated, out.Events[2].Status)
}

func TestCreateEvent_CancelledInsertHidesTransportDetail(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+eventsPath, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 2 {
			cancel()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ok"}`))
	})
	a := newTestAdapter(t, mux)

	res, err := adaptertest.InvokeContext(ctx, t, a, "createEvent", adaptertest.Credential(AppName), model.Payload{"events": []any{
		event("a", "2026-03-02", "2026-03-03"),
		event("b", "2026-03-03", "2026-03-04"),
		event("c", "2026-03-04", "2026-03-05"),
	}})
	require.NoError(t, err)

	out := res.(CreateResult)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, EventOutcome{Index: 1, Status: StatusFailed, Error: "cancelled"}, out.Events[1])
	assert.Equal(t, StatusSkipped, out.Events[2].Status)
	assert.Equal(t, int32(2), n.Load())
}

func TestCreateEvent_UnauthorizedStopsAndFails(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+eventsPath, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	a := newTestAdapter(t, mux)

	_, err := adaptertest.Invoke(t, a, "createEvent", model.Payload{"events": []any{
		event("a", "2026-03-02", "2026-03-03"),
		event("b", "2026-03-03", "2026-03-04"),
	}})
	require.Error(t, err)
	assert.Equal(t, "Google Calendar access token is invalid or expired. Please reconnect your Google account.", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestListEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+eventsPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2026-03-01T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "25", q.Get("maxResults"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"e1","summary":"standup","status":"confirmed","htmlLink":"https://c/e1",
			 "start":{"dateTime":"2026-03-02T09:00:00Z"},"end":{"dateTime":"2026-03-02T09:15:00Z"}},
			{"id":"e2","summary":"holiday","status":"confirmed","start":{"date":"2026-03-05"},"end":{"date":"2026-03-06"}}
		]}`))
	})
	a := newTestAdapter(t, mux)

	res, err := adaptertest.Invoke(t, a, "listEvents", model.Payload{"time_min": "2026-03-01T00:00:00Z"})
	require.NoError(t, err)

	out := res.(ListResult)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "2026-03-02T09:00:00Z", out.Events[0].Start)
	assert.False(t, out.Events[0].AllDay)
	assert.Equal(t, "2026-03-05", out.Events[1].Start)
	assert.True(t, out.Events[1].AllDay)
}

func TestListEvents_InvalidBounds(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	_, err := adaptertest.Invoke(t, a, "listEvents", model.Payload{"time_max": "next tuesday"})
	require.Error(t, err)
	assert.Equal(t, "time_max must be an RFC 3339 date-time", err.Error())
}
