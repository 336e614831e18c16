package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// fakeCredentialStore is an in-memory CredentialStore that counts reads.
type fakeCredentialStore struct {
	mu       sync.Mutex
	records  map[string]model.CredentialRecord
	getCalls int
	putCalls int
	getErr   error
	putErr   error
}

func newFakeCredentialStore(recs ...model.CredentialRecord) *fakeCredentialStore {
	s := &fakeCredentialStore{records: make(map[string]model.CredentialRecord)}
	for _, r := range recs {
		s.records[r.UserID+"/"+r.AppType] = r
	}
	return s
}

func (s *fakeCredentialStore) GetActive(_ context.Context, userID, appType string) (*model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[userID+"/"+appType]
	if !ok || !rec.IsActive {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeCredentialStore) Put(_ context.Context, rec model.CredentialRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.putErr != nil {
		return "", s.putErr
	}
	if rec.ID == "" {
		rec.ID = "cred-" + rec.UserID + "-" + rec.AppType
	}
	rec.IsActive = true
	s.records[rec.UserID+"/"+rec.AppType] = rec
	return rec.ID, nil
}

func (s *fakeCredentialStore) ListConnectedApps(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var apps []string
	for _, r := range s.records {
		if r.UserID == userID && r.IsActive {
			apps = append(apps, r.AppType)
		}
	}
	sort.Strings(apps)
	return apps, nil
}

func (s *fakeCredentialStore) Deactivate(_ context.Context, userID, appType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + appType
	rec, ok := s.records[key]
	if !ok {
		return driven.ErrCredentialNotFound
	}
	rec.IsActive = false
	s.records[key] = rec
	return nil
}

func (s *fakeCredentialStore) gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

// stubAdapter is a configurable AppAdapter.
type stubAdapter struct {
	name    string
	display string
	actions []driven.Action
}

func (a *stubAdapter) Name() string             { return a.name }
func (a *stubAdapter) DisplayName() string      { return a.display }
func (a *stubAdapter) Actions() []driven.Action { return a.actions }

// handlerCall records the arguments an action handler received.
type handlerCall struct {
	cred    model.CredentialRecord
	payload model.Payload
}

// recordingHandler returns a handler that captures its calls and replies
// with result and err.
func recordingHandler(calls *[]handlerCall, mu *sync.Mutex, result any, err error) driven.Handler {
	return func(_ context.Context, cred model.CredentialRecord, payload model.Payload) (any, error) {
		mu.Lock()
		*calls = append(*calls, handlerCall{cred: cred, payload: payload})
		mu.Unlock()
		return result, err
	}
}

type recordedDispatch struct {
	app, action string
	kind        model.ErrorKind
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedDispatch
}

func (r *fakeRecorder) RecordDispatch(app, action string, kind model.ErrorKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedDispatch{app: app, action: action, kind: kind})
}

type fakeRefresher struct {
	rec   *model.CredentialRecord
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(_ context.Context, _ model.CredentialRecord) (*model.CredentialRecord, error) {
	f.calls++
	return f.rec, f.err
}

func activeCred(userID, app, token string) model.CredentialRecord {
	return model.CredentialRecord{
		ID:          "id-" + userID + "-" + app,
		UserID:      userID,
		AppType:     app,
		AccessToken: token,
		IsActive:    true,
	}
}
