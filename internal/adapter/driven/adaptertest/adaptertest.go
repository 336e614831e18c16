// Package adaptertest holds helpers shared by the app adapter tests.
package adaptertest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// Token is the access token carried by Credential.
const Token = "alice-token"

// Credential returns an active record for alice on app.
func Credential(app string) model.CredentialRecord {
	return model.CredentialRecord{
		ID:          "cred-alice-" + app,
		UserID:      "alice",
		AppType:     app,
		AccessToken: Token,
		TokenType:   "Bearer",
		Metadata:    model.CredentialMetadata{Email: "alice@example.com"},
		IsActive:    true,
	}
}

// Provider starts handler on an httptest server and returns a provider
// named name pointing at it.
func Provider(t *testing.T, name string, handler http.Handler, opts upstream.ProviderOptions) *upstream.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	return upstream.NewProvider(name, http.DefaultTransport, opts)
}

// Invoke validates payload against the named action and calls its handler
// the way the dispatcher does, using alice's credential.
func Invoke(t *testing.T, a driven.AppAdapter, action string, payload model.Payload) (any, error) {
	t.Helper()
	return InvokeAs(t, a, action, Credential(a.Name()), payload)
}

// InvokeAs is Invoke with an explicit credential.
func InvokeAs(t *testing.T, a driven.AppAdapter, action string, cred model.CredentialRecord, payload model.Payload) (any, error) {
	t.Helper()
	return InvokeContext(context.Background(), t, a, action, cred, payload)
}

// InvokeContext is InvokeAs under ctx.
func InvokeContext(ctx context.Context, t *testing.T, a driven.AppAdapter, action string, cred model.CredentialRecord, payload model.Payload) (any, error) {
	t.Helper()
	for _, act := range a.Actions() {
		if act.Name != action {
			continue
		}
		valid, err := model.ValidatePayload(act.Fields, payload)
		if err != nil {
			return nil, err
		}
		return act.Handler(ctx, cred, valid)
	}
	t.Fatalf("%s has no action %q", a.Name(), action)
	return nil, nil
}

// Store is a credential store in which alice has connected every app.
type Store struct{}

var _ driven.CredentialStore = Store{}

// GetActive implements driven.CredentialStore.
func (Store) GetActive(_ context.Context, userID, appType string) (*model.CredentialRecord, error) {
	if userID != "alice" {
		return nil, nil
	}
	rec := Credential(appType)
	return &rec, nil
}

// Put implements driven.CredentialStore.
func (Store) Put(_ context.Context, rec model.CredentialRecord) (string, error) {
	return rec.ID, nil
}

// ListConnectedApps implements driven.CredentialStore.
func (Store) ListConnectedApps(context.Context, string) ([]string, error) {
	return nil, nil
}

// Deactivate implements driven.CredentialStore.
func (Store) Deactivate(context.Context, string, string) error {
	return nil
}
