package driven

import (
	"context"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// Handler performs one action against a third-party API using the caller's
// credential. payload has already been validated against the action's Fields.
// Errors should be *model.ProxyError values; anything else is reported to
// the caller as a generic failure.
type Handler func(ctx context.Context, cred model.CredentialRecord, payload model.Payload) (any, error)

// Action is one named operation of an app adapter.
type Action struct {
	Name        string
	Description string
	// ReadOnly marks actions that never mutate third-party state.
	ReadOnly bool
	Fields   []model.FieldSpec
	Handler  Handler
}

// AppAdapter is the driven port implemented by each third-party integration.
// Name is the lower-case registry key used in /proxy/{app_name}/{action}.
type AppAdapter interface {
	Name() string
	DisplayName() string
	Actions() []Action
}
