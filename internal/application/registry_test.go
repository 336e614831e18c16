package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

func noopHandler(context.Context, model.CredentialRecord, model.Payload) (any, error) {
	return nil, nil
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name     string
		adapters []driven.AppAdapter
		wantErr  string
	}{
		{
			name:     "empty app name",
			adapters: []driven.AppAdapter{&stubAdapter{name: "  "}},
			wantErr:  "adapter with empty name",
		},
		{
			name: "duplicate app after normalisation",
			adapters: []driven.AppAdapter{
				&stubAdapter{name: "gmail"},
				&stubAdapter{name: "Gmail"},
			},
			wantErr: `duplicate adapter "gmail"`,
		},
		{
			name: "duplicate action",
			adapters: []driven.AppAdapter{&stubAdapter{name: "slack", actions: []driven.Action{
				{Name: "postMessage", Handler: noopHandler},
				{Name: "postMessage", Handler: noopHandler},
			}}},
			wantErr: `adapter "slack": duplicate action "postMessage"`,
		},
		{
			name: "missing handler",
			adapters: []driven.AppAdapter{&stubAdapter{name: "slack", actions: []driven.Action{
				{Name: "postMessage"},
			}}},
			wantErr: `adapter "slack": action "postMessage" has no handler`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.adapters...)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestRegistry_LookupAndCatalog(t *testing.T) {
	reg, err := NewRegistry(
		&stubAdapter{name: "slack", display: "Slack", actions: []driven.Action{
			{Name: "postMessage", Handler: noopHandler, Fields: []model.FieldSpec{{Name: "message", Type: model.FieldString, Required: true}}},
			{Name: "listChannels", Handler: noopHandler, ReadOnly: true},
		}},
		&stubAdapter{name: "gmail", display: "Gmail", actions: []driven.Action{
			{Name: "fetchEmails", Handler: noopHandler, ReadOnly: true},
		}},
	)
	require.NoError(t, err)

	a, ok := reg.Lookup(" SLACK ")
	require.True(t, ok)
	assert.Equal(t, "Slack", a.DisplayName())

	_, ok = reg.Action("slack", "PostMessage")
	assert.False(t, ok, "action names are case-sensitive")

	act, ok := reg.Action("Slack", "postMessage")
	require.True(t, ok)
	assert.Equal(t, "postMessage", act.Name)

	assert.Equal(t, []string{"gmail", "slack"}, reg.Apps())

	catalog := reg.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "gmail", catalog[0].Name)
	assert.Equal(t, "slack", catalog[1].Name)
	require.Len(t, catalog[1].Actions, 2)
	assert.Equal(t, "listChannels", catalog[1].Actions[0].Name)
	assert.True(t, catalog[1].Actions[0].ReadOnly)
	assert.NotNil(t, catalog[1].Actions[0].Fields)
	assert.Equal(t, "message", catalog[1].Actions[1].Fields[0].Name)
}
