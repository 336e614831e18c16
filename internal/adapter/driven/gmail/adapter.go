// Package gmail implements the "gmail" app adapter on the Gmail API.
package gmail

import (
	"context"
	"fmt"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// AppName is the registry key of this adapter.
const AppName = "gmail"

// maxFetch caps fetchEmails; each message costs one metadata request.
const maxFetch = 50

// Compile-time interface satisfaction check.
var _ driven.AppAdapter = (*Adapter)(nil)

// Adapter exposes Gmail actions.
type Adapter struct {
	p *upstream.Provider
}

// New creates the Gmail adapter. An empty provider base URL selects the
// public Gmail endpoint.
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
			Name:        "fetchEmails",
			Description: "List messages matching a Gmail search query with their headers and snippet.",
			ReadOnly:    true,
			Fields: []model.FieldSpec{
				{Name: "query", Type: model.FieldString, Default: "is:unread", Description: "Gmail search query"},
				{Name: "max_results", Type: model.FieldInt, Default: 10, Description: "1 to 50"},
				{Name: "include_body", Type: model.FieldBool, Default: false, Description: "also return the text/plain body"},
			},
			Handler: a.fetchEmails,
		},
		{
			Name:        "sendEmail",
			Description: "Send an email from the connected account.",
			Fields: []model.FieldSpec{
				{Name: "to", Type: model.FieldStringList, Required: true, Description: "recipient addresses"},
				{Name: "subject", Type: model.FieldString, Required: true},
				{Name: "body", Type: model.FieldString, Required: true},
				{Name: "cc", Type: model.FieldStringList},
				{Name: "bcc", Type: model.FieldStringList},
				{Name: "format", Type: model.FieldString, Default: "text", Description: "text, markdown or html"},
			},
			Handler: a.sendEmail,
		},
	}
}

func (a *Adapter) service(ctx context.Context, cred model.CredentialRecord) (*gmailv1.Service, error) {
	svc, err := gmailv1.NewService(ctx, a.p.GoogleOptions(cred.AccessToken, "/")...)
	if err != nil {
		return nil, model.Internal("Gmail client could not be created", fmt.Errorf("gmail.NewService: %w", err))
	}
	return svc, nil
}
