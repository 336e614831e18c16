// Package slack implements the "slack" app adapter on the Slack Web API.
//
// Slack reports most failures with HTTP 200 and {"ok": false, "error": ...};
// those bodies are translated to the same proxy errors as HTTP failures.
package slack

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

const (
	AppName = "slack"

	// DefaultBaseURL is the Web API root.
	DefaultBaseURL = "https://slack.com/api"
)

var _ driven.AppAdapter = (*Adapter)(nil)

// authErrors are ok:false codes that mean the token must be replaced.
var authErrors = map[string]bool{
	"not_authed":       true,
	"invalid_auth":     true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
}

// Adapter exposes Slack actions.
type Adapter struct {
	p *upstream.Provider
}

// New creates the Slack adapter. p must carry a base URL (DefaultBaseURL in
// production).
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
			Name:        "postMessage",
			Description: "Post a message to a channel.",
			Fields: []model.FieldSpec{
				{Name: "message", Type: model.FieldString, Required: true, Description: "message text (Slack mrkdwn)"},
				{Name: "channel", Type: model.FieldString, Default: "#general", Description: "channel name or id"},
			},
			Handler: a.postMessage,
		},
		{
			Name:        "listChannels",
			Description: "List conversations visible to the connected user.",
			ReadOnly:    true,
			Fields: []model.FieldSpec{
				{Name: "limit", Type: model.FieldInt, Default: 100, Description: "1 to 1000"},
				{Name: "types", Type: model.FieldString, Default: "public_channel", Description: "comma-separated conversation types"},
			},
			Handler: a.listChannels,
		},
	}
}

type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (a *Adapter) check(e envelope) error {
	if e.OK {
		return nil
	}
	code := e.Error
	if code == "" {
		code = "unknown_error"
	}
	if authErrors[code] {
		return a.p.FromStatus(http.StatusUnauthorized, code, nil)
	}
	return model.UpstreamAPI(a.p.Name(), code, nil)
}

// PostResult is returned by postMessage.
type PostResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	Text    string `json:"text"`
}

func (a *Adapter) postMessage(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	var resp struct {
		envelope
		Channel string `json:"channel"`
		TS      string `json:"ts"`
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	err := a.p.DoJSON(ctx, cred.AccessToken, upstream.JSONRequest{
		Method: http.MethodPost,
		Path:   "/chat.postMessage",
		Body: map[string]any{
			"channel": p.String("channel"),
			"text":    p.String("message"),
		},
	}, &resp)
	if err != nil {
		return nil, a.p.Translate(err)
	}
	if err := a.check(resp.envelope); err != nil {
		return nil, err
	}
	return PostResult{Channel: resp.Channel, TS: resp.TS, Text: resp.Message.Text}, nil
}

// Channel is one conversation in listChannels.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsMember   bool   `json:"is_member"`
	NumMembers int    `json:"num_members"`
	Topic      string `json:"topic"`
}

// ChannelList is returned by listChannels.
type ChannelList struct {
	Channels []Channel `json:"channels"`
	Count    int       `json:"count"`
}

func (a *Adapter) listChannels(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	limit := p.Int("limit")
	if limit < 1 || limit > 1000 {
		return nil, model.PayloadValidation("limit must be between 1 and 1000")
	}

	var resp struct {
		envelope
		Channels []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			IsPrivate  bool   `json:"is_private"`
			IsMember   bool   `json:"is_member"`
			NumMembers int    `json:"num_members"`
			Topic      struct {
				Value string `json:"value"`
			} `json:"topic"`
		} `json:"channels"`
	}
	err := a.p.DoJSON(ctx, cred.AccessToken, upstream.JSONRequest{
		Method: http.MethodGet,
		Path:   "/conversations.list",
		Query: url.Values{
			"limit":            {strconv.Itoa(limit)},
			"types":            {p.String("types")},
			"exclude_archived": {"true"},
		},
	}, &resp)
	if err != nil {
		return nil, a.p.Translate(err)
	}
	if err := a.check(resp.envelope); err != nil {
		return nil, err
	}

	out := ChannelList{Channels: make([]Channel, 0, len(resp.Channels))}
	for _, c := range resp.Channels {
		out.Channels = append(out.Channels, Channel{
			ID:         c.ID,
			Name:       c.Name,
			IsPrivate:  c.IsPrivate,
			IsMember:   c.IsMember,
			NumMembers: c.NumMembers,
			Topic:      c.Topic.Value,
		})
	}
	out.Count = len(out.Channels)
	return out, nil
}
