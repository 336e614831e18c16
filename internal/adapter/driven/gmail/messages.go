package gmail

import (
	"context"
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// Email is the normalised view of one message.
type Email struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Subject  string   `json:"subject"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	LabelIDs []string `json:"label_ids"`
	Body     string   `json:"body,omitempty"`
}

// FetchResult is returned by fetchEmails.
type FetchResult struct {
	Emails []Email `json:"emails"`
	Count  int     `json:"count"`
}

// SendResult is returned by sendEmail.
type SendResult struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	LabelIDs []string `json:"label_ids"`
}

var metadataHeaders = []string{"From", "To", "Subject", "Date"}

// fetchEmails lists matching messages, then loads each one. The first failed
// load aborts the action.
func (a *Adapter) fetchEmails(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	limit := p.Int("max_results")
	if limit < 1 || limit > maxFetch {
		return nil, model.PayloadValidation("max_results must be between 1 and %d", maxFetch)
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	list, err := svc.Users.Messages.List("me").
		Q(p.String("query")).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, a.p.Translate(err)
	}

	refs := list.Messages
	if len(refs) > limit {
		refs = refs[:limit]
	}

	withBody := p.Bool("include_body")
	emails := make([]Email, 0, len(refs))
	for _, ref := range refs {
		call := svc.Users.Messages.Get("me", ref.Id).Context(ctx)
		if withBody {
			call = call.Format("full")
		} else {
			call = call.Format("metadata").MetadataHeaders(metadataHeaders...)
		}
		msg, err := call.Do()
		if err != nil {
			return nil, a.p.Translate(err)
		}
		emails = append(emails, toEmail(msg, withBody))
	}

	return FetchResult{Emails: emails, Count: len(emails)}, nil
}

func toEmail(msg *gmailv1.Message, withBody bool) Email {
	e := Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if e.LabelIDs == nil {
		e.LabelIDs = []string{}
	}
	if msg.Payload == nil {
		return e
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			e.From = h.Value
		case "to":
			e.To = h.Value
		case "subject":
			e.Subject = h.Value
		case "date":
			e.Date = h.Value
		}
	}
	if withBody {
		e.Body = plainBody(msg.Payload)
	}
	return e
}

// plainBody returns the first text/plain part of a message, depth first.
func plainBody(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		raw, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			raw, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
		}
		if err == nil {
			return string(raw)
		}
	}
	for _, child := range part.Parts {
		if body := plainBody(child); body != "" {
			return body
		}
	}
	return ""
}

func (a *Adapter) sendEmail(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	msg, err := buildMessage(outgoing{
		from:    cred.Metadata.Email,
		to:      p.StringSlice("to"),
		cc:      p.StringSlice("cc"),
		bcc:     p.StringSlice("bcc"),
		subject: p.String("subject"),
		body:    p.String("body"),
		format:  p.String("format"),
	})
	if err != nil {
		return nil, err
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	sent, err := svc.Users.Messages.Send("me", &gmailv1.Message{
		Raw: base64.URLEncoding.EncodeToString(msg),
	}).Context(ctx).Do()
	if err != nil {
		return nil, a.p.Translate(err)
	}

	labels := sent.LabelIds
	if labels == nil {
		labels = []string{}
	}
	return SendResult{ID: sent.Id, ThreadID: sent.ThreadId, LabelIDs: labels}, nil
}
