package gmail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"sort"
	"strings"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/richtext"
	"github.com/ericfisherdev/blimp/internal/domain/model"
)

const (
	formatText     = "text"
	formatMarkdown = "markdown"
	formatHTML     = "html"
)

type outgoing struct {
	from    string
	to      []string
	cc      []string
	bcc     []string
	subject string
	body    string
	format  string
}

// buildMessage renders an RFC 5322 message. Gmail reads the Bcc header from
// the raw message and strips it before delivery.
func buildMessage(m outgoing) ([]byte, error) {
	to, err := addressList("to", m.to)
	if err != nil {
		return nil, err
	}
	if to == "" {
		return nil, model.MissingFields("to")
	}
	cc, err := addressList("cc", m.cc)
	if err != nil {
		return nil, err
	}
	bcc, err := addressList("bcc", m.bcc)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"To":           to,
		"Subject":      mime.QEncoding.Encode("utf-8", sanitizeHeaderValue(m.subject)),
		"MIME-Version": "1.0",
	}
	if from := sanitizeHeaderValue(m.from); from != "" {
		headers["From"] = from
	}
	if cc != "" {
		headers["Cc"] = cc
	}
	if bcc != "" {
		headers["Bcc"] = bcc
	}

	var body bytes.Buffer
	switch strings.ToLower(strings.TrimSpace(m.format)) {
	case "", formatText:
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		headers["Content-Transfer-Encoding"] = "quoted-printable"
		if err := writeQuotedPrintable(&body, m.body); err != nil {
			return nil, err
		}
	case formatMarkdown:
		ct, err := writeAlternative(&body, m.body, richtext.HTML(m.body))
		if err != nil {
			return nil, err
		}
		headers["Content-Type"] = ct
	case formatHTML:
		ct, err := writeAlternative(&body, richtext.PlainText(m.body), richtext.SanitizeHTML(m.body))
		if err != nil {
			return nil, err
		}
		headers["Content-Type"] = ct
	default:
		return nil, model.PayloadValidation("format must be one of text, markdown, html")
	}

	var out bytes.Buffer
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&out, "%s: %s\r\n", k, headers[k])
	}
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func writeAlternative(w *bytes.Buffer, plain, html string) (string, error) {
	mw := multipart.NewWriter(w)
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", plain},
		{"text/html; charset=UTF-8", html},
	}
	for _, part := range parts {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return "", fmt.Errorf("create mime part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(normalizeBody(part.content))); err != nil {
			return "", fmt.Errorf("write mime part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return "", fmt.Errorf("close mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}
	return "multipart/alternative; boundary=" + mw.Boundary(), nil
}

func writeQuotedPrintable(w *bytes.Buffer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(normalizeBody(s))); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return qp.Close()
}

// addressList validates addrs and joins them for a header. field names the
// payload key in error messages.
func addressList(field string, addrs []string) (string, error) {
	out := make([]string, 0, len(addrs))
	for _, raw := range addrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return "", model.PayloadValidation("invalid email address in %s: %q", field, raw)
		}
		out = append(out, addr.String())
	}
	return strings.Join(out, ", "), nil
}

func sanitizeHeaderValue(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.TrimSpace(v)
}

func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "\r\n")
}
