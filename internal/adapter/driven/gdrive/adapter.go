// Package gdrive implements the "gdrive" app adapter on the Google Drive API.
package gdrive

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

const (
	AppName = "gdrive"

	maxPageSize = 1000

	// maxUploadBytes bounds the decoded size of an inline upload.
	maxUploadBytes = 10 << 20
)

const listFields = "nextPageToken, files(id, name, mimeType, createdTime, modifiedTime)"

var _ driven.AppAdapter = (*Adapter)(nil)

// Adapter exposes Google Drive actions.
type Adapter struct {
	p *upstream.Provider
}

// New creates the Drive adapter.
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
			Name:        "listFiles",
			Description: "List files, optionally filtered with a Drive search query.",
			ReadOnly:    true,
			Fields: []model.FieldSpec{
				{Name: "query", Type: model.FieldString, Description: "Drive query, for example name contains 'report'"},
				{Name: "page_size", Type: model.FieldInt, Default: 10, Description: "1 to 1000"},
				{Name: "page_token", Type: model.FieldString},
			},
			Handler: a.listFiles,
		},
		{
			Name:        "uploadFile",
			Description: "Upload a file from inline content.",
			Fields: []model.FieldSpec{
				{Name: "file_name", Type: model.FieldString, Required: true},
				{Name: "file_content", Type: model.FieldString, Required: true},
				{Name: "mime_type", Type: model.FieldString, Default: "text/plain"},
				{Name: "encoding", Type: model.FieldString, Default: "text", Description: "text or base64"},
				{Name: "folder_id", Type: model.FieldString, Description: "parent folder"},
			},
			Handler: a.uploadFile,
		},
	}
}

func (a *Adapter) service(ctx context.Context, cred model.CredentialRecord) (*drivev3.Service, error) {
	svc, err := drivev3.NewService(ctx, a.p.GoogleOptions(cred.AccessToken, "/drive/v3/")...)
	if err != nil {
		return nil, model.Internal("Google Drive client could not be created", fmt.Errorf("drive.NewService: %w", err))
	}
	return svc, nil
}

// File is one listFiles item.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	CreatedTime  string `json:"created_time"`
	ModifiedTime string `json:"modified_time"`
}

// ListResult is returned by listFiles.
type ListResult struct {
	Files         []File `json:"files"`
	Count         int    `json:"count"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

func (a *Adapter) listFiles(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	size := p.Int("page_size")
	if size < 1 || size > maxPageSize {
		return nil, model.PayloadValidation("page_size must be between 1 and %d", maxPageSize)
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	call := svc.Files.List().
		PageSize(int64(size)).
		Fields(googleapi.Field(listFields)).
		Context(ctx)
	if q := p.String("query"); q != "" {
		call = call.Q(q)
	}
	if tok := p.String("page_token"); tok != "" {
		call = call.PageToken(tok)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, a.p.Translate(err)
	}

	out := ListResult{Files: make([]File, 0, len(resp.Files)), NextPageToken: resp.NextPageToken}
	for _, f := range resp.Files {
		out.Files = append(out.Files, File{
			ID:           f.Id,
			Name:         f.Name,
			MimeType:     f.MimeType,
			CreatedTime:  f.CreatedTime,
			ModifiedTime: f.ModifiedTime,
		})
	}
	out.Count = len(out.Files)
	return out, nil
}

// UploadResult is returned by uploadFile.
type UploadResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	WebViewLink string `json:"web_view_link"`
}

func (a *Adapter) uploadFile(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	content, err := decodeContent(p.String("file_content"), p.String("encoding"))
	if err != nil {
		return nil, err
	}
	if len(content) > maxUploadBytes {
		return nil, model.PayloadValidation("file_content exceeds %d bytes", maxUploadBytes)
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	meta := &drivev3.File{Name: p.String("file_name"), MimeType: p.String("mime_type")}
	if folder := p.String("folder_id"); folder != "" {
		meta.Parents = []string{folder}
	}

	created, err := svc.Files.Create(meta).
		Media(bytes.NewReader(content), googleapi.ContentType(meta.MimeType)).
		Fields("id, name, mimeType, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, a.p.Translate(err)
	}

	return UploadResult{
		ID:          created.Id,
		Name:        created.Name,
		MimeType:    created.MimeType,
		WebViewLink: created.WebViewLink,
	}, nil
}

func decodeContent(s, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "text":
		return []byte(s), nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, model.PayloadValidation("file_content is not valid base64")
		}
		return b, nil
	default:
		return nil, model.PayloadValidation("encoding must be text or base64")
	}
}
