// Package notion implements the "notion" app adapter on the Notion REST API.
package notion

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/richtext"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

const (
	AppName = "notion"

	// DefaultBaseURL is the REST API root.
	DefaultBaseURL = "https://api.notion.com"

	// APIVersion is sent as the Notion-Version header on every call.
	APIVersion = "2022-06-28"

	// maxChildren is the most blocks Notion accepts in one request.
	maxChildren = 100
)

var _ driven.AppAdapter = (*Adapter)(nil)

// Adapter exposes Notion actions.
type Adapter struct {
	p *upstream.Provider
}

// New creates the Notion adapter.
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
			Name:        "createPage",
			Description: "Create a page from markdown content.",
			Fields: []model.FieldSpec{
				{Name: "title", Type: model.FieldString, Default: "New Page"},
				{Name: "content", Type: model.FieldString, Description: "page body"},
				{Name: "content_format", Type: model.FieldString, Default: "markdown", Description: "markdown or plain"},
				{Name: "parent_id", Type: model.FieldString, Description: "parent page id; the workspace when empty"},
			},
			Handler: a.createPage,
		},
		{
			Name:        "searchPages",
			Description: "Search pages shared with the integration.",
			ReadOnly:    true,
			Fields: []model.FieldSpec{
				{Name: "query", Type: model.FieldString},
				{Name: "page_size", Type: model.FieldInt, Default: 10, Description: "1 to 100"},
			},
			Handler: a.searchPages,
		},
	}
}

func (a *Adapter) call(ctx context.Context, token, method, path string, body, out any) error {
	err := a.p.DoJSON(ctx, token, upstream.JSONRequest{
		Method: method,
		Path:   path,
		Body:   body,
		Header: http.Header{"Notion-Version": {APIVersion}},
	}, out)
	return a.p.Translate(err)
}

// PageResult is returned by createPage.
type PageResult struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	CreatedTime string `json:"created_time"`
	Blocks      int    `json:"blocks"`
}

func (a *Adapter) createPage(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	var blocks []richtext.Block
	switch strings.ToLower(p.String("content_format")) {
	case "", "markdown":
		blocks = richtext.NotionBlocks(p.String("content"))
	case "plain":
		blocks = richtext.PlainParagraphs(p.String("content"))
	default:
		return nil, model.PayloadValidation("content_format must be markdown or plain")
	}

	parent := map[string]any{"type": "workspace", "workspace": true}
	if id := p.String("parent_id"); id != "" {
		parent = map[string]any{"type": "page_id", "page_id": id}
	}

	first := blocks
	if len(first) > maxChildren {
		first = blocks[:maxChildren]
	}
	body := map[string]any{
		"parent": parent,
		"properties": map[string]any{
			"title": map[string]any{
				"title": []map[string]any{{"type": "text", "text": map[string]any{"content": p.String("title")}}},
			},
		},
	}
	if len(first) > 0 {
		body["children"] = first
	}

	var page struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		CreatedTime string `json:"created_time"`
	}
	if err := a.call(ctx, cred.AccessToken, http.MethodPost, "/v1/pages", body, &page); err != nil {
		return nil, err
	}

	for sent := len(first); sent < len(blocks); sent += maxChildren {
		end := min(sent+maxChildren, len(blocks))
		err := a.call(ctx, cred.AccessToken, http.MethodPatch, "/v1/blocks/"+page.ID+"/children",
			map[string]any{"children": blocks[sent:end]}, nil)
		if err != nil {
			if model.KindOf(err) == model.KindTimeout || model.KindOf(err) == model.KindUpstreamAPI {
				return nil, model.UpstreamMessage(fmt.Sprintf(
					"%s API error: page %s was created but only %d of %d blocks were written",
					a.p.Name(), page.ID, sent, len(blocks)), err)
			}
			return nil, err
		}
	}

	return PageResult{ID: page.ID, URL: page.URL, CreatedTime: page.CreatedTime, Blocks: len(blocks)}, nil
}

// Page is one search hit.
type Page struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	LastEditedTime string `json:"last_edited_time"`
}

// SearchResult is returned by searchPages.
type SearchResult struct {
	Pages   []Page `json:"pages"`
	Count   int    `json:"count"`
	HasMore bool   `json:"has_more"`
}

type titleProperty struct {
	Type  string `json:"type"`
	Title []struct {
		PlainText string `json:"plain_text"`
	} `json:"title"`
}

func (a *Adapter) searchPages(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	size := p.Int("page_size")
	if size < 1 || size > maxChildren {
		return nil, model.PayloadValidation("page_size must be between 1 and %d", maxChildren)
	}

	body := map[string]any{
		"page_size": size,
		"filter":    map[string]any{"property": "object", "value": "page"},
	}
	if q := p.String("query"); q != "" {
		body["query"] = q
	}

	var resp struct {
		Results []struct {
			ID             string                   `json:"id"`
			URL            string                   `json:"url"`
			LastEditedTime string                   `json:"last_edited_time"`
			Properties     map[string]titleProperty `json:"properties"`
		} `json:"results"`
		HasMore bool `json:"has_more"`
	}
	if err := a.call(ctx, cred.AccessToken, http.MethodPost, "/v1/search", body, &resp); err != nil {
		return nil, err
	}

	out := SearchResult{Pages: make([]Page, 0, len(resp.Results)), HasMore: resp.HasMore}
	for _, r := range resp.Results {
		out.Pages = append(out.Pages, Page{
			ID:             r.ID,
			Title:          pageTitle(r.Properties),
			URL:            r.URL,
			LastEditedTime: r.LastEditedTime,
		})
	}
	out.Count = len(out.Pages)
	return out, nil
}

// pageTitle joins the plain text of the page's title property.
func pageTitle(props map[string]titleProperty) string {
	for _, prop := range props {
		if prop.Type != "title" {
			continue
		}
		var b strings.Builder
		for _, t := range prop.Title {
			b.WriteString(t.PlainText)
		}
		return b.String()
	}
	return ""
}
