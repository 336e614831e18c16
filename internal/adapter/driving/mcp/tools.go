package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// DispatchInput is the input schema for the proxy_dispatch tool.
type DispatchInput struct {
	App     string         `json:"app" jsonschema:"registered app name, for example gmail or slack"`
	Action  string         `json:"action" jsonschema:"action of the app, for example sendEmail"`
	UserID  string         `json:"user_id" jsonschema:"user whose connected credential is used"`
	Payload map[string]any `json:"payload,omitempty" jsonschema:"action parameters, see list_apps for the fields of each action"`
}

// ListAppsInput is the input schema for the list_apps tool.
type ListAppsInput struct {
	App string `json:"app,omitempty" jsonschema:"restrict the listing to one app"`
}

// ListAppsOutput is the output schema for the list_apps tool.
type ListAppsOutput struct {
	Apps  []application.AppInfo `json:"apps"`
	Count int                   `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "proxy_dispatch",
		Description: "Run an action of a connected app with the user's own credential and return the result envelope",
	}, s.handleDispatch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_apps",
		Description: "List the supported apps, their actions and the payload fields of each action",
	}, s.handleListApps)
}

// handleDispatch handles the proxy_dispatch tool invocation. Dispatch
// failures are reported inside the envelope, never as tool errors.
func (s *Server) handleDispatch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DispatchInput,
) (*mcp.CallToolResult, model.Envelope, error) {
	payload := model.Payload(input.Payload)
	if payload == nil {
		payload = model.Payload{}
	}

	env := s.dispatcher.Dispatch(ctx, input.App, input.Action, input.UserID, payload)
	if !env.Success {
		s.logger.Debug("mcp dispatch failed", "app", input.App, "action", input.Action, "error_code", env.ErrorCode)
	}
	return nil, env, nil
}

// handleListApps handles the list_apps tool invocation.
func (s *Server) handleListApps(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListAppsInput,
) (*mcp.CallToolResult, ListAppsOutput, error) {
	catalog := s.dispatcher.Registry().Catalog()

	if input.App != "" {
		want := application.NormalizeAppName(input.App)
		filtered := make([]application.AppInfo, 0, 1)
		for _, app := range catalog {
			if app.Name == want {
				filtered = append(filtered, app)
			}
		}
		catalog = filtered
	}

	return nil, ListAppsOutput{Apps: catalog, Count: len(catalog)}, nil
}
