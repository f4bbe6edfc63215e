package comments

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pinup/kit"
)

// RegisterMCP registers the comment tools on an MCP server. The MCP endpoint
// is guarded by an operator token, so tools are not scoped to a session.
func (a *API) RegisterMCP(srv *mcp.Server) {
	a.registerListComments(srv)
	a.registerExportMarkdown(srv)
}

type versionArgs struct {
	ProjectID string `json:"project_id"`
	VersionID string `json:"version_id"`
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var versionProperties = map[string]any{
	"project_id": map[string]any{"type": "string", "description": "Project slug"},
	"version_id": map[string]any{"type": "string", "description": "Version id; empty selects the latest version"},
}

func decodeVersionArgs(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	p, err := kit.DecodeArgs[versionArgs](r)
	if err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}

func (a *API) registerListComments(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pinup_list_comments",
		Description: "List the comments pinned on a prototype version, newest first",
		InputSchema: inputSchema(versionProperties, []string{"project_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*versionArgs)
		_, v, err := a.projects.Version(p.ProjectID, p.VersionID)
		if err != nil {
			return nil, err
		}
		list, err := a.store.List(ctx, p.ProjectID, v.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"project_id": p.ProjectID, "version_id": v.ID, "comments": list}, nil
	}

	mw := kit.Chain(kit.Logging(a.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decodeVersionArgs)
}

func (a *API) registerExportMarkdown(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pinup_export_markdown",
		Description: "Export the comments of a prototype version as markdown with suggested actions",
		InputSchema: inputSchema(versionProperties, []string{"project_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*versionArgs)
		proj, v, err := a.projects.Version(p.ProjectID, p.VersionID)
		if err != nil {
			return nil, err
		}
		return a.export(ctx, proj, v)
	}

	mw := kit.Chain(kit.Logging(a.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decodeVersionArgs)
}
