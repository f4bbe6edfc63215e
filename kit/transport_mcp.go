package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// RegisterMCPTool exposes endpoint as an MCP tool. decode turns the raw tool
// arguments into the endpoint's request type. Decode and endpoint failures
// become tool errors (IsError=true) rather than protocol errors; a string
// response is returned as-is, anything else as JSON text.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = WithTransport(ctx, "mcp")
		decoded, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return toolError(errors.New(err.Error())), nil
		}

		text, ok := resp.(string)
		if !ok {
			data, err := json.Marshal(resp)
			if err != nil {
				return toolError(fmt.Errorf("marshal: %w", err)), nil
			}
			text = string(data)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	})
}

// DecodeArgs unmarshals the tool arguments into T. Empty arguments decode to
// the zero value.
func DecodeArgs[T any](req *mcp.CallToolRequest) (T, error) {
	var v T
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
		return v, err
	}
	return v, nil
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
