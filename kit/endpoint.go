// Package kit carries transport-neutral request plumbing: context keys shared
// by the HTTP, websocket and MCP edges, and the Endpoint/Middleware pair that
// lets one operation be exposed on several transports.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a single operation independent of its transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}

// Logging logs every call of the wrapped endpoint with its duration, the
// transport it arrived on and the error if any.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}
