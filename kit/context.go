package kit

import "context"

type ctxKey int

const (
	sessionKey ctxKey = iota
	transportKey
	traceIDKey
)

// Session is who a request acts for, independent of how it authenticated.
type Session struct {
	ProjectID string
	UserName  string
	Role      string // "client" or "admin"
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session on ctx. ok is false when there is none or
// it is missing a project or a name.
func SessionFrom(ctx context.Context) (s Session, ok bool) {
	s, _ = ctx.Value(sessionKey).(Session)
	return s, s.ProjectID != "" && s.UserName != ""
}

// WithTransport records the edge a call arrived on: "http", "ws" or "mcp".
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to "http".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
