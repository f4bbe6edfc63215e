package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/pinup/horosafe"
	"github.com/hazyhaar/pinup/idgen"
	"github.com/hazyhaar/pinup/kit"
)

var newTraceID = idgen.NanoID(8)

// TraceID tags each request with a trace id, echoed in X-Trace-ID, and
// puts a logger carrying it on the context. An X-Request-ID set by a proxy
// is reused when it is a plain identifier of at most 32 bytes.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if len(id) > 32 || horosafe.ValidateIdentifier(id) != nil {
			id = newTraceID()
		}
		w.Header().Set("X-Trace-ID", id)

		logger := slog.Default().With(
			"trace_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", ExtractIP(r),
		)
		ctx := kit.WithTraceID(r.Context(), id)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the per-request logger, or slog.Default outside a
// traced request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
