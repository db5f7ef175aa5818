package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
)

// TraceMiddleware adds a trace ID to the request context. Apply early in
// the chain so every downstream handler and log line can reference it.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		traceID := shared.GetTraceID(ctx)

		slog.Debug("request started",
			slog.String("trace_id", traceID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
