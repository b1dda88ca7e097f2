package transport

import (
	"log/slog"
	"net/http"
)

// Recovery returns middleware that catches panics in the handler, logs
// them with the request ID, and answers with the opaque 500. The server
// continues to accept new requests after a panic is recovered.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.LogAttrs(r.Context(), slog.LevelError, "handler panicked",
						slog.String("request_id", RequestIDFromContext(r.Context())),
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
					)
					WriteServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
