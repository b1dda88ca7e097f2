package transport

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID returns middleware that assigns a unique request ID to each
// request. A client-supplied X-Request-Id header is honored; otherwise a
// new ID is generated. The ID is stored in the request context (retrieve
// it with RequestIDFromContext) and echoed on the response so clients and
// logs can be correlated.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}
