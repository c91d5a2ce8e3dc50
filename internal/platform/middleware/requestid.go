// Package middleware holds the HTTP middleware chain shared by all routes.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"veritax/pkg/requestcontext"
)

// RequestIDHeader carries the correlation ID between services.
const RequestIDHeader = "X-Request-Id"

// RequestID attaches a correlation ID to every request, reusing the caller's
// header when present and echoing it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
