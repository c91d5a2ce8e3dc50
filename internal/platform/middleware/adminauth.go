package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "veritax/pkg/domain-errors"
	"veritax/pkg/platform/httputil"
	"veritax/pkg/requestcontext"
)

// RequireAdmin guards mutating admin endpoints with an HS256 bearer token.
// The token must carry role=admin. With no secret configured the endpoints
// are disabled rather than left open.
func RequireAdmin(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if secret == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin endpoints disabled: no admin secret configured"))
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims := jwt.MapClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(ctx, "admin auth rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			if role, _ := claims["role"].(string); role != "admin" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin role required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
