package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/baharkarakas/travel-credits/internal/api/httpx"
	"github.com/baharkarakas/travel-credits/internal/auth"
)

type ctxKey string

const ctxClaimsKey ctxKey = "claims"

// ClaimsFrom returns the verified token claims stored by RequireRole.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ctxClaimsKey).(*auth.Claims)
	return c, ok
}

// RequireRole admits requests bearing a valid access token with the given role.
func RequireRole(tm *auth.TokenManager, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
				return
			}
			claims, err := tm.ParseAccess(strings.TrimSpace(ah[7:]))
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
				return
			}
			if claims.Role != role {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "insufficient role", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ctxClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
