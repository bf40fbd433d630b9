package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/calendarhub/libs/auth"
)

const TenantIDHeader = "X-Tenant-Id"

// TenantIDFromContext returns the tenant authenticated by RequireTenant.
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTenantID).(string)
	return v
}

// ContextWithTenantID is used by non-HTTP entry points (and tests) that resolve the tenant themselves.
func ContextWithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

// RequireTenant verifies an HS256 bearer token and pins the request to the token's tenant.
// Any client-supplied X-Tenant-Id header is overwritten.
func RequireTenant(jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			r.Header.Set(TenantIDHeader, claims.TenantID)
			ctx := ContextWithTenantID(r.Context(), claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
