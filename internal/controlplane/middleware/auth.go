// Package middleware contains HTTP middleware for the control plane.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/boringdata/boring-ui/internal/auth"
	"github.com/boringdata/boring-ui/internal/store"

	"github.com/google/uuid"
)

// tenantKey is the context key for the authenticated tenant.
type tenantKey struct{}

// AuthMiddleware validates the Bearer API key and attaches the tenant to the
// request context. Every workspace operation must be scoped by tenant.
func AuthMiddleware(s store.TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			// Only the hash ever touches the database.
			hash := auth.HashKey(parts[1])

			tenant, err := s.GetTenantByAPIKeyHash(r.Context(), hash)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if tenant == nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := NewContextWithTenant(r.Context(), tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContextWithTenant returns a context carrying the tenant. Used by the
// auth middleware and by tests that bypass it.
func NewContextWithTenant(ctx context.Context, tenant *store.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext extracts the authenticated tenant from the context.
func TenantFromContext(ctx context.Context) (*store.Tenant, bool) {
	if v := ctx.Value(tenantKey{}); v != nil {
		return v.(*store.Tenant), true
	}
	return nil, false
}

// TenantIDFromContext extracts the authenticated tenant's ID from the context.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if tenant, ok := TenantFromContext(ctx); ok {
		return tenant.ID, true
	}
	return uuid.Nil, false
}
