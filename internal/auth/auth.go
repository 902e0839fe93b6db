// Package auth resolves the caller identity from request headers.
//
// The registry trusts the client: X-User names the caller and X-Role selects
// USER or ADMIN. A missing or blank user falls back to domain.DemoIdentity.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/httputil"
)

// Request headers carrying the identity.
const (
	HeaderUser = "X-User"
	HeaderRole = "X-Role"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or the demo identity.
func FromContext(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(identityKey{}).(domain.Identity); ok {
		return id
	}
	return domain.DemoIdentity
}

// FromRequest derives the identity from the request headers.
func FromRequest(r *http.Request) domain.Identity {
	id := domain.DemoIdentity
	if user := strings.TrimSpace(r.Header.Get(HeaderUser)); user != "" {
		id.Username = domain.TruncateUsername(user)
	}
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderRole)), string(domain.RoleAdmin)) {
		id.Role = domain.RoleAdmin
	}
	return id
}

// Middleware stores the request identity in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithIdentity(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HandleWhoAmI returns the current identity as JSON.
func HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, FromContext(r.Context()))
}
