package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

// Identity headers set by the authenticating gateway in front of the service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Role   notifications.Role
}

// IsAdmin reports whether the caller may use admin endpoints.
func (p Principal) IsAdmin() bool {
	return p.Role == notifications.RoleAdmin
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func (h *handlers) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderUserID)), 10, 64)
		if err != nil || id <= 0 {
			h.fail(w, r, ErrUnauthorized)
			return
		}
		role := notifications.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
		if role != notifications.RoleAdmin {
			role = notifications.RolePatient
		}
		ctx := WithPrincipal(r.Context(), Principal{UserID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || !p.IsAdmin() {
			h.fail(w, r, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}
