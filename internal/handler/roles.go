package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/xenking/odin-pos/internal/domain/auth"
)

// Identity headers sent by the admin dashboard and the POS terminal.
const (
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

type principalKey struct{}

// PrincipalFromContext returns the principal attached by RoleAuth.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func isPublic(r *http.Request, path string) bool {
	switch {
	case r.Method == http.MethodOptions:
		return true
	case strings.HasPrefix(path, "/api/health"):
		return true
	case path == "/api/auth/login", path == "/api/auth/register":
		return true
	}
	return false
}

// RoleAuth authorizes requests from the X-User-Role header and stores the
// caller as an auth.Principal in the request context.
//
//	/api/admin/*      Admin
//	/api/reports/*    Admin, Supervisor
//	/api/sales*       any known role
//	/api/products*    GET for anyone, writes for Admin and Supervisor
func RoleAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.ToLower(r.URL.Path)
		if isPublic(r, path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimSpace(r.Header.Get(HeaderUserRole))
		if raw == "" {
			writeText(w, http.StatusUnauthorized, "Missing X-User-Role")
			return
		}
		role := auth.Role(raw)

		var allowed bool
		switch {
		case strings.HasPrefix(path, "/api/admin"):
			allowed = role == auth.RoleAdmin
		case strings.HasPrefix(path, "/api/reports"):
			allowed = role.CanViewReports()
		case strings.HasPrefix(path, "/api/sales"):
			allowed = role.CanSell()
		case strings.HasPrefix(path, "/api/products"):
			allowed = r.Method == http.MethodGet || role.CanManageCatalog()
		default:
			allowed = true
		}
		if !allowed {
			writeText(w, http.StatusForbidden, "Forbidden")
			return
		}

		p := auth.Principal{
			Role:  role,
			Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}
