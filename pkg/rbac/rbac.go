// Package rbac provides role-based access control middleware.
package rbac

import (
	"net/http"

	"github.com/ourstore/storefront/pkg/middleware"
	"github.com/ourstore/storefront/pkg/response"
)

// HasRole allows only users holding one of roles. Mount it after
// middleware.Authenticate; an anonymous request gets 401, a wrong role 403.
func HasRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := middleware.RoleFromCtx(r)
			if !ok {
				response.Unauthorized(w)
				return
			}
			if !allowed[role] {
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
