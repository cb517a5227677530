package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/response"
)

// PrincipalResolver loads the current state of a token's user. The stored
// role wins over the role claim so demotions apply immediately.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (auth.Principal, error)
}

var errNoToken = errors.New("missing bearer token")

func bearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errNoToken
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errNoToken
	}
	return strings.TrimSpace(token), nil
}

func authenticate(r *http.Request, resolver PrincipalResolver, token string) (auth.Principal, error) {
	claims, err := auth.ValidateToken(token)
	if err != nil {
		return auth.Principal{}, apperr.Unauthorized("Invalid token")
	}
	p, err := resolver.ResolvePrincipal(r.Context(), claims.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return auth.Principal{}, err
		}
		logger.WithCtx(r.Context()).Debug("token user rejected", "user_id", claims.UserID, "error", err)
		return auth.Principal{}, apperr.Unauthorized("Invalid token")
	}
	return p, nil
}

// Authenticate requires a valid bearer token for an active user.
func Authenticate(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearer(r)
			if err != nil {
				response.Unauthorized(w)
				return
			}
			p, err := authenticate(r, resolver, token)
			if err != nil {
				response.Fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuthenticate lets anonymous requests through but still rejects a
// token that is present and invalid.
func OptionalAuthenticate(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearer(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			p, err := authenticate(r, resolver, token)
			if err != nil {
				response.Fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// UserIDFromCtx returns the authenticated user's id.
func UserIDFromCtx(r *http.Request) (string, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	return p.UserID, ok
}

// RoleFromCtx returns the authenticated user's role.
func RoleFromCtx(r *http.Request) (string, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	return p.Role, ok
}
