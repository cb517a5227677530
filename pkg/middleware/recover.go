package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/response"
)

// Recovery turns a handler panic into a logged stack trace and a 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.WithCtx(r.Context()).Error("panic recovered",
					"error", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				response.Error(w, apperr.KindInternal, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
