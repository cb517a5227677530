// Package ctx provides the request context handed to controllers.
//
// Controllers take a single *Context instead of (w, r):
//
//	func (oc *OrderController) Show(c *ctx.Context) {
//	    order, err := oc.orders.Get(c.Context(), c.MustPrincipal(), c.Param("id"))
//	    if err != nil {
//	        c.Fail(err)
//	        return
//	    }
//	    c.Success(order)
//	}
//
// and are registered through ctx.Wrap.
package ctx

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/bind"
	"github.com/ourstore/storefront/pkg/metrics"
	"github.com/ourstore/storefront/pkg/paging"
	"github.com/ourstore/storefront/pkg/response"
)

// HandlerFunc is the context-aware handler signature.
type HandlerFunc func(c *Context)

// Wrap converts a HandlerFunc to a standard http.HandlerFunc.
func Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := acquire(w, r)
		defer release(c)
		h(c)
	}
}

// ─── Context ──────────────────────────────────────────────────────────────────

type Context struct {
	W http.ResponseWriter
	R *http.Request
}

var pool = sync.Pool{
	New: func() any { return &Context{} },
}

func acquire(w http.ResponseWriter, r *http.Request) *Context {
	c := pool.Get().(*Context)
	c.W = w
	c.R = r
	return c
}

func release(c *Context) {
	c.W = nil
	c.R = nil
	pool.Put(c)
}

// ─── Request helpers ──────────────────────────────────────────────────────────

// Param returns a URL path parameter.
func (c *Context) Param(key string) string {
	return chi.URLParam(c.R, key)
}

// Query returns a query-string value. Returns "" if not present.
func (c *Context) Query(key string) string {
	return c.R.URL.Query().Get(key)
}

// QueryBool parses a boolean query value; absent or malformed yields nil.
func (c *Context) QueryBool(key string) *bool {
	b, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return nil
	}
	return &b
}

// Page reads ?page= and ?limit=.
func (c *Context) Page() paging.Params {
	return paging.FromRequest(c.R)
}

// Header returns the value of a request header.
func (c *Context) Header(key string) string {
	return c.R.Header.Get(key)
}

// Context returns the underlying request context.
func (c *Context) Context() context.Context { return c.R.Context() }

// Principal returns the authenticated caller, if any.
func (c *Context) Principal() (auth.Principal, bool) {
	return auth.PrincipalFrom(c.R.Context())
}

// OptionalPrincipal returns nil for anonymous requests.
func (c *Context) OptionalPrincipal() *auth.Principal {
	p, ok := c.Principal()
	if !ok {
		return nil
	}
	return &p
}

// MustPrincipal is for routes mounted behind middleware.Authenticate.
func (c *Context) MustPrincipal() auth.Principal {
	p, ok := c.Principal()
	if !ok {
		panic("ctx: MustPrincipal on an unauthenticated route")
	}
	return p
}

// ─── Binding ──────────────────────────────────────────────────────────────────

// BindJSON decodes and validates the body into dest. On failure the error
// response is already written and false is returned.
//
//	var in PlaceOrderRequest
//	if !c.BindJSON(&in) {
//	    return
//	}
func (c *Context) BindJSON(dest any) bool {
	if err := bind.JSON(c.R, dest); err != nil {
		c.Fail(err)
		return false
	}
	return true
}

// ─── Response helpers ─────────────────────────────────────────────────────────

// Success sends a 200 JSON envelope.
func (c *Context) Success(data any) {
	response.Success(c.W, data)
}

// Created sends a 201 JSON envelope.
func (c *Context) Created(data any) {
	response.Created(c.W, data)
}

// Message sends a 200 envelope with a message and optional data.
func (c *Context) Message(message string, data any) {
	response.Message(c.W, message, data)
}

// Paginated sends a page of items with its pagination block.
func (c *Context) Paginated(items any, p paging.Pagination) {
	response.Paginated(c.W, items, p)
}

// Fail renders err through the error taxonomy.
func (c *Context) Fail(err error) {
	kind := apperr.KindOf(err)
	metrics.ErrorsByKind.WithLabelValues(string(kind)).Inc()
	response.Fail(c.W, c.R, err)
}
