// Package routes is the storefront's route table.
package routes

import (
	"net/http"
	"time"

	"github.com/ourstore/storefront/app/controllers"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/ctx"
	"github.com/ourstore/storefront/pkg/idempotency"
	"github.com/ourstore/storefront/pkg/middleware"
	"github.com/ourstore/storefront/pkg/rbac"
	"github.com/ourstore/storefront/pkg/router"
)

// Controllers groups the handlers mounted under /api.
type Controllers struct {
	Auth     *controllers.AuthController
	Products *controllers.ProductController
	Reviews  *controllers.ReviewController
	Orders   *controllers.OrderController
	Account  *controllers.AccountController
	Admin    *controllers.AdminController
	GraphQL  http.Handler
}

// Guards carries what the route middlewares need.
type Guards struct {
	Principals     middleware.PrincipalResolver
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
}

func RegisterAPI(r *router.Router, c Controllers, g Guards) {
	authed := middleware.Authenticate(g.Principals)
	optional := middleware.OptionalAuthenticate(g.Principals)
	admin := rbac.HasRole(auth.RoleAdmin)

	api := r.Group("/api")

	a := api.Group("/auth")
	a.Post("/register", "auth.register", ctx.Wrap(c.Auth.Register))
	a.Post("/login", "auth.login", ctx.Wrap(c.Auth.Login))
	a.Post("/refresh", "auth.refresh", ctx.Wrap(c.Auth.Refresh))
	a.Get("/me", "auth.me", ctx.Wrap(c.Auth.Me), authed)

	products := api.Group("/products")
	products.Get("", "products.index", ctx.Wrap(c.Products.Index), optional)
	products.Get("/{id}", "products.show", ctx.Wrap(c.Products.Show), optional)
	products.Get("/{id}/reviews", "products.reviews", ctx.Wrap(c.Reviews.Index))
	products.Post("/reviews", "reviews.store", ctx.Wrap(c.Reviews.Store), authed)

	catalogAdmin := products.Group("", authed, admin)
	catalogAdmin.Post("", "products.store", ctx.Wrap(c.Products.Store))
	catalogAdmin.Patch("/{id}", "products.update", ctx.Wrap(c.Products.Update))
	catalogAdmin.Delete("/{id}", "products.destroy", ctx.Wrap(c.Products.Destroy))
	catalogAdmin.Post("/{id}/images", "products.images", ctx.Wrap(c.Products.UploadImage))

	orders := api.Group("/orders")
	orders.Post("", "orders.store", ctx.Wrap(c.Orders.Store),
		optional, idempotency.Middleware(g.Idempotency, g.IdempotencyTTL))
	orders.Get("", "orders.index", ctx.Wrap(c.Orders.Index), authed)
	orders.Get("/stats", "orders.stats", ctx.Wrap(c.Orders.Stats), authed, admin)
	orders.Get("/{id}", "orders.show", ctx.Wrap(c.Orders.Show), authed)
	orders.Get("/{id}/track", "orders.track", ctx.Wrap(c.Orders.Track), authed)
	orders.Patch("/{id}", "orders.update", ctx.Wrap(c.Orders.Update), authed, admin)
	orders.Delete("/{id}", "orders.cancel", ctx.Wrap(c.Orders.Destroy), authed)

	users := api.Group("/users", authed)
	users.Get("/addresses", "users.addresses", ctx.Wrap(c.Account.Addresses))
	users.Post("/addresses", "users.addresses.store", ctx.Wrap(c.Account.AddAddress))
	users.Patch("/addresses/{addressId}", "users.addresses.update", ctx.Wrap(c.Account.UpdateAddress))
	users.Delete("/addresses/{addressId}", "users.addresses.destroy", ctx.Wrap(c.Account.RemoveAddress))
	users.Get("/wishlist", "users.wishlist", ctx.Wrap(c.Account.Wishlist))
	users.Post("/wishlist/{productId}", "users.wishlist.store", ctx.Wrap(c.Account.AddToWishlist))
	users.Delete("/wishlist/{productId}", "users.wishlist.destroy", ctx.Wrap(c.Account.RemoveFromWishlist))

	adm := api.Group("/admin", authed, admin)
	adm.Get("/stats", "admin.stats", ctx.Wrap(c.Admin.Dashboard))
	adm.Get("/products/low-stock", "admin.low_stock", ctx.Wrap(c.Admin.LowStock))
	adm.Get("/orders/live", "admin.orders.live", ctx.Wrap(c.Admin.LiveOrders))

	if c.GraphQL != nil {
		r.Post("/graphql", "graphql", c.GraphQL.ServeHTTP, optional)
	}
}
