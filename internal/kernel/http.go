// Package kernel assembles the storefront's HTTP handler: stores become
// services, services become controllers, and controllers are mounted
// behind the global middleware stack.
package kernel

import (
	"context"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ourstore/storefront/app/controllers"
	appgraphql "github.com/ourstore/storefront/app/graphql"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/app/routes"
	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/event"
	gql "github.com/ourstore/storefront/pkg/graphql"
	"github.com/ourstore/storefront/pkg/idempotency"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
	"github.com/ourstore/storefront/pkg/middleware"
	"github.com/ourstore/storefront/pkg/reqid"
	"github.com/ourstore/storefront/pkg/response"
	"github.com/ourstore/storefront/pkg/router"
	"github.com/ourstore/storefront/pkg/sse"
	"github.com/ourstore/storefront/pkg/storage"
	"github.com/ourstore/storefront/pkg/ws"
)

// Stores are the persistence ports the services run on.
type Stores struct {
	Products services.ProductStore
	Orders   services.OrderStore
	Reviews  services.ReviewStore
	Users    services.UserStore
}

// MongoStores backs every port with its collection in db.
func MongoStores(db *mongo.Database) Stores {
	return Stores{
		Products: repositories.NewProductRepository(db),
		Orders:   repositories.NewOrderRepository(db),
		Reviews:  repositories.NewReviewRepository(db),
		Users:    repositories.NewUserRepository(db),
	}
}

type Options struct {
	Stores   Stores
	Notifier services.Notifier
	// Events defaults to a private dispatcher.
	Events      *event.Dispatcher
	Idempotency idempotency.Store
	// Disk is nil when image uploads are not configured.
	Disk storage.Disk
	// Health backs /healthz; nil reports healthy.
	Health    func(ctx context.Context) error
	Pricing   *services.Pricing
	RateLimit int
	Clock     func() time.Time
}

type HTTPKernel struct {
	router *router.Router
	hub    *ws.Hub
	events *event.Dispatcher
}

func NewHTTPKernel(opts Options) (*HTTPKernel, error) {
	if opts.Events == nil {
		opts.Events = event.NewDispatcher(4)
	}
	if opts.Idempotency == nil {
		opts.Idempotency = idempotency.NewMemoryStore()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = config.RateLimitPerMinute()
	}
	pricing := services.DefaultPricing()
	if opts.Pricing != nil {
		pricing = *opts.Pricing
	}

	deps := &services.Deps{
		Products: opts.Stores.Products,
		Orders:   opts.Stores.Orders,
		Reviews:  opts.Stores.Reviews,
		Users:    opts.Stores.Users,
		Notifier: opts.Notifier,
		Events:   opts.Events,
		Pricing:  pricing,
		Clock:    opts.Clock,
	}
	authSvc := services.NewAuthService(deps.Users)
	catalog := services.NewCatalogService(deps.Products, opts.Disk)
	orders := services.NewOrderService(deps)
	reviews := services.NewReviewService(deps)
	stats := services.NewStatsService(deps)
	account := services.NewAccountService(deps.Users, deps.Products)

	schema, err := appgraphql.NewCatalogSchema(catalog, reviews)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub()
	tracker := sse.NewBroker(8)
	opts.Events.Listen("*", func(payload interface{}) {
		if err := hub.BroadcastJSON(payload); err != nil {
			logger.Warn("live feed: encode event", "error", err)
		}
		if ev, ok := payload.(services.OrderEvent); ok && ev.Order != nil {
			tracker.Publish(ev.Order.ID.Hex(), sse.Message{Event: ev.Event, Data: ev})
		}
	})

	r := router.New()

	// Outermost first: metrics see total latency, recovery guards
	// everything below it, and the request id exists before anything logs.
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions()))
	r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))

	r.HandleFunc("/metrics", metrics.Handler())
	r.HandleFunc("/healthz", healthz(opts.Health))

	routes.RegisterAPI(r, routes.Controllers{
		Auth:     controllers.NewAuthController(authSvc),
		Products: controllers.NewProductController(catalog),
		Reviews:  controllers.NewReviewController(reviews),
		Orders:   controllers.NewOrderController(orders, stats, tracker),
		Account:  controllers.NewAccountController(account),
		Admin:    controllers.NewAdminController(stats, catalog, hub),
		GraphQL:  gql.Handler(schema),
	}, routes.Guards{
		Principals:     authSvc,
		Idempotency:    opts.Idempotency,
		IdempotencyTTL: config.IdempotencyTTL(),
	})

	return &HTTPKernel{router: r, hub: hub, events: opts.Events}, nil
}

func (k *HTTPKernel) Handler() http.Handler { return k.router.Handler() }

func (k *HTTPKernel) Routes() []router.RouteInfo { return k.router.Routes() }

// Hub is the admin live feed; its Run loop is owned by the server.
func (k *HTTPKernel) Hub() *ws.Hub { return k.hub }

func (k *HTTPKernel) Events() *event.Dispatcher { return k.events }

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.WithCtx(r.Context()).Warn("health check failed", "error", err)
				response.Error(w, apperr.KindUnavailable, "Service unavailable")
				return
			}
		}
		response.Success(w, map[string]string{"status": "ok"})
	}
}
