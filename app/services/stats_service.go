package services

import (
	"context"
	"time"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/cache"
	"github.com/ourstore/storefront/pkg/paging"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardCacheKey = "storefront:admin:dashboard"
	dashboardCacheTTL = 30 * time.Second
	revenueWindowDays = 30
	lowStockThreshold = 10
	dashboardListSize = 5
)

// Dashboard is the admin overview.
type Dashboard struct {
	TotalOrders  int64                       `json:"totalOrders"`
	TotalRevenue float64                     `json:"totalRevenue"`
	ByStatus     []repositories.StatusBucket `json:"byStatus"`
	DailyRevenue []repositories.DailyRevenue `json:"dailyRevenue"`
	RecentOrders []models.Order              `json:"recentOrders"`
	ActiveUsers  int64                       `json:"activeUsers"`
	ProductCount int64                       `json:"productCount"`
	LowStock     []models.Product            `json:"lowStock"`
	GeneratedAt  time.Time                   `json:"generatedAt"`
}

// OrderStats is the per-status breakdown behind the orders admin screen.
// Its revenue sums every status, cancelled included.
type OrderStats struct {
	ByStatus     []repositories.StatusBucket `json:"byStatus"`
	TotalOrders  int64                       `json:"totalOrders"`
	TotalRevenue float64                     `json:"totalRevenue"`
}

type StatsService struct {
	deps *Deps
}

func NewStatsService(deps *Deps) *StatsService {
	return &StatsService{deps: deps}
}

// Dashboard gathers the overview concurrently and caches it briefly.
// Revenue excludes cancelled orders.
func (s *StatsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	return cache.Remember(ctx, dashboardCacheKey, dashboardCacheTTL, s.build)
}

func (s *StatsService) build(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{GeneratedAt: s.deps.now()}
	since := d.GeneratedAt.AddDate(0, 0, -revenueWindowDays)
	threshold := lowStockThreshold

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.ByStatus, err = s.deps.Orders.StatusBreakdown(gctx)
		return storeErr(err, "Order")
	})
	g.Go(func() (err error) {
		d.DailyRevenue, err = s.deps.Orders.DailyRevenueSince(gctx, since)
		return storeErr(err, "Order")
	})
	g.Go(func() (err error) {
		d.RecentOrders, err = s.deps.Orders.Recent(gctx, dashboardListSize)
		return storeErr(err, "Order")
	})
	g.Go(func() (err error) {
		d.ActiveUsers, err = s.deps.Users.CountActive(gctx)
		return storeErr(err, "User")
	})
	g.Go(func() (err error) {
		d.ProductCount, err = s.deps.Products.Count(gctx, repositories.ProductFilter{})
		return storeErr(err, "Product")
	})
	g.Go(func() (err error) {
		d.LowStock, _, err = s.deps.Products.List(gctx, repositories.ProductFilter{StockBelow: &threshold, SortByStock: true}, paging.New(1, dashboardListSize))
		return storeErr(err, "Product")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, b := range d.ByStatus {
		d.TotalOrders += b.Count
		if b.Status != models.OrderCancelled {
			d.TotalRevenue += b.Revenue
		}
	}
	d.TotalRevenue = fromCents(ToCents(d.TotalRevenue))
	return d, nil
}

// Orders returns counts and revenue per fulfillment status.
func (s *StatsService) Orders(ctx context.Context) (*OrderStats, error) {
	buckets, err := s.deps.Orders.StatusBreakdown(ctx)
	if err != nil {
		return nil, storeErr(err, "Order")
	}
	st := &OrderStats{ByStatus: buckets}
	for _, b := range buckets {
		st.TotalOrders += b.Count
		st.TotalRevenue += b.Revenue
	}
	st.TotalRevenue = fromCents(ToCents(st.TotalRevenue))
	return st, nil
}
