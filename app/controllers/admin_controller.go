package controllers

import (
	"strconv"

	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/ctx"
	"github.com/ourstore/storefront/pkg/ws"
)

const defaultLowStockThreshold = 10

type AdminController struct {
	stats   *services.StatsService
	catalog *services.CatalogService
	live    *ws.Hub
}

func NewAdminController(stats *services.StatsService, catalog *services.CatalogService, live *ws.Hub) *AdminController {
	return &AdminController{stats: stats, catalog: catalog, live: live}
}

func (ac *AdminController) Dashboard(c *ctx.Context) {
	d, err := ac.stats.Dashboard(c.Context())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(d)
}

func (ac *AdminController) LowStock(c *ctx.Context) {
	threshold := defaultLowStockThreshold
	if raw := c.Query("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.Fail(apperr.ValidationFields(map[string]string{"threshold": "The threshold must be an integer"}))
			return
		}
		threshold = n
	}
	list, page, err := ac.catalog.LowStock(c.Context(), threshold, c.Page())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Paginated(list, page)
}

// LiveOrders upgrades to a WebSocket that receives every order event.
func (ac *AdminController) LiveOrders(c *ctx.Context) {
	ac.live.ServeHTTP(c.W, c.R)
}
