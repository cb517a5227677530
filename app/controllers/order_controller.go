package controllers

import (
	"time"

	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/ctx"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/sse"
)

// trackHeartbeat keeps idle tracking streams alive through proxies.
var trackHeartbeat = 25 * time.Second

type OrderController struct {
	orders  *services.OrderService
	stats   *services.StatsService
	tracker *sse.Broker
}

// NewOrderController wires the order endpoints. tracker carries order
// events keyed by order id; the kernel publishes into it.
func NewOrderController(orders *services.OrderService, stats *services.StatsService, tracker *sse.Broker) *OrderController {
	return &OrderController{orders: orders, stats: stats, tracker: tracker}
}

// Store places an order for the caller or for a guest.
func (oc *OrderController) Store(c *ctx.Context) {
	var in services.PlaceOrderInput
	if !c.BindJSON(&in) {
		return
	}
	order, err := oc.orders.Place(c.Context(), c.OptionalPrincipal(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(order)
}

func (oc *OrderController) Index(c *ctx.Context) {
	list, page, err := oc.orders.List(c.Context(), c.MustPrincipal(), services.OrderListQuery{
		Status:        c.Query("status"),
		PaymentStatus: c.Query("paymentStatus"),
		Page:          c.Page(),
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Paginated(list, page)
}

func (oc *OrderController) Show(c *ctx.Context) {
	order, err := oc.orders.Get(c.Context(), c.MustPrincipal(), c.Param("id"))
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(order)
}

func (oc *OrderController) Update(c *ctx.Context) {
	var in services.UpdateOrderInput
	if !c.BindJSON(&in) {
		return
	}
	order, err := oc.orders.Update(c.Context(), c.MustPrincipal(), c.Param("id"), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Order updated", order)
}

// Destroy cancels the order; orders are never deleted.
func (oc *OrderController) Destroy(c *ctx.Context) {
	order, err := oc.orders.Cancel(c.Context(), c.MustPrincipal(), c.Param("id"))
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Order cancelled", order)
}

func (oc *OrderController) Stats(c *ctx.Context) {
	st, err := oc.stats.Orders(c.Context())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(st)
}

// Track streams the order's status changes to its owner (or an admin)
// as Server-Sent Events, starting with the current snapshot.
func (oc *OrderController) Track(c *ctx.Context) {
	order, err := oc.orders.Get(c.Context(), c.MustPrincipal(), c.Param("id"))
	if err != nil {
		c.Fail(err)
		return
	}

	sub, cancel := oc.tracker.Subscribe(order.ID.Hex())
	defer cancel()

	stream, err := sse.New(c.W, c.R)
	if err != nil {
		c.Fail(err)
		return
	}
	if err := stream.Send("order", order); err != nil {
		return
	}

	log := logger.WithCtx(c.Context())
	tick := time.NewTicker(trackHeartbeat)
	defer tick.Stop()
	for {
		select {
		case <-stream.Done():
			return
		case <-tick.C:
			if err := stream.Comment("ping"); err != nil {
				return
			}
		case msg := <-sub:
			if err := stream.Send(msg.Event, msg.Data); err != nil {
				log.Debug("order track: client gone", "order", order.OrderNumber, "error", err)
				return
			}
		}
	}
}
