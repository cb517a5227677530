package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
)

// UpdateOrderInput is an admin's partial order update.
type UpdateOrderInput struct {
	OrderStatus    *string `json:"orderStatus"    validate:"nullable,in=Pending,Processing,Shipped,Delivered,Cancelled"`
	PaymentStatus  *string `json:"paymentStatus"  validate:"nullable,in=Pending,Completed,Failed,Refunded"`
	TrackingNumber *string `json:"trackingNumber" validate:"nullable,max=100"`
}

func (in UpdateOrderInput) patch() (repositories.OrderPatch, error) {
	var p repositories.OrderPatch
	fields := map[string]string{}
	if in.OrderStatus != nil {
		st := models.OrderStatus(*in.OrderStatus)
		if st.Valid() {
			p.OrderStatus = &st
		} else {
			fields["orderStatus"] = "Unknown order status " + *in.OrderStatus
		}
	}
	if in.PaymentStatus != nil {
		ps := models.PaymentStatus(*in.PaymentStatus)
		if ps.Valid() {
			p.PaymentStatus = &ps
		} else {
			fields["paymentStatus"] = "Unknown payment status " + *in.PaymentStatus
		}
	}
	if in.TrackingNumber != nil {
		tn := strings.TrimSpace(*in.TrackingNumber)
		p.TrackingNumber = &tn
	}
	if len(fields) > 0 {
		return p, apperr.ValidationFields(fields)
	}
	if p.Empty() {
		return p, apperr.Validation("Nothing to update")
	}
	return p, nil
}

// Update applies an admin's change to an order. Moving an order to
// Cancelled goes through the cancellation path so stock comes back once.
func (s *OrderService) Update(ctx context.Context, caller auth.Principal, id string, in UpdateOrderInput) (*models.Order, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("Admin access required")
	}
	patch, err := in.patch()
	if err != nil {
		return nil, err
	}
	oid, err := parseID(id, "Order")
	if err != nil {
		return nil, err
	}
	current, err := s.deps.Orders.FindByID(ctx, oid)
	if err != nil {
		return nil, storeErr(err, "Order")
	}

	if patch.OrderStatus != nil && *patch.OrderStatus == models.OrderCancelled {
		cancelled, err := s.cancel(ctx, current)
		if err != nil {
			return nil, err
		}
		patch.OrderStatus = nil
		if patch.Empty() {
			return cancelled, nil
		}
		updated, err := s.deps.Orders.UpdateIf(ctx, oid, nil, patch)
		if err != nil {
			return nil, storeErr(err, "Order")
		}
		return updated, nil
	}

	if patch.OrderStatus != nil && current.OrderStatus == models.OrderCancelled && *patch.OrderStatus != models.OrderCancelled {
		return nil, apperr.InvalidState("A cancelled order cannot be moved to %s", *patch.OrderStatus)
	}

	// Conditioned on the status that was read, so a concurrent
	// cancellation is never silently overwritten.
	updated, err := s.deps.Orders.UpdateIf(ctx, oid, []models.OrderStatus{current.OrderStatus}, patch)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Conflict("Order %s changed concurrently, please retry", current.OrderNumber)
	}
	if err != nil {
		return nil, storeErr(err, "Order")
	}

	if updated.OrderStatus != current.OrderStatus {
		metrics.OrderTransitions.WithLabelValues(string(current.OrderStatus), string(updated.OrderStatus)).Inc()
		logger.WithCtx(ctx).Info("order status changed",
			"order_number", updated.OrderNumber,
			"from", current.OrderStatus,
			"to", updated.OrderStatus,
		)
		s.notifyStatus(ctx, updated)
		s.deps.publish(EventOrderStatusChanged, OrderEvent{From: string(current.OrderStatus), Order: updated})
	}
	return updated, nil
}

// Cancel cancels an order on behalf of its owner or an admin. Cancelling a
// cancelled order is a no-op; shipped and delivered orders are final.
func (s *OrderService) Cancel(ctx context.Context, caller auth.Principal, id string) (*models.Order, error) {
	oid, err := parseID(id, "Order")
	if err != nil {
		return nil, err
	}
	o, err := s.deps.Orders.FindByID(ctx, oid)
	if err != nil {
		return nil, storeErr(err, "Order")
	}
	if !visibleTo(o, caller) {
		return nil, apperr.NotFound("Order not found")
	}
	return s.cancel(ctx, o)
}

func (s *OrderService) cancel(ctx context.Context, o *models.Order) (*models.Order, error) {
	switch {
	case o.OrderStatus == models.OrderCancelled:
		return o, nil
	case !o.OrderStatus.Cancellable():
		return nil, apperr.InvalidState("Cannot cancel an order that is %s", o.OrderStatus)
	}

	to := models.OrderCancelled
	cancelled, err := s.deps.Orders.UpdateIf(ctx, o.ID,
		[]models.OrderStatus{models.OrderPending, models.OrderProcessing},
		repositories.OrderPatch{OrderStatus: &to})
	if errors.Is(err, repositories.ErrNotFound) {
		// Lost a race; the winner decides what the caller sees.
		latest, rerr := s.deps.Orders.FindByID(ctx, o.ID)
		if rerr != nil {
			return nil, storeErr(rerr, "Order")
		}
		if latest.OrderStatus == models.OrderCancelled {
			return latest, nil
		}
		return nil, apperr.InvalidState("Cannot cancel an order that is %s", latest.OrderStatus)
	}
	if err != nil {
		return nil, storeErr(err, "Order")
	}

	// Only the request whose conditional update matched gets here, so
	// stock is restored exactly once per order.
	bg := context.WithoutCancel(ctx)
	for pid, qty := range o.Quantities() {
		if err := s.deps.Products.RestoreStock(bg, pid, qty); err != nil {
			logger.WithCtx(ctx).Error("stock restore failed",
				"order_number", o.OrderNumber, "product_id", pid.Hex(), "quantity", qty, "error", err)
		}
	}

	metrics.OrderTransitions.WithLabelValues(string(o.OrderStatus), string(models.OrderCancelled)).Inc()
	logger.WithCtx(ctx).Info("order cancelled", "order_number", cancelled.OrderNumber, "from", o.OrderStatus)
	s.notifyStatus(ctx, cancelled)
	s.deps.publish(EventOrderCancelled, OrderEvent{From: string(o.OrderStatus), Order: cancelled})
	return cancelled, nil
}
