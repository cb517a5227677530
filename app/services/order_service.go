package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxOrderNumberAttempts bounds retries on an order-number collision.
const maxOrderNumberAttempts = 3

// OrderLine is one requested line of a checkout.
type OrderLine struct {
	ProductID     string                `json:"productId"     validate:"required,objectid"`
	Quantity      int                   `json:"quantity"      validate:"required,integer,gte=1"`
	Customization *models.Customization `json:"customization"`
}

// PlaceOrderInput is the checkout request.
type PlaceOrderInput struct {
	Items           []OrderLine            `json:"items"           validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod"   validate:"required,in=COD,Online"`
	GuestInfo       *models.GuestInfo      `json:"guestInfo"`
	IsGuest         bool                   `json:"isGuest"`
	Notes           string                 `json:"notes"           validate:"nullable,max=1000"`
}

// OrderListQuery narrows an order listing.
type OrderListQuery struct {
	Status        string
	PaymentStatus string
	Page          paging.Params
}

type OrderService struct {
	deps *Deps
}

func NewOrderService(deps *Deps) *OrderService {
	return &OrderService{deps: deps}
}

// reservation is stock taken from one product during a placement.
type reservation struct {
	productID primitive.ObjectID
	qty       int
}

func validatePlacement(in PlaceOrderInput) error {
	fields := map[string]string{}
	if len(in.Items) == 0 {
		fields["items"] = "The order must contain at least one item"
	}
	for i, line := range in.Items {
		if line.Quantity < 1 {
			fields["items."+strconv.Itoa(i)+".quantity"] = "The quantity must be at least 1"
		}
	}
	if !in.PaymentMethod.Valid() {
		fields["paymentMethod"] = "The payment method must be one of: COD, Online"
	}
	a := in.ShippingAddress
	for name, v := range map[string]string{
		"shippingAddress.fullName":     a.FullName,
		"shippingAddress.phone":        a.Phone,
		"shippingAddress.addressLine1": a.AddressLine1,
		"shippingAddress.city":         a.City,
		"shippingAddress.dzongkhag":    a.Dzongkhag,
	} {
		if strings.TrimSpace(v) == "" {
			fields[name] = "The " + name + " field is required"
		}
	}
	if in.IsGuest {
		if in.GuestInfo == nil || strings.TrimSpace(in.GuestInfo.FullName) == "" {
			fields["guestInfo.fullName"] = "The guestInfo.fullName field is required"
		}
		if in.GuestInfo == nil || strings.TrimSpace(in.GuestInfo.Email) == "" {
			fields["guestInfo.email"] = "The guestInfo.email field is required"
		}
	}
	if len(fields) > 0 {
		return apperr.ValidationFields(fields)
	}
	return nil
}

// Place validates a checkout, reserves stock line by line and records the
// order. Either every line's stock is taken and the order exists, or no
// stock remains taken.
func (s *OrderService) Place(ctx context.Context, caller *auth.Principal, in PlaceOrderInput) (*models.Order, error) {
	if caller == nil && !in.IsGuest {
		return nil, apperr.Unauthorized("Authentication required")
	}
	if err := validatePlacement(in); err != nil {
		return nil, err
	}

	// Resolve every product first so nothing is reserved for a request
	// that can never succeed.
	ids := make([]primitive.ObjectID, 0, len(in.Items))
	wanted := map[primitive.ObjectID]int{}
	for _, line := range in.Items {
		id, err := parseID(line.ProductID, "Product "+line.ProductID)
		if err != nil {
			return nil, err
		}
		if _, seen := wanted[id]; !seen {
			ids = append(ids, id)
		}
		wanted[id] += line.Quantity
	}

	products, err := s.deps.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "Product")
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	var subtotal int64
	for _, line := range in.Items {
		id, _ := primitive.ObjectIDFromHex(line.ProductID)
		p, ok := products[id]
		if !ok || !p.IsActive() {
			return nil, apperr.NotFound("Product %s not found", line.ProductID)
		}
		if p.Stock < wanted[id] {
			return nil, apperr.InsufficientStock("Insufficient stock for %s", p.Title)
		}
		price := p.UnitPrice()
		subtotal += LineCents(price, line.Quantity)
		items = append(items, models.OrderItem{
			ProductID:     id,
			Title:         p.Title,
			Price:         price,
			Quantity:      line.Quantity,
			Customization: line.Customization,
			Image:         p.FirstImage(),
		})
	}

	reserved, err := s.reserve(ctx, ids, wanted, products)
	if err != nil {
		return nil, err
	}

	totals := s.deps.Pricing.Compute(subtotal)
	order := &models.Order{
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		OrderStatus:     models.OrderPending,
		Subtotal:        totals.Subtotal,
		ShippingFee:     totals.ShippingFee,
		Tax:             totals.Tax,
		Total:           totals.Total,
		Notes:           strings.TrimSpace(in.Notes),
	}
	// A guest checkout stays a guest order even when the caller is signed
	// in: the contact details are the ones given at checkout.
	contact := ""
	if in.IsGuest {
		guest := *in.GuestInfo
		guest.Email = strings.ToLower(strings.TrimSpace(guest.Email))
		order.GuestInfo = &guest
		order.IsGuest = true
		contact = guest.Email
	} else {
		uid, err := primitive.ObjectIDFromHex(caller.UserID)
		if err != nil {
			s.release(ctx, reserved)
			return nil, apperr.Unauthorized("Invalid principal")
		}
		order.UserID = &uid
		contact = caller.Email
	}

	if err := s.insert(ctx, order); err != nil {
		s.release(ctx, reserved)
		return nil, err
	}

	metrics.OrdersPlaced.WithLabelValues(string(order.PaymentMethod), strconv.FormatBool(order.IsGuest)).Inc()
	metrics.OrderRevenue.Add(order.Total)
	logger.WithCtx(ctx).Info("order placed",
		"order_number", order.OrderNumber,
		"total", order.Total,
		"guest", order.IsGuest,
	)

	if s.deps.Notifier != nil && contact != "" {
		if err := s.deps.Notifier.OrderPlaced(ctx, contact, order); err != nil {
			metrics.NotificationFailures.WithLabelValues("order_placed").Inc()
			logger.WithCtx(ctx).Warn("order confirmation not queued",
				"order_number", order.OrderNumber, "error", err)
		}
	}
	s.deps.publish(EventOrderPlaced, OrderEvent{Order: order})
	return order, nil
}

// reserve takes stock for each product in first-seen order. A line that
// loses its stock to a concurrent buyer releases everything taken so far.
func (s *OrderService) reserve(ctx context.Context, ids []primitive.ObjectID, wanted map[primitive.ObjectID]int, products map[primitive.ObjectID]*models.Product) ([]reservation, error) {
	taken := make([]reservation, 0, len(ids))
	for _, id := range ids {
		qty := wanted[id]
		ok, err := s.deps.Products.DecrementStock(ctx, id, qty)
		if err != nil {
			s.release(ctx, taken)
			return nil, storeErr(err, "Product")
		}
		if !ok {
			s.release(ctx, taken)
			metrics.StockRollbacks.Inc()
			return nil, apperr.InsufficientStock("Insufficient stock for %s", products[id].Title)
		}
		taken = append(taken, reservation{productID: id, qty: qty})
	}
	return taken, nil
}

// release gives reserved stock back. It runs detached from the request so
// a disconnecting client cannot leave stock taken.
func (s *OrderService) release(ctx context.Context, taken []reservation) {
	if len(taken) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	for _, r := range taken {
		if err := s.deps.Products.RestoreStock(bg, r.productID, r.qty); err != nil {
			logger.WithCtx(ctx).Error("stock release failed",
				"product_id", r.productID.Hex(), "quantity", r.qty, "error", err)
		}
	}
}

func (s *OrderService) insert(ctx context.Context, order *models.Order) error {
	for attempt := 1; ; attempt++ {
		order.OrderNumber = s.deps.orderNumber()
		err := s.deps.Orders.Insert(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return apperr.Internal(err, "order insert failed")
		}
		order.ID = primitive.NilObjectID
		if attempt == maxOrderNumberAttempts {
			return apperr.Conflict("Could not allocate an order number, please retry")
		}
		logger.WithCtx(ctx).Warn("order number collision", "order_number", order.OrderNumber, "attempt", attempt)
	}
}

// List returns the caller's orders, or every order for an admin.
func (s *OrderService) List(ctx context.Context, caller auth.Principal, q OrderListQuery) ([]models.Order, paging.Pagination, error) {
	var f repositories.OrderFilter
	if q.Status != "" {
		st := models.OrderStatus(q.Status)
		if !st.Valid() {
			return nil, paging.Pagination{}, apperr.ValidationFields(map[string]string{"status": "Unknown order status " + q.Status})
		}
		f.Status = st
	}
	if q.PaymentStatus != "" {
		ps := models.PaymentStatus(q.PaymentStatus)
		if !ps.Valid() {
			return nil, paging.Pagination{}, apperr.ValidationFields(map[string]string{"paymentStatus": "Unknown payment status " + q.PaymentStatus})
		}
		f.PaymentStatus = ps
	}
	if !caller.IsAdmin() {
		uid, err := primitive.ObjectIDFromHex(caller.UserID)
		if err != nil {
			return nil, paging.Pagination{}, apperr.Unauthorized("Invalid principal")
		}
		f.UserID = &uid
	}

	list, total, err := s.deps.Orders.List(ctx, f, q.Page)
	if err != nil {
		return nil, paging.Pagination{}, storeErr(err, "Order")
	}
	return list, q.Page.Result(total), nil
}

// Get returns one order. Orders belonging to someone else look missing to
// a non-admin caller.
func (s *OrderService) Get(ctx context.Context, caller auth.Principal, id string) (*models.Order, error) {
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
	return o, nil
}

func visibleTo(o *models.Order, caller auth.Principal) bool {
	if caller.IsAdmin() {
		return true
	}
	uid, err := primitive.ObjectIDFromHex(caller.UserID)
	return err == nil && o.OwnedBy(uid)
}

// contactEmail is where notifications about o go.
func (s *OrderService) contactEmail(ctx context.Context, o *models.Order) string {
	if o.GuestInfo != nil {
		return o.GuestInfo.Email
	}
	if o.UserID == nil || s.deps.Users == nil {
		return ""
	}
	u, err := s.deps.Users.FindByID(ctx, *o.UserID)
	if err != nil {
		logger.WithCtx(ctx).Warn("order owner lookup failed", "order_number", o.OrderNumber, "error", err)
		return ""
	}
	return u.Email
}

func (s *OrderService) notifyStatus(ctx context.Context, o *models.Order) {
	if s.deps.Notifier == nil {
		return
	}
	email := s.contactEmail(ctx, o)
	if email == "" {
		return
	}
	if err := s.deps.Notifier.OrderStatusChanged(ctx, email, o); err != nil {
		metrics.NotificationFailures.WithLabelValues("order_status").Inc()
		logger.WithCtx(ctx).Warn("status notification not queued",
			"order_number", o.OrderNumber, "error", err)
	}
}
