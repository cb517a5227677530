// Package services implements the storefront's business operations on top
// of the stores in app/repositories.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductStore is the catalog persistence used by the services.
type ProductStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error)
	List(ctx context.Context, f repositories.ProductFilter, p paging.Params) ([]models.Product, int64, error)
	Count(ctx context.Context, f repositories.ProductFilter) (int64, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, id primitive.ObjectID, patch repositories.ProductPatch) (*models.Product, error)
	AddImage(ctx context.Context, id primitive.ObjectID, url string) (*models.Product, error)
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
	RestoreStock(ctx context.Context, id primitive.ObjectID, qty int) error
	ApplyRating(ctx context.Context, id primitive.ObjectID, rating int) (*models.Product, error)
}

// OrderStore is the order ledger.
type OrderStore interface {
	Insert(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	List(ctx context.Context, f repositories.OrderFilter, p paging.Params) ([]models.Order, int64, error)
	UpdateIf(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, patch repositories.OrderPatch) (*models.Order, error)
	StatusBreakdown(ctx context.Context) ([]repositories.StatusBucket, error)
	DailyRevenueSince(ctx context.Context, since time.Time) ([]repositories.DailyRevenue, error)
	Recent(ctx context.Context, n int) ([]models.Order, error)
}

// ReviewStore persists reviews.
type ReviewStore interface {
	Insert(ctx context.Context, r *models.Review) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Exists(ctx context.Context, userID, orderID, productID primitive.ObjectID) (bool, error)
	ListByProduct(ctx context.Context, productID primitive.ObjectID, p paging.Params) ([]models.Review, int64, error)
}

// UserStore persists accounts.
type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	CountActive(ctx context.Context) (int64, error)
	AddAddress(ctx context.Context, userID primitive.ObjectID, a models.Address) (*models.User, error)
	UpdateAddress(ctx context.Context, userID, addressID primitive.ObjectID, patch repositories.AddressPatch) (*models.User, error)
	RemoveAddress(ctx context.Context, userID, addressID primitive.ObjectID) (*models.User, error)
	AddToWishlist(ctx context.Context, userID, productID primitive.ObjectID) (*models.User, error)
	RemoveFromWishlist(ctx context.Context, userID, productID primitive.ObjectID) (*models.User, error)
}

// Notifier sends customer notifications. Failures are reported to the
// caller, which logs them and carries on.
type Notifier interface {
	OrderPlaced(ctx context.Context, email string, o *models.Order) error
	OrderStatusChanged(ctx context.Context, email string, o *models.Order) error
}

// Publisher broadcasts domain events to in-process listeners.
type Publisher interface {
	FireAsync(event string, payload interface{})
}

// Event names published by the order services.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
)

// OrderEvent is the payload of every order event.
type OrderEvent struct {
	Event string        `json:"event"`
	From  string        `json:"from,omitempty"`
	Order *models.Order `json:"order"`
}

// Deps bundles the collaborators shared by the services.
type Deps struct {
	Products ProductStore
	Orders   OrderStore
	Reviews  ReviewStore
	Users    UserStore
	Notifier Notifier
	Events   Publisher
	Pricing  Pricing
	// Clock and NewOrderNumber are replaceable in tests.
	Clock          func() time.Time
	NewOrderNumber func() string
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

func (d *Deps) orderNumber() string {
	if d.NewOrderNumber != nil {
		return d.NewOrderNumber()
	}
	return NewOrderNumber()
}

func (d *Deps) publish(event string, payload OrderEvent) {
	if d.Events == nil {
		return
	}
	payload.Event = event
	d.Events.FireAsync(event, payload)
}

// NewOrderNumber returns "ORD-" followed by a ULID: time ordered and
// collision resistant, while the ledger's unique index stays authoritative.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

// parseID turns a hex id into an ObjectID or a NotFound error naming what.
func parseID(hex, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound("%s not found", what)
	}
	return id, nil
}

// storeErr maps repository sentinels onto error kinds.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, repositories.ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, err, "%s already exists", what)
	default:
		return apperr.Internal(err, "%s store failure", what)
	}
}
