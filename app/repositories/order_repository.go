package repositories

import (
	"context"
	"time"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderFilter narrows order listings. A nil UserID lists every order.
type OrderFilter struct {
	UserID        *primitive.ObjectID
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
}

// OrderPatch is a partial order update; nil fields are left untouched.
type OrderPatch struct {
	OrderStatus    *models.OrderStatus
	PaymentStatus  *models.PaymentStatus
	TrackingNumber *string
}

func (p OrderPatch) Empty() bool {
	return p.OrderStatus == nil && p.PaymentStatus == nil && p.TrackingNumber == nil
}

// StatusBucket is one row of the per-status aggregation.
type StatusBucket struct {
	Status  models.OrderStatus `bson:"_id"     json:"status"`
	Count   int64              `bson:"count"   json:"count"`
	Revenue float64            `bson:"revenue" json:"revenue"`
}

// DailyRevenue is revenue of non-cancelled orders for one UTC day.
type DailyRevenue struct {
	Date    string  `bson:"_id"     json:"date"`
	Revenue float64 `bson:"revenue" json:"revenue"`
	Orders  int64   `bson:"orders"  json:"orders"`
}

type OrderRepository struct {
	col *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{col: db.Collection(OrdersCollection)}
}

// Insert stores a new order. A clash on the unique orderNumber index is
// reported as ErrDuplicate and never overwrites the existing order.
func (r *OrderRepository) Insert(ctx context.Context, o *models.Order) error {
	defer observe(OrdersCollection, "insert")()

	ts := now()
	o.CreatedAt, o.UpdatedAt = ts, ts
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, o)
	return translate("orders.insert", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	defer observe(OrdersCollection, "find")()

	var o models.Order
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, translate("orders.find", err)
	}
	return &o, nil
}

func (r *OrderRepository) List(ctx context.Context, f OrderFilter, p paging.Params) ([]models.Order, int64, error) {
	defer observe(OrdersCollection, "list")()

	q := bson.M{}
	if f.UserID != nil {
		q["userId"] = *f.UserID
	}
	if f.Status != "" {
		q["orderStatus"] = f.Status
	}
	if f.PaymentStatus != "" {
		q["paymentStatus"] = f.PaymentStatus
	}

	total, err := r.col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, translate("orders.count", err)
	}
	cur, err := r.col.Find(ctx, q, p.FindOptions())
	if err != nil {
		return nil, 0, translate("orders.list", err)
	}
	list := []models.Order{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, translate("orders.list", err)
	}
	return list, total, nil
}

// UpdateIf applies patch only while the order's status is one of from
// (any status when from is empty) and returns the updated order.
// ErrNotFound covers both a missing order and a failed status condition;
// callers re-read to tell them apart.
func (r *OrderRepository) UpdateIf(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, patch OrderPatch) (*models.Order, error) {
	defer observe(OrdersCollection, "update")()

	filter := bson.M{"_id": id}
	if len(from) > 0 {
		filter["orderStatus"] = bson.M{"$in": from}
	}

	set := bson.M{"updatedAt": now()}
	if patch.OrderStatus != nil {
		set["orderStatus"] = *patch.OrderStatus
	}
	if patch.PaymentStatus != nil {
		set["paymentStatus"] = *patch.PaymentStatus
	}
	if patch.TrackingNumber != nil {
		set["trackingNumber"] = *patch.TrackingNumber
	}

	var o models.Order
	err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&o)
	if err != nil {
		return nil, translate("orders.update", err)
	}
	return &o, nil
}

// StatusBreakdown groups every order by fulfillment status.
func (r *OrderRepository) StatusBreakdown(ctx context.Context) ([]StatusBucket, error) {
	defer observe(OrdersCollection, "aggregate")()

	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":     "$orderStatus",
			"count":   bson.M{"$sum": 1},
			"revenue": bson.M{"$sum": "$total"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
	if err != nil {
		return nil, translate("orders.status_breakdown", err)
	}
	out := []StatusBucket{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, translate("orders.status_breakdown", err)
	}
	return out, nil
}

// DailyRevenueSince sums non-cancelled order totals per day from since.
func (r *OrderRepository) DailyRevenueSince(ctx context.Context, since time.Time) ([]DailyRevenue, error) {
	defer observe(OrdersCollection, "aggregate")()

	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"createdAt":   bson.M{"$gte": since},
			"orderStatus": bson.M{"$ne": models.OrderCancelled},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":     bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$createdAt"}},
			"revenue": bson.M{"$sum": "$total"},
			"orders":  bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
	if err != nil {
		return nil, translate("orders.daily_revenue", err)
	}
	out := []DailyRevenue{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, translate("orders.daily_revenue", err)
	}
	return out, nil
}

// Recent returns the n newest orders.
func (r *OrderRepository) Recent(ctx context.Context, n int) ([]models.Order, error) {
	list, _, err := r.List(ctx, OrderFilter{}, paging.New(1, n))
	return list, err
}
