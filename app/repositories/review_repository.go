package repositories

import (
	"context"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type ReviewRepository struct {
	col *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{col: db.Collection(ReviewsCollection)}
}

// Insert stores a review; the unique (userId, orderId, productId) index
// turns a second review of the same purchase into ErrDuplicate.
func (r *ReviewRepository) Insert(ctx context.Context, rv *models.Review) error {
	defer observe(ReviewsCollection, "insert")()

	ts := now()
	rv.CreatedAt, rv.UpdatedAt = ts, ts
	if rv.ID.IsZero() {
		rv.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, rv)
	return translate("reviews.insert", err)
}

func (r *ReviewRepository) Exists(ctx context.Context, userID, orderID, productID primitive.ObjectID) (bool, error) {
	defer observe(ReviewsCollection, "count")()

	n, err := r.col.CountDocuments(ctx, bson.M{
		"userId":    userID,
		"orderId":   orderID,
		"productId": productID,
	})
	if err != nil {
		return false, translate("reviews.exists", err)
	}
	return n > 0, nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID primitive.ObjectID, p paging.Params) ([]models.Review, int64, error) {
	defer observe(ReviewsCollection, "list")()

	q := bson.M{"productId": productID}
	total, err := r.col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, translate("reviews.count", err)
	}
	cur, err := r.col.Find(ctx, q, p.FindOptions())
	if err != nil {
		return nil, 0, translate("reviews.list", err)
	}
	list := []models.Review{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, translate("reviews.list", err)
	}
	return list, total, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	defer observe(ReviewsCollection, "delete")()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate("reviews.delete", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
