package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/migration"
	"github.com/ourstore/storefront/pkg/queue"
)

func init() {
	migration.Register("20260101000000_create_users_indexes", &CreateUsersIndexes{})
	migration.Register("20260101000001_create_products_indexes", &CreateProductsIndexes{})
	migration.Register("20260101000002_create_orders_indexes", &CreateOrdersIndexes{})
	migration.Register("20260101000003_create_reviews_indexes", &CreateReviewsIndexes{})
	migration.Register("20260101000004_create_failed_jobs_indexes", &CreateFailedJobsIndexes{})
}

// -------- 0001: users --------

type CreateUsersIndexes struct{}

func (m *CreateUsersIndexes) Up(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(repositories.UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("users_email_unique").SetUnique(true),
	})
	return err
}

func (m *CreateUsersIndexes) Down(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db.Collection(repositories.UsersCollection), "users_email_unique")
}

// -------- 0002: products --------

type CreateProductsIndexes struct{}

func (m *CreateProductsIndexes) Up(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(repositories.ProductsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "title", Value: "text"}, {Key: "tags", Value: "text"}},
			Options: options.Index().SetName("products_search"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("products_listing"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "stock", Value: 1}},
			Options: options.Index().SetName("products_stock"),
		},
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetName("products_sku_unique").SetUnique(true).SetSparse(true),
		},
	})
	return err
}

func (m *CreateProductsIndexes) Down(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db.Collection(repositories.ProductsCollection),
		"products_search", "products_listing", "products_stock", "products_sku_unique")
}

// -------- 0003: orders --------

// The unique order number is what turns a number collision into a failed
// insert instead of a second order under the same number.
type CreateOrdersIndexes struct{}

func (m *CreateOrdersIndexes) Up(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(repositories.OrdersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().SetName("orders_number_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("orders_user"),
		},
		{
			Keys:    bson.D{{Key: "orderStatus", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("orders_status"),
		},
	})
	return err
}

func (m *CreateOrdersIndexes) Down(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db.Collection(repositories.OrdersCollection),
		"orders_number_unique", "orders_user", "orders_status")
}

// -------- 0004: reviews --------

type CreateReviewsIndexes struct{}

func (m *CreateReviewsIndexes) Up(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(repositories.ReviewsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "orderId", Value: 1},
				{Key: "productId", Value: 1},
			},
			Options: options.Index().SetName("reviews_once_per_purchase").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "productId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("reviews_product"),
		},
	})
	return err
}

func (m *CreateReviewsIndexes) Down(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db.Collection(repositories.ReviewsCollection),
		"reviews_once_per_purchase", "reviews_product")
}

// -------- 0005: failed jobs --------

type CreateFailedJobsIndexes struct{}

func (m *CreateFailedJobsIndexes) Up(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(queue.FailedJobsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "failedAt", Value: -1}},
		Options: options.Index().SetName("failed_jobs_recent"),
	})
	return err
}

func (m *CreateFailedJobsIndexes) Down(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db.Collection(queue.FailedJobsCollection), "failed_jobs_recent")
}
