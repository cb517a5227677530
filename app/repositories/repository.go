// Package repositories holds the MongoDB implementations of the stores used
// by app/services.
package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/ourstore/storefront/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names.
const (
	ProductsCollection = "products"
	OrdersCollection   = "orders"
	ReviewsCollection  = "reviews"
	UsersCollection    = "users"
)

var (
	// ErrNotFound means no document matched the filter.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate means a unique index rejected the write.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// translate maps driver errors onto the package sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func observe(collection, op string) func() {
	start := time.Now()
	return func() { metrics.ObserveDBQuery(collection, op, start) }
}

func now() time.Time { return time.Now().UTC() }
