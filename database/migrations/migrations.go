// Package migrations holds the storefront's schema migrations. Each file
// registers itself from init(); cmd/storefront imports the package for that
// side effect.
package migrations

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// dropIndexes removes named indexes, ignoring ones that are already gone.
func dropIndexes(ctx context.Context, col *mongo.Collection, names ...string) error {
	for _, name := range names {
		if _, err := col.Indexes().DropOne(ctx, name); err != nil {
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) && cmdErr.Name == "IndexNotFound" {
				continue
			}
			return fmt.Errorf("drop index %s.%s: %w", col.Name(), name, err)
		}
	}
	return nil
}
