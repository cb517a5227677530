package seeders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/auth"
)

func init() {
	Register("admin", SeedAdmin)
	Register("products", SeedProducts)
}

// SeedAdmin creates the back-office account from SEED_ADMIN_EMAIL and
// SEED_ADMIN_PASSWORD. An existing account is left untouched.
func SeedAdmin(ctx context.Context, db *mongo.Database) error {
	hash, err := auth.HashPassword(config.Get("SEED_ADMIN_PASSWORD", "change-me-admin"))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := models.User{
		FullName:  "Store Admin",
		Email:     config.Get("SEED_ADMIN_EMAIL", "admin@ourstore.example"),
		Password:  hash,
		Role:      models.RoleAdmin,
		Addresses: []models.Address{},
		Wishlist:  []primitive.ObjectID{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.Collection(repositories.UsersCollection).UpdateOne(ctx,
		bson.M{"email": admin.Email},
		bson.M{"$setOnInsert": admin},
		options.Update().SetUpsert(true),
	)
	return err
}

var starterCatalog = []models.Product{
	{Title: "Hand-woven Kira", Description: "Traditional woven kira in sunset colours.", Price: 8500, Category: "Textiles", Stock: 12, SKU: "TX-KIRA-01", IsFeatured: true, Tags: []string{"kira", "handmade"}},
	{Title: "Prayer Flags (set of 5)", Description: "Cotton prayer flags, 5 colours.", Price: 450, Category: "Home", Stock: 200, SKU: "HM-FLAG-05", Tags: []string{"prayer", "flags"}},
	{Title: "Butter Lamp", Description: "Brass butter lamp.", Price: 1200, DiscountPrice: ptr(990.0), Category: "Home", Stock: 30, SKU: "HM-LAMP-01", Tags: []string{"brass"}},
	{Title: "Personalised Mug", Description: "Ceramic mug with your text.", Price: 600, Category: "Gifts", Stock: 8, SKU: "GF-MUG-01", IsCustomizable: true,
		CustomizationOptions: models.CustomizationOptions{AllowTextInput: true, TextFields: []string{"message"}}},
}

func ptr[T any](v T) *T { return &v }

// SeedProducts upserts the starter catalog by SKU.
func SeedProducts(ctx context.Context, db *mongo.Database) error {
	col := db.Collection(repositories.ProductsCollection)
	now := time.Now().UTC()
	for _, p := range starterCatalog {
		p.Status = models.ProductActive
		p.Images = []string{}
		p.CreatedAt = now
		p.UpdatedAt = now
		if _, err := col.UpdateOne(ctx,
			bson.M{"sku": p.SKU},
			bson.M{"$setOnInsert": p},
			options.Update().SetUpsert(true),
		); err != nil {
			return err
		}
	}
	return nil
}
