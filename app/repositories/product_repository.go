package repositories

import (
	"context"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProductFilter narrows catalog listings. Zero values mean "any".
type ProductFilter struct {
	Category        string
	Search          string
	Featured        *bool
	IncludeInactive bool
	// StockBelow selects products with stock < *StockBelow.
	StockBelow  *int
	SortByStock bool
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Title                *string
	Description          *string
	Price                *float64
	DiscountPrice        *float64
	ClearDiscount        bool
	Category             *string
	Subcategory          *string
	Stock                *int
	SKU                  *string
	IsCustomizable       *bool
	CustomizationOptions *models.CustomizationOptions
	IsFeatured           *bool
	Tags                 []string
	Status               *models.ProductStatus
}

type ProductRepository struct {
	col *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{col: db.Collection(ProductsCollection)}
}

func (r *ProductRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	defer observe(ProductsCollection, "find")()

	var p models.Product
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate("products.find", err)
	}
	return &p, nil
}

// FindByIDs returns the products found, keyed by id. Missing ids are absent.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	defer observe(ProductsCollection, "find")()

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translate("products.find_many", err)
	}
	var list []models.Product
	if err := cur.All(ctx, &list); err != nil {
		return nil, translate("products.find_many", err)
	}

	out := make(map[primitive.ObjectID]*models.Product, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

func productQuery(f ProductFilter) bson.M {
	q := bson.M{}
	if !f.IncludeInactive {
		q["status"] = models.ProductActive
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.Featured != nil {
		q["isFeatured"] = *f.Featured
	}
	if f.StockBelow != nil {
		q["stock"] = bson.M{"$lt": *f.StockBelow}
	}
	if f.Search != "" {
		q["$text"] = bson.M{"$search": f.Search}
	}
	return q
}

func (r *ProductRepository) List(ctx context.Context, f ProductFilter, p paging.Params) ([]models.Product, int64, error) {
	defer observe(ProductsCollection, "list")()

	q := productQuery(f)
	total, err := r.col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, translate("products.count", err)
	}

	opts := p.FindOptions()
	if f.SortByStock {
		opts.SetSort(bson.D{{Key: "stock", Value: 1}})
	}
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, translate("products.list", err)
	}
	list := []models.Product{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, translate("products.list", err)
	}
	return list, total, nil
}

func (r *ProductRepository) Count(ctx context.Context, f ProductFilter) (int64, error) {
	defer observe(ProductsCollection, "count")()
	n, err := r.col.CountDocuments(ctx, productQuery(f))
	return n, translate("products.count", err)
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	defer observe(ProductsCollection, "insert")()

	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Status == "" {
		p.Status = models.ProductActive
	}
	_, err := r.col.InsertOne(ctx, p)
	return translate("products.insert", err)
}

// Update applies patch and returns the stored product.
func (r *ProductRepository) Update(ctx context.Context, id primitive.ObjectID, patch ProductPatch) (*models.Product, error) {
	defer observe(ProductsCollection, "update")()

	set := bson.M{"updatedAt": now()}
	unset := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Price != nil {
		set["price"] = *patch.Price
	}
	if patch.DiscountPrice != nil {
		set["discountPrice"] = *patch.DiscountPrice
	} else if patch.ClearDiscount {
		unset["discountPrice"] = ""
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Subcategory != nil {
		set["subcategory"] = *patch.Subcategory
	}
	if patch.Stock != nil {
		set["stock"] = *patch.Stock
	}
	if patch.SKU != nil {
		set["sku"] = *patch.SKU
	}
	if patch.IsCustomizable != nil {
		set["isCustomizable"] = *patch.IsCustomizable
	}
	if patch.CustomizationOptions != nil {
		set["customizationOptions"] = *patch.CustomizationOptions
	}
	if patch.IsFeatured != nil {
		set["isFeatured"] = *patch.IsFeatured
	}
	if patch.Tags != nil {
		set["tags"] = patch.Tags
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var p models.Product
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		return nil, translate("products.update", err)
	}
	return &p, nil
}

// AddImage appends url to the product's image list.
func (r *ProductRepository) AddImage(ctx context.Context, id primitive.ObjectID, url string) (*models.Product, error) {
	defer observe(ProductsCollection, "update")()

	var p models.Product
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$push": bson.M{"images": url}, "$set": bson.M{"updatedAt": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		return nil, translate("products.add_image", err)
	}
	return &p, nil
}

// DecrementStock takes qty units from an active product only when at least
// qty are available. It reports false when the condition did not hold.
func (r *ProductRepository) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	defer observe(ProductsCollection, "decrement_stock")()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ProductActive, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty, "salesCount": qty},
			"$set": bson.M{"updatedAt": now()},
		})
	if err != nil {
		return false, translate("products.decrement_stock", err)
	}
	return res.MatchedCount == 1, nil
}

// RestoreStock is the inverse of DecrementStock.
func (r *ProductRepository) RestoreStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	defer observe(ProductsCollection, "restore_stock")()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"stock": qty, "salesCount": -qty},
		"$set": bson.M{"updatedAt": now()},
	})
	if err != nil {
		return translate("products.restore_stock", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyRating folds one new rating into the aggregate in a single document
// update, so concurrent reviews never lose each other's contribution.
// Documents written before ratings.sum existed derive it from average*count.
func (r *ProductRepository) ApplyRating(ctx context.Context, id primitive.ObjectID, rating int) (*models.Product, error) {
	defer observe(ProductsCollection, "apply_rating")()

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"ratings.sum": bson.M{"$add": bson.A{
				bson.M{"$ifNull": bson.A{
					"$ratings.sum",
					bson.M{"$round": bson.A{bson.M{"$multiply": bson.A{
						bson.M{"$ifNull": bson.A{"$ratings.average", 0}},
						bson.M{"$ifNull": bson.A{"$ratings.count", 0}},
					}}, 0}},
				}},
				rating,
			}},
			"ratings.count": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$ratings.count", 0}}, 1}},
			"updatedAt":     now(),
		}}},
		{{Key: "$set", Value: bson.M{
			"ratings.average": bson.M{"$divide": bson.A{"$ratings.sum", "$ratings.count"}},
		}}},
	}

	var p models.Product
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		return nil, translate("products.apply_rating", err)
	}
	return &p, nil
}
