package repositories

import (
	"context"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AddressPatch is a partial address update; nil fields are left untouched.
type AddressPatch struct {
	FullName     *string
	Phone        *string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	Dzongkhag    *string
	PostalCode   *string
	IsDefault    *bool
}

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(UsersCollection)}
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	defer observe(UsersCollection, "find")()

	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, translate("users.find", err)
	}
	return &u, nil
}

// FindByEmail matches case-insensitively; emails are stored lowercased.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observe(UsersCollection, "find")()

	var u models.User
	err := r.col.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&u)
	if err != nil {
		return nil, translate("users.find_by_email", err)
	}
	return &u, nil
}

// Create persists a new user. A taken email is ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	defer observe(UsersCollection, "insert")()

	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Addresses == nil {
		u.Addresses = []models.Address{}
	}
	if u.Wishlist == nil {
		u.Wishlist = []primitive.ObjectID{}
	}
	_, err := r.col.InsertOne(ctx, u)
	return translate("users.insert", err)
}

func (r *UserRepository) CountActive(ctx context.Context) (int64, error) {
	defer observe(UsersCollection, "count")()
	n, err := r.col.CountDocuments(ctx, bson.M{"isActive": true})
	return n, translate("users.count", err)
}

func (r *UserRepository) findAndUpdate(ctx context.Context, op string, filter bson.M, update interface{}) (*models.User, error) {
	defer observe(UsersCollection, "update")()

	var u models.User
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		return nil, translate(op, err)
	}
	return &u, nil
}

// clearDefaults maps every address to isDefault=false.
func clearDefaults() bson.M {
	return bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$addresses", bson.A{}}},
		"in":    bson.M{"$mergeObjects": bson.A{"$$this", bson.M{"isDefault": false}}},
	}}
}

// AddAddress appends a. When a is the default every other address loses its
// default flag in the same update.
func (r *UserRepository) AddAddress(ctx context.Context, userID primitive.ObjectID, a models.Address) (*models.User, error) {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}

	existing := interface{}(bson.M{"$ifNull": bson.A{"$addresses", bson.A{}}})
	if a.IsDefault {
		existing = clearDefaults()
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"addresses": bson.M{"$concatArrays": bson.A{existing, bson.A{bson.M{"$literal": a}}}},
			"updatedAt": now(),
		}}},
	}
	return r.findAndUpdate(ctx, "users.add_address", bson.M{"_id": userID}, pipeline)
}

// UpdateAddress merges patch into one address. Setting IsDefault=true
// clears the flag on the user's other addresses atomically.
func (r *UserRepository) UpdateAddress(ctx context.Context, userID, addressID primitive.ObjectID, patch AddressPatch) (*models.User, error) {
	fields := bson.M{}
	put := func(key string, v *string) {
		if v != nil {
			fields[key] = *v
		}
	}
	put("fullName", patch.FullName)
	put("phone", patch.Phone)
	put("addressLine1", patch.AddressLine1)
	put("addressLine2", patch.AddressLine2)
	put("city", patch.City)
	put("dzongkhag", patch.Dzongkhag)
	put("postalCode", patch.PostalCode)
	if patch.IsDefault != nil {
		fields["isDefault"] = *patch.IsDefault
	}

	other := interface{}("$$this")
	if patch.IsDefault != nil && *patch.IsDefault {
		other = bson.M{"$mergeObjects": bson.A{"$$this", bson.M{"isDefault": false}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"addresses": bson.M{"$map": bson.M{
				"input": "$addresses",
				"in": bson.M{"$cond": bson.A{
					bson.M{"$eq": bson.A{"$$this._id", addressID}},
					bson.M{"$mergeObjects": bson.A{"$$this", bson.M{"$literal": fields}}},
					other,
				}},
			}},
			"updatedAt": now(),
		}}},
	}
	return r.findAndUpdate(ctx, "users.update_address",
		bson.M{"_id": userID, "addresses._id": addressID}, pipeline)
}

func (r *UserRepository) RemoveAddress(ctx context.Context, userID, addressID primitive.ObjectID) (*models.User, error) {
	return r.findAndUpdate(ctx, "users.remove_address",
		bson.M{"_id": userID, "addresses._id": addressID},
		bson.M{
			"$pull": bson.M{"addresses": bson.M{"_id": addressID}},
			"$set":  bson.M{"updatedAt": now()},
		})
}

func (r *UserRepository) AddToWishlist(ctx context.Context, userID, productID primitive.ObjectID) (*models.User, error) {
	return r.findAndUpdate(ctx, "users.wishlist_add", bson.M{"_id": userID}, bson.M{
		"$addToSet": bson.M{"wishlist": productID},
		"$set":      bson.M{"updatedAt": now()},
	})
}

func (r *UserRepository) RemoveFromWishlist(ctx context.Context, userID, productID primitive.ObjectID) (*models.User, error) {
	return r.findAndUpdate(ctx, "users.wishlist_remove", bson.M{"_id": userID}, bson.M{
		"$pull": bson.M{"wishlist": productID},
		"$set":  bson.M{"updatedAt": now()},
	})
}
