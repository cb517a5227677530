package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Address is a saved shipping address. At most one per user is default.
type Address struct {
	ID           primitive.ObjectID `bson:"_id"                    json:"id"`
	FullName     string             `bson:"fullName"               json:"fullName"`
	Phone        string             `bson:"phone"                  json:"phone"`
	AddressLine1 string             `bson:"addressLine1"           json:"addressLine1"`
	AddressLine2 string             `bson:"addressLine2,omitempty" json:"addressLine2,omitempty"`
	City         string             `bson:"city"                   json:"city"`
	Dzongkhag    string             `bson:"dzongkhag"              json:"dzongkhag"`
	PostalCode   string             `bson:"postalCode,omitempty"   json:"postalCode,omitempty"`
	IsDefault    bool               `bson:"isDefault"              json:"isDefault"`
}

// User is an account holder.
type User struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"   json:"id"`
	FullName  string               `bson:"fullName"        json:"fullName"`
	Email     string               `bson:"email"           json:"email"`
	Password  string               `bson:"password"        json:"-"`
	Phone     string               `bson:"phone,omitempty" json:"phone,omitempty"`
	Addresses []Address            `bson:"addresses"       json:"addresses"`
	Role      string               `bson:"role"            json:"role"`
	Wishlist  []primitive.ObjectID `bson:"wishlist"        json:"wishlist"`
	IsActive  bool                 `bson:"isActive"        json:"isActive"`
	CreatedAt time.Time            `bson:"createdAt"       json:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"       json:"updatedAt"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
