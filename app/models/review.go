package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review is a verified-purchase rating of one product from one order.
type Review struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"userId"        json:"userId"`
	UserName   string             `bson:"userName"      json:"userName"`
	ProductID  primitive.ObjectID `bson:"productId"     json:"productId"`
	OrderID    primitive.ObjectID `bson:"orderId"       json:"orderId"`
	Rating     int                `bson:"rating"        json:"rating"`
	Comment    string             `bson:"comment"       json:"comment"`
	IsVerified bool               `bson:"isVerified"    json:"isVerified"`
	CreatedAt  time.Time          `bson:"createdAt"     json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"     json:"updatedAt"`
}
