package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the fulfillment lifecycle of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
	OrderCancelled  OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Cancellable reports whether an order in s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s == OrderPending || s == OrderProcessing
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
	PaymentRefunded  PaymentStatus = "Refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "Online"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCOD || m == PaymentOnline }

// Customization is the buyer's personalisation of one line.
type Customization struct {
	Text   map[string]string `bson:"text,omitempty"   json:"text,omitempty"`
	Images []string          `bson:"images,omitempty" json:"images,omitempty"`
	Size   string            `bson:"size,omitempty"   json:"size,omitempty"`
	Color  string            `bson:"color,omitempty"  json:"color,omitempty"`
}

// OrderItem is a snapshot of a product taken at checkout. Later catalog
// edits never change it.
type OrderItem struct {
	ProductID     primitive.ObjectID `bson:"productId"               json:"productId"`
	Title         string             `bson:"title"                   json:"title"`
	Price         float64            `bson:"price"                   json:"price"`
	Quantity      int                `bson:"quantity"                json:"quantity"`
	Customization *Customization     `bson:"customization,omitempty" json:"customization,omitempty"`
	Image         string             `bson:"image,omitempty"         json:"image,omitempty"`
}

type ShippingAddress struct {
	FullName     string `bson:"fullName"               json:"fullName"               validate:"required,max=100"`
	Phone        string `bson:"phone"                  json:"phone"                  validate:"required,phone"`
	AddressLine1 string `bson:"addressLine1"           json:"addressLine1"           validate:"required,max=200"`
	AddressLine2 string `bson:"addressLine2,omitempty" json:"addressLine2,omitempty" validate:"nullable,max=200"`
	City         string `bson:"city"                   json:"city"                   validate:"required"`
	Dzongkhag    string `bson:"dzongkhag"              json:"dzongkhag"              validate:"required"`
	PostalCode   string `bson:"postalCode,omitempty"   json:"postalCode,omitempty"`
}

type GuestInfo struct {
	FullName string `bson:"fullName"        json:"fullName"`
	Email    string `bson:"email"           json:"email"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// Order is a placed order. Exactly one of UserID and GuestInfo is set.
type Order struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty"            json:"id"`
	UserID          *primitive.ObjectID `bson:"userId,omitempty"         json:"userId,omitempty"`
	OrderNumber     string              `bson:"orderNumber"              json:"orderNumber"`
	Items           []OrderItem         `bson:"items"                    json:"items"`
	ShippingAddress ShippingAddress     `bson:"shippingAddress"          json:"shippingAddress"`
	GuestInfo       *GuestInfo          `bson:"guestInfo,omitempty"      json:"guestInfo,omitempty"`
	IsGuest         bool                `bson:"isGuest"                  json:"isGuest"`
	PaymentMethod   PaymentMethod       `bson:"paymentMethod"            json:"paymentMethod"`
	PaymentStatus   PaymentStatus       `bson:"paymentStatus"            json:"paymentStatus"`
	OrderStatus     OrderStatus         `bson:"orderStatus"              json:"orderStatus"`
	Subtotal        float64             `bson:"subtotal"                 json:"subtotal"`
	ShippingFee     float64             `bson:"shippingFee"              json:"shippingFee"`
	Tax             float64             `bson:"tax"                      json:"tax"`
	Total           float64             `bson:"total"                    json:"total"`
	Notes           string              `bson:"notes,omitempty"          json:"notes,omitempty"`
	TrackingNumber  string              `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt"                json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt"                json:"updatedAt"`
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID primitive.ObjectID) bool {
	return o.UserID != nil && *o.UserID == userID
}

// Quantities sums line quantities per product.
func (o *Order) Quantities() map[primitive.ObjectID]int {
	out := make(map[primitive.ObjectID]int, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// HasProduct reports whether any line refers to productID.
func (o *Order) HasProduct(productID primitive.ObjectID) bool {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}
