package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// CustomizationOptions lists what a buyer may personalise on a product.
type CustomizationOptions struct {
	AllowTextInput   bool     `bson:"allowTextInput"   json:"allowTextInput"`
	AllowImageUpload bool     `bson:"allowImageUpload" json:"allowImageUpload"`
	TextFields       []string `bson:"textFields"       json:"textFields"`
	ImageFields      []string `bson:"imageFields"      json:"imageFields"`
	AvailableSizes   []string `bson:"availableSizes"   json:"availableSizes"`
	AvailableColors  []string `bson:"availableColors"  json:"availableColors"`
}

// Ratings is the review aggregate. Sum is kept so the average can be
// maintained with a single atomic update.
type Ratings struct {
	Average float64 `bson:"average" json:"average"`
	Count   int     `bson:"count"   json:"count"`
	Sum     int     `bson:"sum"     json:"-"`
}

// Product represents a product in the catalogue.
type Product struct {
	ID                   primitive.ObjectID   `bson:"_id,omitempty"           json:"id"`
	Title                string               `bson:"title"                   json:"title"`
	Description          string               `bson:"description"             json:"description"`
	Price                float64              `bson:"price"                   json:"price"`
	DiscountPrice        *float64             `bson:"discountPrice,omitempty" json:"discountPrice,omitempty"`
	Category             string               `bson:"category"                json:"category"`
	Subcategory          string               `bson:"subcategory,omitempty"   json:"subcategory,omitempty"`
	Images               []string             `bson:"images"                  json:"images"`
	Stock                int                  `bson:"stock"                   json:"stock"`
	SKU                  string               `bson:"sku,omitempty"           json:"sku,omitempty"`
	IsCustomizable       bool                 `bson:"isCustomizable"          json:"isCustomizable"`
	CustomizationOptions CustomizationOptions `bson:"customizationOptions"    json:"customizationOptions"`
	IsFeatured           bool                 `bson:"isFeatured"              json:"isFeatured"`
	Ratings              Ratings              `bson:"ratings"                 json:"ratings"`
	Tags                 []string             `bson:"tags"                    json:"tags"`
	Status               ProductStatus        `bson:"status"                  json:"status"`
	SalesCount           int                  `bson:"salesCount"              json:"salesCount"`
	CreatedAt            time.Time            `bson:"createdAt"               json:"createdAt"`
	UpdatedAt            time.Time            `bson:"updatedAt"               json:"updatedAt"`
}

// UnitPrice is the price charged at checkout: the discount price when set
// to a positive amount, the list price otherwise.
func (p *Product) UnitPrice() float64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 {
		return *p.DiscountPrice
	}
	return p.Price
}

func (p *Product) IsActive() bool { return p.Status == ProductActive }

// FirstImage is the image snapshotted onto order lines.
func (p *Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
