package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/cache"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/paging"
	"github.com/ourstore/storefront/pkg/storage"
)

const productCacheTTL = time.Minute

// allowedImageTypes maps accepted upload content types to file extensions.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type ProductInput struct {
	Title                string                       `json:"title"          validate:"required,max=200"`
	Description          string                       `json:"description"    validate:"required"`
	Price                float64                      `json:"price"          validate:"required,gt=0"`
	DiscountPrice        *float64                     `json:"discountPrice"  validate:"nullable,gt=0"`
	Category             string                       `json:"category"       validate:"required"`
	Subcategory          string                       `json:"subcategory"`
	Stock                int                          `json:"stock"          validate:"gte=0"`
	SKU                  string                       `json:"sku"`
	IsCustomizable       bool                         `json:"isCustomizable"`
	CustomizationOptions *models.CustomizationOptions `json:"customizationOptions"`
	IsFeatured           bool                         `json:"isFeatured"`
	Tags                 []string                     `json:"tags"`
}

type ProductUpdateInput struct {
	Title                *string                      `json:"title"          validate:"nullable,max=200"`
	Description          *string                      `json:"description"`
	Price                *float64                     `json:"price"          validate:"nullable,gt=0"`
	DiscountPrice        *float64                     `json:"discountPrice"  validate:"nullable,gte=0"`
	Category             *string                      `json:"category"`
	Subcategory          *string                      `json:"subcategory"`
	Stock                *int                         `json:"stock"          validate:"nullable,gte=0"`
	SKU                  *string                      `json:"sku"`
	IsCustomizable       *bool                        `json:"isCustomizable"`
	CustomizationOptions *models.CustomizationOptions `json:"customizationOptions"`
	IsFeatured           *bool                        `json:"isFeatured"`
	Tags                 []string                     `json:"tags"`
	Status               *string                      `json:"status"         validate:"nullable,in=active,inactive"`
}

// CatalogQuery is a storefront listing request.
type CatalogQuery struct {
	Category string
	Search   string
	Featured *bool
	Page     paging.Params
}

type CatalogService struct {
	products ProductStore
	disk     storage.Disk
}

// NewCatalogService wires the catalog. disk may be nil when uploads are
// not configured.
func NewCatalogService(products ProductStore, disk storage.Disk) *CatalogService {
	return &CatalogService{products: products, disk: disk}
}

func productKey(id string) string { return "storefront:product:" + id }

// List returns active products matching q.
func (s *CatalogService) List(ctx context.Context, q CatalogQuery) ([]models.Product, paging.Pagination, error) {
	f := repositories.ProductFilter{
		Category: strings.TrimSpace(q.Category),
		Search:   strings.TrimSpace(q.Search),
		Featured: q.Featured,
	}
	list, total, err := s.products.List(ctx, f, q.Page)
	if err != nil {
		return nil, paging.Pagination{}, storeErr(err, "Product")
	}
	return list, q.Page.Result(total), nil
}

// Get returns an active product. Admins also see inactive ones.
func (s *CatalogService) Get(ctx context.Context, id string, admin bool) (*models.Product, error) {
	pid, err := parseID(id, "Product")
	if err != nil {
		return nil, err
	}
	p, err := cache.Remember(ctx, productKey(id), productCacheTTL, func(ctx context.Context) (*models.Product, error) {
		return s.products.FindByID(ctx, pid)
	})
	if err != nil {
		return nil, storeErr(err, "Product")
	}
	if !p.IsActive() && !admin {
		return nil, apperr.NotFound("Product not found")
	}
	return p, nil
}

func validatePricing(price float64, discount *float64) error {
	if discount != nil && *discount > price {
		return apperr.ValidationFields(map[string]string{"discountPrice": "The discount price cannot exceed the price"})
	}
	return nil
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := validatePricing(in.Price, in.DiscountPrice); err != nil {
		return nil, err
	}
	p := &models.Product{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Price:          in.Price,
		DiscountPrice:  in.DiscountPrice,
		Category:       in.Category,
		Subcategory:    in.Subcategory,
		Stock:          in.Stock,
		SKU:            in.SKU,
		IsCustomizable: in.IsCustomizable,
		IsFeatured:     in.IsFeatured,
		Tags:           in.Tags,
		Status:         models.ProductActive,
	}
	if in.CustomizationOptions != nil {
		p.CustomizationOptions = *in.CustomizationOptions
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, storeErr(err, "Product")
	}
	logger.WithCtx(ctx).Info("product created", "product_id", p.ID.Hex(), "title", p.Title)
	return p, nil
}

func (s *CatalogService) Update(ctx context.Context, id string, in ProductUpdateInput) (*models.Product, error) {
	pid, err := parseID(id, "Product")
	if err != nil {
		return nil, err
	}
	patch := repositories.ProductPatch{
		Title:                in.Title,
		Description:          in.Description,
		Price:                in.Price,
		Category:             in.Category,
		Subcategory:          in.Subcategory,
		Stock:                in.Stock,
		SKU:                  in.SKU,
		IsCustomizable:       in.IsCustomizable,
		CustomizationOptions: in.CustomizationOptions,
		IsFeatured:           in.IsFeatured,
		Tags:                 in.Tags,
	}
	// A zero discount clears it.
	if in.DiscountPrice != nil {
		if *in.DiscountPrice == 0 {
			patch.ClearDiscount = true
		} else {
			patch.DiscountPrice = in.DiscountPrice
		}
	}
	if in.Status != nil {
		st := models.ProductStatus(*in.Status)
		if st != models.ProductActive && st != models.ProductInactive {
			return nil, apperr.ValidationFields(map[string]string{"status": "The status must be active or inactive"})
		}
		patch.Status = &st
	}
	if patch.Price != nil || patch.DiscountPrice != nil {
		current, err := s.products.FindByID(ctx, pid)
		if err != nil {
			return nil, storeErr(err, "Product")
		}
		price, discount := current.Price, current.DiscountPrice
		if patch.Price != nil {
			price = *patch.Price
		}
		if patch.DiscountPrice != nil {
			discount = patch.DiscountPrice
		}
		if err := validatePricing(price, discount); err != nil {
			return nil, err
		}
	}

	p, err := s.products.Update(ctx, pid, patch)
	if err != nil {
		return nil, storeErr(err, "Product")
	}
	s.forget(ctx, id)
	return p, nil
}

// Delete hides a product. Orders keep their snapshots, so products are
// never removed outright.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	inactive := models.ProductInactive
	_, err := s.Update(ctx, id, ProductUpdateInput{Status: (*string)(&inactive)})
	return err
}

// UploadImage stores an image on the configured disk and appends its URL
// to the product.
func (s *CatalogService) UploadImage(ctx context.Context, id, contentType string, r io.Reader) (*models.Product, error) {
	if s.disk == nil {
		return nil, apperr.InvalidState("Image uploads are not configured")
	}
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, apperr.ValidationFields(map[string]string{"image": "The image must be a jpeg, png, webp or gif"})
	}
	pid, err := parseID(id, "Product")
	if err != nil {
		return nil, err
	}
	if _, err := s.products.FindByID(ctx, pid); err != nil {
		return nil, storeErr(err, "Product")
	}

	key := path.Join("products", pid.Hex(), strings.ToLower(ulid.Make().String())+ext)
	if err := s.disk.Put(ctx, key, r, contentType); err != nil {
		return nil, apperr.Internal(err, "store image")
	}
	p, err := s.products.AddImage(ctx, pid, s.disk.URL(key))
	if err != nil {
		if derr := s.disk.Delete(context.WithoutCancel(ctx), key); derr != nil {
			logger.WithCtx(ctx).Warn("orphaned image", "key", key, "error", derr)
		}
		return nil, storeErr(err, "Product")
	}
	s.forget(ctx, id)
	return p, nil
}

// LowStock lists products with fewer than threshold units, lowest first.
func (s *CatalogService) LowStock(ctx context.Context, threshold int, p paging.Params) ([]models.Product, paging.Pagination, error) {
	if threshold < 1 {
		return nil, paging.Pagination{}, apperr.ValidationFields(map[string]string{"threshold": fmt.Sprintf("The threshold must be at least 1, got %d", threshold)})
	}
	list, total, err := s.products.List(ctx, repositories.ProductFilter{
		IncludeInactive: true,
		StockBelow:      &threshold,
		SortByStock:     true,
	}, p)
	if err != nil {
		return nil, paging.Pagination{}, storeErr(err, "Product")
	}
	return list, p.Result(total), nil
}

func (s *CatalogService) forget(ctx context.Context, id string) {
	if err := cache.Del(ctx, productKey(id)); err != nil {
		logger.WithCtx(ctx).Warn("product cache invalidation failed", "product_id", id, "error", err)
	}
}
