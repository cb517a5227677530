package services

import (
	"context"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AddressInput struct {
	FullName     string `json:"fullName"     validate:"required,max=100"`
	Phone        string `json:"phone"        validate:"required,phone"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2" validate:"nullable,max=200"`
	City         string `json:"city"         validate:"required"`
	Dzongkhag    string `json:"dzongkhag"    validate:"required"`
	PostalCode   string `json:"postalCode"`
	IsDefault    bool   `json:"isDefault"`
}

type AddressUpdateInput struct {
	FullName     *string `json:"fullName"     validate:"nullable,max=100"`
	Phone        *string `json:"phone"        validate:"nullable,phone"`
	AddressLine1 *string `json:"addressLine1" validate:"nullable,max=200"`
	AddressLine2 *string `json:"addressLine2" validate:"nullable,max=200"`
	City         *string `json:"city"`
	Dzongkhag    *string `json:"dzongkhag"`
	PostalCode   *string `json:"postalCode"`
	IsDefault    *bool   `json:"isDefault"`
}

// AccountService manages a customer's saved addresses and wishlist. A user
// has at most one default address.
type AccountService struct {
	users    UserStore
	products ProductStore
}

func NewAccountService(users UserStore, products ProductStore) *AccountService {
	return &AccountService{users: users, products: products}
}

func (s *AccountService) caller(ctx context.Context, p auth.Principal) (*models.User, error) {
	uid, err := primitive.ObjectIDFromHex(p.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid principal")
	}
	u, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	return u, nil
}

func (s *AccountService) Addresses(ctx context.Context, p auth.Principal) ([]models.Address, error) {
	u, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}
	return u.Addresses, nil
}

// AddAddress saves a new address. The first address becomes the default.
func (s *AccountService) AddAddress(ctx context.Context, p auth.Principal, in AddressInput) ([]models.Address, error) {
	u, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}
	a := models.Address{
		ID:           primitive.NewObjectID(),
		FullName:     in.FullName,
		Phone:        in.Phone,
		AddressLine1: in.AddressLine1,
		AddressLine2: in.AddressLine2,
		City:         in.City,
		Dzongkhag:    in.Dzongkhag,
		PostalCode:   in.PostalCode,
		IsDefault:    in.IsDefault || len(u.Addresses) == 0,
	}
	updated, err := s.users.AddAddress(ctx, u.ID, a)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	return updated.Addresses, nil
}

func (s *AccountService) UpdateAddress(ctx context.Context, p auth.Principal, addressID string, in AddressUpdateInput) ([]models.Address, error) {
	uid, err := primitive.ObjectIDFromHex(p.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid principal")
	}
	aid, err := parseID(addressID, "Address")
	if err != nil {
		return nil, err
	}
	updated, err := s.users.UpdateAddress(ctx, uid, aid, repositories.AddressPatch{
		FullName:     in.FullName,
		Phone:        in.Phone,
		AddressLine1: in.AddressLine1,
		AddressLine2: in.AddressLine2,
		City:         in.City,
		Dzongkhag:    in.Dzongkhag,
		PostalCode:   in.PostalCode,
		IsDefault:    in.IsDefault,
	})
	if err != nil {
		return nil, storeErr(err, "Address")
	}
	return updated.Addresses, nil
}

func (s *AccountService) RemoveAddress(ctx context.Context, p auth.Principal, addressID string) ([]models.Address, error) {
	uid, err := primitive.ObjectIDFromHex(p.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid principal")
	}
	aid, err := parseID(addressID, "Address")
	if err != nil {
		return nil, err
	}
	updated, err := s.users.RemoveAddress(ctx, uid, aid)
	if err != nil {
		return nil, storeErr(err, "Address")
	}
	return updated.Addresses, nil
}

// Wishlist returns the caller's saved products that are still listed.
func (s *AccountService) Wishlist(ctx context.Context, p auth.Principal) ([]*models.Product, error) {
	u, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}
	found, err := s.products.FindByIDs(ctx, u.Wishlist)
	if err != nil {
		return nil, storeErr(err, "Product")
	}
	out := make([]*models.Product, 0, len(u.Wishlist))
	for _, id := range u.Wishlist {
		if prod, ok := found[id]; ok && prod.IsActive() {
			out = append(out, prod)
		}
	}
	return out, nil
}

// AddToWishlist is idempotent.
func (s *AccountService) AddToWishlist(ctx context.Context, p auth.Principal, productID string) ([]primitive.ObjectID, error) {
	uid, err := primitive.ObjectIDFromHex(p.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid principal")
	}
	pid, err := parseID(productID, "Product")
	if err != nil {
		return nil, err
	}
	prod, err := s.products.FindByID(ctx, pid)
	if err != nil {
		return nil, storeErr(err, "Product")
	}
	if !prod.IsActive() {
		return nil, apperr.NotFound("Product not found")
	}
	u, err := s.users.AddToWishlist(ctx, uid, pid)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	return u.Wishlist, nil
}

func (s *AccountService) RemoveFromWishlist(ctx context.Context, p auth.Principal, productID string) ([]primitive.ObjectID, error) {
	uid, err := primitive.ObjectIDFromHex(p.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid principal")
	}
	pid, err := parseID(productID, "Product")
	if err != nil {
		return nil, err
	}
	u, err := s.users.RemoveFromWishlist(ctx, uid, pid)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	return u.Wishlist, nil
}
