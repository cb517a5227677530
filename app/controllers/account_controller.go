package controllers

import (
	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/ctx"
)

type AccountController struct {
	account *services.AccountService
}

func NewAccountController(account *services.AccountService) *AccountController {
	return &AccountController{account: account}
}

func (ac *AccountController) Addresses(c *ctx.Context) {
	list, err := ac.account.Addresses(c.Context(), c.MustPrincipal())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(list)
}

func (ac *AccountController) AddAddress(c *ctx.Context) {
	var in services.AddressInput
	if !c.BindJSON(&in) {
		return
	}
	list, err := ac.account.AddAddress(c.Context(), c.MustPrincipal(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(list)
}

func (ac *AccountController) UpdateAddress(c *ctx.Context) {
	var in services.AddressUpdateInput
	if !c.BindJSON(&in) {
		return
	}
	list, err := ac.account.UpdateAddress(c.Context(), c.MustPrincipal(), c.Param("addressId"), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Address updated", list)
}

func (ac *AccountController) RemoveAddress(c *ctx.Context) {
	list, err := ac.account.RemoveAddress(c.Context(), c.MustPrincipal(), c.Param("addressId"))
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Address removed", list)
}

func (ac *AccountController) Wishlist(c *ctx.Context) {
	list, err := ac.account.Wishlist(c.Context(), c.MustPrincipal())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(list)
}

func (ac *AccountController) AddToWishlist(c *ctx.Context) {
	ids, err := ac.account.AddToWishlist(c.Context(), c.MustPrincipal(), c.Param("productId"))
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Added to wishlist", ids)
}

func (ac *AccountController) RemoveFromWishlist(c *ctx.Context) {
	ids, err := ac.account.RemoveFromWishlist(c.Context(), c.MustPrincipal(), c.Param("productId"))
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Removed from wishlist", ids)
}
