package controllers

import (
	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/ctx"
)

type AuthController struct {
	service *services.AuthService
}

func NewAuthController(service *services.AuthService) *AuthController {
	return &AuthController{service: service}
}

func (ac *AuthController) Register(c *ctx.Context) {
	var in services.RegisterInput
	if !c.BindJSON(&in) {
		return
	}
	pair, err := ac.service.Register(c.Context(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(pair)
}

func (ac *AuthController) Login(c *ctx.Context) {
	var in services.LoginInput
	if !c.BindJSON(&in) {
		return
	}
	pair, err := ac.service.Login(c.Context(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(pair)
}

func (ac *AuthController) Refresh(c *ctx.Context) {
	var in struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	if !c.BindJSON(&in) {
		return
	}
	pair, err := ac.service.Refresh(c.Context(), in.RefreshToken)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(pair)
}

func (ac *AuthController) Me(c *ctx.Context) {
	u, err := ac.service.Me(c.Context(), c.MustPrincipal())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(u)
}
