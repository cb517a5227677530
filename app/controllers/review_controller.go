package controllers

import (
	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/ctx"
)

type ReviewController struct {
	reviews *services.ReviewService
}

func NewReviewController(reviews *services.ReviewService) *ReviewController {
	return &ReviewController{reviews: reviews}
}

func (rc *ReviewController) Store(c *ctx.Context) {
	var in services.CreateReviewInput
	if !c.BindJSON(&in) {
		return
	}
	res, err := rc.reviews.Create(c.Context(), c.MustPrincipal(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(res)
}

func (rc *ReviewController) Index(c *ctx.Context) {
	list, page, err := rc.reviews.ListForProduct(c.Context(), c.Param("id"), c.Page())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Paginated(list, page)
}
