package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateReviewInput struct {
	ProductID string `json:"productId" validate:"required,objectid"`
	OrderID   string `json:"orderId"   validate:"required,objectid"`
	Rating    int    `json:"rating"    validate:"required,integer,between=1,5"`
	Comment   string `json:"comment"   validate:"required,max=2000"`
}

// ReviewResult is a created review together with the product's new
// rating aggregate.
type ReviewResult struct {
	Review  *models.Review `json:"review"`
	Ratings models.Ratings `json:"ratings"`
}

type ReviewService struct {
	deps *Deps
}

func NewReviewService(deps *Deps) *ReviewService {
	return &ReviewService{deps: deps}
}

// Create records a verified-purchase review. Only the owner of a delivered
// order containing the product may review it, once per order.
func (s *ReviewService) Create(ctx context.Context, caller auth.Principal, in CreateReviewInput) (*ReviewResult, error) {
	comment := strings.TrimSpace(in.Comment)
	fields := map[string]string{}
	if in.Rating < 1 || in.Rating > 5 {
		fields["rating"] = "The rating must be between 1 and 5"
	}
	if comment == "" {
		fields["comment"] = "The comment field is required"
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	uid, err := primitive.ObjectIDFromHex(caller.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid principal")
	}
	orderID, err := parseID(in.OrderID, "Order")
	if err != nil {
		return nil, err
	}
	productID, err := parseID(in.ProductID, "Product")
	if err != nil {
		return nil, err
	}

	order, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, "Order")
	}
	if !order.OwnedBy(uid) {
		return nil, apperr.Forbidden("You can only review your own orders")
	}
	if order.OrderStatus != models.OrderDelivered {
		return nil, apperr.InvalidState("Only delivered orders can be reviewed")
	}
	if !order.HasProduct(productID) {
		return nil, apperr.ValidationFields(map[string]string{"productId": "The product is not part of this order"})
	}

	if _, err := s.deps.Products.FindByID(ctx, productID); err != nil {
		return nil, storeErr(err, "Product")
	}
	exists, err := s.deps.Reviews.Exists(ctx, uid, orderID, productID)
	if err != nil {
		return nil, storeErr(err, "Review")
	}
	if exists {
		return nil, apperr.Conflict("You have already reviewed this product for this order")
	}

	name := ""
	if s.deps.Users != nil {
		if u, err := s.deps.Users.FindByID(ctx, uid); err == nil {
			name = u.FullName
		}
	}

	review := &models.Review{
		UserID:     uid,
		UserName:   name,
		ProductID:  productID,
		OrderID:    orderID,
		Rating:     in.Rating,
		Comment:    comment,
		IsVerified: true,
	}
	if err := s.deps.Reviews.Insert(ctx, review); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperr.Conflict("You have already reviewed this product for this order")
		}
		return nil, storeErr(err, "Review")
	}

	product, err := s.deps.Products.ApplyRating(ctx, productID, in.Rating)
	if err != nil {
		// Keep the aggregate and the review set in step.
		if derr := s.deps.Reviews.Delete(context.WithoutCancel(ctx), review.ID); derr != nil {
			logger.WithCtx(ctx).Error("review compensation failed",
				"review_id", review.ID.Hex(), "error", derr)
		}
		return nil, storeErr(err, "Product")
	}

	metrics.ReviewsCreated.WithLabelValues(strconv.Itoa(in.Rating)).Inc()
	logger.WithCtx(ctx).Info("review created",
		"product_id", productID.Hex(), "rating", in.Rating, "average", product.Ratings.Average)
	return &ReviewResult{Review: review, Ratings: product.Ratings}, nil
}

// ListForProduct pages through a product's reviews, newest first.
func (s *ReviewService) ListForProduct(ctx context.Context, productID string, p paging.Params) ([]models.Review, paging.Pagination, error) {
	pid, err := parseID(productID, "Product")
	if err != nil {
		return nil, paging.Pagination{}, err
	}
	list, total, err := s.deps.Reviews.ListByProduct(ctx, pid, p)
	if err != nil {
		return nil, paging.Pagination{}, storeErr(err, "Review")
	}
	return list, p.Result(total), nil
}
