// Package graphql exposes the public catalog as a read-only GraphQL API.
package graphql

import (
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/paging"
	gql "github.com/ourstore/storefront/pkg/graphql"
)

func product(src interface{}) *models.Product {
	switch p := src.(type) {
	case *models.Product:
		return p
	case models.Product:
		return &p
	}
	return nil
}

func review(src interface{}) *models.Review {
	switch r := src.(type) {
	case *models.Review:
		return r
	case models.Review:
		return &r
	}
	return nil
}

// publicErr hides internal causes from API clients.
func publicErr(p graphql.ResolveParams, err error) error {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		return errors.New(e.Message)
	}
	logger.WithCtx(p.Context).Error("graphql resolver failed", "field", p.Info.FieldName, "error", err)
	return errors.New("Internal Server Error")
}

var ratingsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Ratings",
	Fields: graphql.Fields{
		"average": &graphql.Field{Type: graphql.Float},
		"count":   &graphql.Field{Type: graphql.Int},
	},
})

var productType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Product",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return product(p.Source).ID.Hex(), nil
			},
		},
		"title":       &graphql.Field{Type: graphql.String},
		"description": &graphql.Field{Type: graphql.String},
		"price":       &graphql.Field{Type: graphql.Float},
		"discountPrice": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if d := product(p.Source).DiscountPrice; d != nil {
					return *d, nil
				}
				return nil, nil
			},
		},
		"unitPrice": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return product(p.Source).UnitPrice(), nil
			},
		},
		"category":    &graphql.Field{Type: graphql.String},
		"subcategory": &graphql.Field{Type: graphql.String},
		"images":      &graphql.Field{Type: graphql.NewList(graphql.String)},
		"tags":        &graphql.Field{Type: graphql.NewList(graphql.String)},
		"inStock": &graphql.Field{
			Type: graphql.Boolean,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return product(p.Source).Stock > 0, nil
			},
		},
		"isFeatured":     &graphql.Field{Type: graphql.Boolean},
		"isCustomizable": &graphql.Field{Type: graphql.Boolean},
		"ratings": &graphql.Field{
			Type: ratingsType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return product(p.Source).Ratings, nil
			},
		},
	},
})

var reviewType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Review",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return review(p.Source).ID.Hex(), nil
			},
		},
		"userName": &graphql.Field{Type: graphql.String},
		"rating":   &graphql.Field{Type: graphql.Int},
		"comment":  &graphql.Field{Type: graphql.String},
		"createdAt": &graphql.Field{
			Type: graphql.DateTime,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return review(p.Source).CreatedAt, nil
			},
		},
	},
})

func pageArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"page":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
		"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: paging.DefaultLimit},
	}
}

func pageFrom(args map[string]interface{}) paging.Params {
	page, _ := args["page"].(int)
	limit, _ := args["limit"].(int)
	return paging.New(page, limit)
}

// NewCatalogSchema builds the schema:
//
//	products(category, search, featured, page, limit): [Product]
//	product(id): Product
//	reviews(productId, page, limit): [Review]
func NewCatalogSchema(catalog *services.CatalogService, reviews *services.ReviewService) (graphql.Schema, error) {
	productsArgs := pageArgs()
	productsArgs["category"] = &graphql.ArgumentConfig{Type: graphql.String}
	productsArgs["search"] = &graphql.ArgumentConfig{Type: graphql.String}
	productsArgs["featured"] = &graphql.ArgumentConfig{Type: graphql.Boolean}

	reviewsArgs := pageArgs()
	reviewsArgs["productId"] = &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"products": &graphql.Field{
				Type: graphql.NewList(productType),
				Args: productsArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := services.CatalogQuery{Page: pageFrom(p.Args)}
					q.Category, _ = p.Args["category"].(string)
					q.Search, _ = p.Args["search"].(string)
					if f, ok := p.Args["featured"].(bool); ok {
						q.Featured = &f
					}
					list, _, err := catalog.List(p.Context, q)
					if err != nil {
						return nil, publicErr(p, err)
					}
					return list, nil
				},
			},
			"product": &graphql.Field{
				Type: productType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["id"].(string)
					prod, err := catalog.Get(p.Context, id, false)
					if err != nil {
						return nil, publicErr(p, err)
					}
					return prod, nil
				},
			},
			"reviews": &graphql.Field{
				Type: graphql.NewList(reviewType),
				Args: reviewsArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["productId"].(string)
					list, _, err := reviews.ListForProduct(p.Context, id, pageFrom(p.Args))
					if err != nil {
						return nil, publicErr(p, err)
					}
					return list, nil
				},
			},
		},
	})
	return gql.NewSchema(query)
}
