// Package paging turns page/limit query parameters into Mongo find options
// and the pagination block returned to clients.
package paging

import (
	"net/http"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit well inside int64 on every platform.
	MaxPage = 1_000_000
)

// Params is a normalised page request. Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// Pagination is the metadata block sent alongside a page of items.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

// New clamps page and limit into valid ranges.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

// FromRequest reads ?page= and ?limit=, ignoring unparsable values.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return New(page, limit)
}

func (p Params) Skip() int64 { return int64(p.Page-1) * int64(p.Limit) }

// FindOptions returns skip/limit options sorted newest first.
func (p Params) FindOptions() *options.FindOptions {
	return options.Find().
		SetSkip(p.Skip()).
		SetLimit(int64(p.Limit)).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})
}

// Result builds the pagination block for total matching documents.
func (p Params) Result(total int64) Pagination {
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return Pagination{Total: total, Page: p.Page, Limit: p.Limit, TotalPages: pages}
}
