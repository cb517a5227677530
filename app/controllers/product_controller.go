package controllers

import (
	"bufio"
	"errors"
	"net/http"

	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/ctx"
)

const maxImageBytes = 5 << 20

type ProductController struct {
	catalog *services.CatalogService
}

func NewProductController(catalog *services.CatalogService) *ProductController {
	return &ProductController{catalog: catalog}
}

func (pc *ProductController) Index(c *ctx.Context) {
	list, page, err := pc.catalog.List(c.Context(), services.CatalogQuery{
		Category: c.Query("category"),
		Search:   c.Query("q"),
		Featured: c.QueryBool("featured"),
		Page:     c.Page(),
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Paginated(list, page)
}

func (pc *ProductController) Show(c *ctx.Context) {
	admin := false
	if p, ok := c.Principal(); ok {
		admin = p.IsAdmin()
	}
	product, err := pc.catalog.Get(c.Context(), c.Param("id"), admin)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(product)
}

func (pc *ProductController) Store(c *ctx.Context) {
	var in services.ProductInput
	if !c.BindJSON(&in) {
		return
	}
	product, err := pc.catalog.Create(c.Context(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(product)
}

func (pc *ProductController) Update(c *ctx.Context) {
	var in services.ProductUpdateInput
	if !c.BindJSON(&in) {
		return
	}
	product, err := pc.catalog.Update(c.Context(), c.Param("id"), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Message("Product updated", product)
}

// Destroy hides the product from the storefront.
func (pc *ProductController) Destroy(c *ctx.Context) {
	if err := pc.catalog.Delete(c.Context(), c.Param("id")); err != nil {
		c.Fail(err)
		return
	}
	c.Message("Product deleted", nil)
}

// UploadImage takes a multipart "image" field. The type is sniffed from
// the content, not taken from the client.
func (pc *ProductController) UploadImage(c *ctx.Context) {
	c.R.Body = http.MaxBytesReader(c.W, c.R.Body, maxImageBytes+1<<20)
	file, _, err := c.R.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.Fail(apperr.ValidationFields(map[string]string{"image": "The image must be at most 5 MB"}))
			return
		}
		c.Fail(apperr.ValidationFields(map[string]string{"image": "The image field is required"}))
		return
	}
	defer file.Close()

	br := bufio.NewReaderSize(file, 512)
	head, _ := br.Peek(512)
	product, err := pc.catalog.UploadImage(c.Context(), c.Param("id"), http.DetectContentType(head), br)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(product)
}
