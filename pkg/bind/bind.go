// Package bind decodes and validates an HTTP request body into a struct.
package bind

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/validate"
)

// JSON decodes r.Body into dest and runs its validate tags. Every failure is
// an *apperr.Error of kind ValidationError; rule failures carry Fields.
func JSON(r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, config.MaxBodyBytes())

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperr.Validation("Request body too large (max %d bytes)", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return apperr.Validation("Request body is empty")
		default:
			return apperr.Wrap(apperr.KindValidation, err, "Invalid JSON body")
		}
	}

	return Validate(dest)
}

// Validate runs validate tags on an already populated value.
func Validate(v interface{}) error {
	if errs := validate.Struct(v); validate.HasErrors(errs) {
		return apperr.ValidationFields(errs)
	}
	return nil
}
