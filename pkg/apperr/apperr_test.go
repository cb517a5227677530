package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/stretchr/testify/assert"
)

func TestKindOfFollowsWrapChain(t *testing.T) {
	err := fmt.Errorf("place order: %w", apperr.InsufficientStock("only %d left", 2))
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("boom")))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(nil))
}

func TestIsMatchesKindIgnoringMessage(t *testing.T) {
	err := fmt.Errorf("cancel: %w", apperr.InvalidState("order already shipped"))
	assert.ErrorIs(t, err, apperr.InvalidState(""))
	assert.NotErrorIs(t, err, apperr.NotFound(""))
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := apperr.Internal(cause, "insert order")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Internal: insert order: socket closed", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindNotFound:          http.StatusNotFound,
		apperr.KindValidation:        http.StatusUnprocessableEntity,
		apperr.KindInsufficientStock: http.StatusBadRequest,
		apperr.KindInvalidState:      http.StatusBadRequest,
		apperr.KindForbidden:         http.StatusForbidden,
		apperr.KindUnauthorized:      http.StatusUnauthorized,
		apperr.KindConflict:          http.StatusConflict,
		apperr.KindRateLimited:       http.StatusTooManyRequests,
		apperr.KindMethodNotAllowed:  http.StatusMethodNotAllowed,
		apperr.KindUnavailable:       http.StatusServiceUnavailable,
		apperr.KindInternal:          http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, apperr.HTTPStatus(kind), kind)
	}
}

func TestValidationFields(t *testing.T) {
	e, ok := apperr.As(apperr.ValidationFields(map[string]string{"items": "required"}))
	assert.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "required", e.Fields["items"])
}
