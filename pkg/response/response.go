package response

import (
	"encoding/json"
	"net/http"

	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/paging"
)

type envelope struct {
	Status  int         `json:"status"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// Success sends a 200 JSON response with data.
func Success(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusOK, envelope{Status: http.StatusOK, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusCreated, envelope{Status: http.StatusCreated, Data: data})
}

// Message sends a 200 response carrying only a message.
func Message(w http.ResponseWriter, message string, data interface{}) {
	write(w, http.StatusOK, envelope{Status: http.StatusOK, Message: message, Data: data})
}

// Error sends a JSON error response of the given kind.
func Error(w http.ResponseWriter, kind apperr.Kind, message string) {
	status := apperr.HTTPStatus(kind)
	write(w, status, envelope{Status: status, Kind: kind, Message: message})
}

// Fail renders any error through the error taxonomy. Internal errors are
// logged with their cause and reported with a generic message.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		logger.WithCtx(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, apperr.KindInternal, "Internal Server Error")
		return
	}
	if len(e.Fields) > 0 {
		write(w, http.StatusUnprocessableEntity, envelope{
			Status:  http.StatusUnprocessableEntity,
			Kind:    e.Kind,
			Message: e.Message,
			Errors:  e.Fields,
		})
		return
	}
	Error(w, e.Kind, e.Message)
}

// ValidationError sends a 422 with field-level error map.
func ValidationError(w http.ResponseWriter, errs map[string]string) {
	write(w, http.StatusUnprocessableEntity, envelope{
		Status:  http.StatusUnprocessableEntity,
		Kind:    apperr.KindValidation,
		Message: "Validation failed",
		Errors:  errs,
	})
}

// Paginated sends a 200 response with data and pagination metadata.
func Paginated(w http.ResponseWriter, data interface{}, pagination paging.Pagination) {
	body := map[string]interface{}{
		"items":      data,
		"pagination": pagination,
	}
	write(w, http.StatusOK, envelope{Status: http.StatusOK, Data: body})
}

// Unauthorized sends a 401.
func Unauthorized(w http.ResponseWriter) {
	Error(w, apperr.KindUnauthorized, "Unauthorized")
}

// Forbidden sends a 403.
func Forbidden(w http.ResponseWriter) {
	Error(w, apperr.KindForbidden, "Forbidden")
}

// NotFound sends a 404.
func NotFound(w http.ResponseWriter) {
	Error(w, apperr.KindNotFound, "Not found")
}
