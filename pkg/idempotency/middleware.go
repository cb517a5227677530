package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
	"github.com/ourstore/storefront/pkg/response"
)

const (
	Header         = "Idempotency-Key"
	ReplayedHeader = "Idempotent-Replayed"
	maxKeyLength   = 255
)

// Fingerprint identifies a request by method, path, caller and body.
func Fingerprint(r *http.Request, userID string, body []byte) string {
	h := sha256.New()
	io.WriteString(h, r.Method)
	h.Write([]byte{0})
	io.WriteString(h, r.URL.Path)
	h.Write([]byte{0})
	io.WriteString(h, userID)
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware applies idempotency to requests that carry the header.
// Requests without it pass straight through. It must run after the
// authentication middleware so the caller is part of the fingerprint.
//
// A store failure lets the request through unprotected; it is logged.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				response.Fail(w, r, apperr.ValidationFields(map[string]string{Header: "The key must be at most 255 characters"}))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxBodyBytes()))
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					response.Fail(w, r, apperr.Validation("Request body too large (max %d bytes)", maxErr.Limit))
					return
				}
				response.Fail(w, r, apperr.Validation("Could not read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var userID string
			if p, ok := auth.PrincipalFrom(r.Context()); ok {
				userID = p.UserID
			}
			fp := Fingerprint(r, userID, body)
			log := logger.WithCtx(r.Context())

			existing, reserved, err := store.Reserve(r.Context(), key, fp, ttl)
			if err != nil {
				log.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				replay(w, r, existing, fp)
				return
			}

			rec := &recorder{ResponseWriter: w}
			defer func() {
				bg := context.WithoutCancel(r.Context())
				if rec.status == 0 || rec.status >= http.StatusInternalServerError {
					if err := store.Release(bg, key); err != nil {
						log.Warn("idempotency release failed", "key", key, "error", err)
					}
					return
				}
				done := Record{
					Fingerprint: fp,
					Status:      rec.status,
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.body.Bytes(),
				}
				if err := store.Complete(bg, key, done, ttl); err != nil {
					log.Warn("idempotency save failed", "key", key, "error", err)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, rec *Record, fp string) {
	switch {
	case rec.Fingerprint != fp:
		response.Fail(w, r, apperr.ValidationFields(map[string]string{
			Header: "This key was already used for a different request",
		}))
	case !rec.Done:
		response.Fail(w, r, apperr.Conflict("A request with this Idempotency-Key is still being processed"))
	default:
		metrics.IdempotentReplays.Inc()
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(rec.Status)
		w.Write(rec.Body)
	}
}
