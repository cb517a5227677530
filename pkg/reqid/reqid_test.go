package reqid_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourstore/storefront/pkg/reqid"
)

func serve(t *testing.T, incoming string) (header, seen string) {
	t.Helper()
	h := reqid.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = reqid.FromCtx(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(reqid.Header, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Header().Get(reqid.Header), seen
}

func TestMiddlewareMintsULID(t *testing.T) {
	header, seen := serve(t, "")
	require.NotEmpty(t, header)
	assert.Equal(t, header, seen)
	_, err := ulid.ParseStrict(header)
	assert.NoError(t, err)
}

func TestMiddlewareKeepsUpstreamID(t *testing.T) {
	header, seen := serve(t, "gateway-7f3a9c21")
	assert.Equal(t, "gateway-7f3a9c21", header)
	assert.Equal(t, "gateway-7f3a9c21", seen)
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	header, _ := serve(t, "bad id\nlevel=ERROR")
	assert.NotEqual(t, "bad id\nlevel=ERROR", header)
	_, err := ulid.ParseStrict(header)
	assert.NoError(t, err)
}

func TestNewIsMonotonic(t *testing.T) {
	a, b := reqid.New(), reqid.New()
	assert.Less(t, a, b)
}
