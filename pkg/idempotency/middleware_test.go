package idempotency_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counted struct {
	calls  atomic.Int32
	status int
	gate   chan struct{}
}

func (c *counted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	w.Write([]byte(`{"call":` + strconv.Itoa(int(n)) + `}`))
}

func post(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotency.Header, key)
	}
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: "u1"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReplayReturnsStoredResponse(t *testing.T) {
	next := &counted{status: http.StatusCreated}
	h := idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour)(next)

	first := post(h, "k1", `{"items":[]}`)
	second := post(h, "k1", `{"items":[]}`)

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(idempotency.ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Empty(t, first.Header().Get(idempotency.ReplayedHeader))
}

func TestOversizedBodyIsRejectedBeforeReserving(t *testing.T) {
	config.Set("MAX_BODY_BYTES", "64")
	t.Cleanup(func() { config.Set("MAX_BODY_BYTES", "") })

	next := &counted{status: http.StatusCreated}
	store := idempotency.NewMemoryStore()
	h := idempotency.Middleware(store, time.Hour)(next)

	rec := post(h, "big", `{"notes":"`+strings.Repeat("x", 1024)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"ValidationError"`)
	assert.Contains(t, rec.Body.String(), "too large")
	assert.Equal(t, int32(0), next.calls.Load())

	rec = post(h, "big", `{"items":[]}`)
	assert.Equal(t, http.StatusCreated, rec.Code, "the key was never taken")
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestNoKeyPassesThrough(t *testing.T) {
	next := &counted{status: http.StatusCreated}
	h := idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour)(next)

	post(h, "", `{}`)
	post(h, "", `{}`)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestKeyReusedWithDifferentBody(t *testing.T) {
	next := &counted{status: http.StatusCreated}
	h := idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour)(next)

	post(h, "k1", `{"a":1}`)
	rec := post(h, "k1", `{"a":2}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"ValidationError"`)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestConcurrentDuplicateConflicts(t *testing.T) {
	next := &counted{status: http.StatusCreated, gate: make(chan struct{})}
	h := idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour)(next)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		post(h, "k1", `{}`)
	}()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)

	rec := post(h, "k1", `{}`)
	close(next.gate)
	wg.Wait()

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"Conflict"`)
}

func TestServerErrorReleasesKey(t *testing.T) {
	next := &counted{status: http.StatusInternalServerError}
	h := idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour)(next)

	post(h, "k1", `{}`)
	next.status = http.StatusCreated
	rec := post(h, "k1", `{}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestMemoryStoreExpires(t *testing.T) {
	s := idempotency.NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Reserve(ctx, "k", "fp", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	_, ok, err = s.Reserve(ctx, "k", "fp", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
