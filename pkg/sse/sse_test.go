package sse_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ourstore/storefront/pkg/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToTopicOnly(t *testing.T) {
	b := sse.NewBroker(4)
	a, cancelA := b.Subscribe("order-a")
	defer cancelA()
	other, cancelOther := b.Subscribe("order-b")
	defer cancelOther()

	n := b.Publish("order-a", sse.Message{Event: "order.status_changed", Data: "Shipped"})
	assert.Equal(t, 1, n)

	msg := <-a
	assert.Equal(t, "order.status_changed", msg.Event)
	assert.Equal(t, "Shipped", msg.Data)
	assert.Empty(t, other)
}

func TestBrokerCancelClosesAndForgets(t *testing.T) {
	b := sse.NewBroker(1)
	ch, cancel := b.Subscribe("order-a")
	assert.Equal(t, 1, b.Subscribers("order-a"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers("order-a"))
	assert.Equal(t, 0, b.Publish("order-a", sse.Message{Event: "x"}))
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := sse.NewBroker(1)
	_, cancel := b.Subscribe("order-a")
	defer cancel()

	assert.Equal(t, 1, b.Publish("order-a", sse.Message{Event: "first"}))
	assert.Equal(t, 0, b.Publish("order-a", sse.Message{Event: "second"}))
}

func TestStreamWritesEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/track", nil)

	s, err := sse.New(rec, req)
	require.NoError(t, err)
	require.NoError(t, s.Send("order", map[string]string{"status": "Pending"}))
	require.NoError(t, s.Comment("ping"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: order\ndata: {\"status\":\"Pending\"}\n\n: ping\n\n", rec.Body.String())
}

type plainWriter struct{ http.ResponseWriter }

func TestStreamNeedsFlusher(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/track", nil).WithContext(context.Background())
	_, err := sse.New(plainWriter{httptest.NewRecorder()}, req)
	assert.ErrorIs(t, err, sse.ErrUnsupported)
}
