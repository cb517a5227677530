package event_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ourstore/storefront/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	mu  sync.Mutex
	got []string
}

func (s *seen) add(v string) {
	s.mu.Lock()
	s.got = append(s.got, v)
	s.mu.Unlock()
}

func (s *seen) sorted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.got...)
	sort.Strings(out)
	return out
}

func TestFireAsyncReachesNamedAndWildcardListeners(t *testing.T) {
	d := event.NewDispatcher(1)

	s := &seen{}
	d.Listen("order.placed", func(p interface{}) { s.add("named:" + p.(string)) })
	d.Listen("*", func(p interface{}) { s.add("any:" + p.(string)) })
	d.Listen("order.cancelled", func(interface{}) { t.Error("wrong event") })

	d.FireAsync("order.placed", "ORD-1")
	require.Eventually(t, func() bool { return len(s.sorted()) == 2 }, time.Second, time.Millisecond)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"any:ORD-1", "named:ORD-1"}, s.sorted())
}

func TestFireAsyncDelivers(t *testing.T) {
	d := event.NewDispatcher(2)

	var mu sync.Mutex
	count := 0
	d.Listen("order.placed", func(interface{}) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	for i := 0; i < 3; i++ {
		d.FireAsync("order.placed", i)
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, d.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count)
}
