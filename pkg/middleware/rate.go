// Package middleware provides the HTTP middleware stack of the storefront API.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/cache"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/response"
)

// bucket is a fixed-window counter for one client on this instance.
type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

func (b *bucket) allow(max int, window time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(window)
	}

	b.count++
	return b.count <= max
}

type localLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
}

func newLocalLimiter(window time.Duration) *localLimiter {
	l := &localLimiter{buckets: map[string]*bucket{}, window: window}
	go l.evict()
	return l
}

func (l *localLimiter) evict() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		l.mu.Lock()
		for ip, b := range l.buckets {
			b.mu.Lock()
			expired := now.After(b.resetAt)
			b.mu.Unlock()
			if expired {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *localLimiter) allow(ip string, max int) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{resetAt: time.Now().Add(l.window)}
		l.buckets[ip] = b
	}
	l.mu.Unlock()
	return b.allow(max, l.window)
}

// allowShared counts in Redis so every instance shares one window per client.
func allowShared(ctx context.Context, ip string, max int, window time.Duration) (bool, error) {
	slot := time.Now().UnixNano() / int64(window)
	key := "storefront:rate:" + ip + ":" + strconv.FormatInt(slot, 10)

	pipe := cache.RDB.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(max), nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit limits each client IP to max requests per window. The counter
// lives in Redis when it is connected and falls back to process memory.
func RateLimit(max int, window time.Duration) func(http.Handler) http.Handler {
	local := newLocalLimiter(window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			allowed := true
			if cache.Connected() {
				ok, err := allowShared(r.Context(), ip, max, window)
				if err != nil {
					logger.WithCtx(r.Context()).Warn("rate limit: redis unavailable", "error", err)
					allowed = local.allow(ip, max)
				} else {
					allowed = ok
				}
			} else {
				allowed = local.allow(ip, max)
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				response.Error(w, apperr.KindRateLimited, "Too Many Requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
