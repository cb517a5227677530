// Package reqid tags every request with an ID that follows it through logs,
// error responses and queued jobs.
package reqid

import (
	"context"
	"crypto/rand"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ctxKey struct{}

// Header carries the ID in both directions.
const Header = "X-Request-ID"

// Upstream IDs are only trusted when they look like IDs; anything else
// could smuggle text into log lines.
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,128}$`)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID, so request IDs sort by arrival time.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func WithValue(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromCtx returns "" when ctx carries no ID.
func FromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Middleware reuses a well-formed incoming X-Request-ID or mints one, then
// echoes it on the response.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if !validID.MatchString(id) {
				id = New()
			}
			w.Header().Set(Header, id)
			next.ServeHTTP(w, r.WithContext(WithValue(r.Context(), id)))
		})
	}
}
