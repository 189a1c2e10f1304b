// Package ratelimit implements fixed-window request limiting on top of
// the shared cache. Counting is read-then-write rather than atomic, so
// concurrent requests near the limit can slightly overshoot it; windows
// are aligned to the epoch so every instance agrees on the bucket.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/formloom/formloom/internal/cache"
)

// Policy is a request budget per identity per window.
type Policy struct {
	Requests int
	Window   time.Duration
}

// Decision is the outcome of one Allow call. Remaining and ResetAt feed
// the X-RateLimit-* response headers; RetryAfter is set only on denial.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type Limiter struct {
	store cache.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewLimiter(store cache.Store, log *slog.Logger) *Limiter {
	return &Limiter{store: store, log: log, now: time.Now}
}

// WithClock replaces the limiter's time source. Tests use this to step
// across window boundaries without sleeping.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// WindowStart returns the epoch-millisecond start of the window
// containing now. All instances compute the same start for the same
// instant, which is what makes the counter shared.
func WindowStart(now time.Time, window time.Duration) int64 {
	ms := window.Milliseconds()
	return now.UnixMilli() / ms * ms
}

// Key builds the counter key for one identity, route, and window.
func Key(identity, routeKey string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", identity, routeKey, windowStart)
}

// Allow decides whether the request identified by identity may proceed
// under p for the given route. Store failures allow the request: an
// unavailable cache must not take submissions down with it.
func (l *Limiter) Allow(ctx context.Context, identity, routeKey string, p Policy) Decision {
	if p.Requests <= 0 {
		p.Requests = 10
	}
	if p.Window <= 0 {
		p.Window = 10 * time.Minute
	}

	now := l.now()
	start := WindowStart(now, p.Window)
	resetAt := time.UnixMilli(start).Add(p.Window)
	key := Key(identity, routeKey, start)

	count := 0
	val, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn("rate limit read failed, allowing request", "key", key, "error", err)
		return Decision{Allowed: true, Limit: p.Requests, Remaining: p.Requests - 1, ResetAt: resetAt}
	}
	if found {
		n, convErr := strconv.Atoi(val)
		if convErr != nil {
			l.log.Warn("rate limit counter is not a number, resetting", "key", key, "value", val)
		} else {
			count = n
		}
	}

	if count >= p.Requests {
		retry := resetAt.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{
			Allowed:    false,
			Limit:      p.Requests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retry,
		}
	}

	// TTL covers the rest of the window, rounded up so the counter never
	// dies before its window does.
	ttl := time.Duration((resetAt.Sub(now) + time.Second - 1) / time.Second * time.Second)
	if err := l.store.Set(ctx, key, strconv.Itoa(count+1), ttl); err != nil {
		l.log.Warn("rate limit write failed, allowing request", "key", key, "error", err)
	}

	return Decision{
		Allowed:   true,
		Limit:     p.Requests,
		Remaining: p.Requests - count - 1,
		ResetAt:   resetAt,
	}
}

// ClientIP resolves the identity of an unauthenticated caller. Proxy
// headers are consulted in trust order before falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client.
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
