package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/requestctx"
)

const (
	defaultIdleTTL   = 10 * time.Minute
	defaultPruneSize = 1024
)

// KeyedLimiter applies an independent token bucket to each key (client IP, session or staff
// uid). Buckets idle for longer than the idle TTL are evicted.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Option customises a KeyedLimiter.
type Option func(*KeyedLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *KeyedLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIdleTTL sets how long an unused bucket is retained.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *KeyedLimiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// PerMinute constructs a limiter admitting perMinute events per key with the given burst.
// A non-positive perMinute disables limiting and returns nil.
func PerMinute(perMinute, burst int, opts ...Option) *KeyedLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	l := &KeyedLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Allow reports whether an event for key may happen now and consumes a token if so.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= defaultPruneSize {
			l.pruneLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Prune evicts idle buckets and returns how many were removed.
func (l *KeyedLimiter) Prune() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.now())
}

func (l *KeyedLimiter) pruneLocked(now time.Time) int {
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// retryAfter is the wait for one token to be replenished.
func (l *KeyedLimiter) retryAfter() time.Duration {
	if l.limit <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// KeyFunc derives the limiter key from a request.
type KeyFunc func(r *http.Request) string

// ByRequester keys by staff uid, session or client IP, in that order.
func ByRequester(r *http.Request) string {
	requester, _ := requestctx.RequesterFrom(r.Context())
	return requester.Key()
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (l *KeyedLimiter) Middleware(keyFn KeyFunc, onLimited func(r *http.Request)) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ByRequester
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(keyFn(r)) {
				next.ServeHTTP(w, r)
				return
			}
			if onLimited != nil {
				onLimited(r)
			}
			seconds := int(l.retryAfter().Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, try again shortly", http.StatusTooManyRequests))
		})
	}
}
