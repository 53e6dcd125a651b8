package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Allowed   bool
}

// Limiter counts requests per key over a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// window approximates a sliding window from two fixed buckets: the previous
// bucket is weighted by how much of it still overlaps the sliding window.
type window struct {
	max  int
	size time.Duration
}

func (w window) decide(prev, curr float64, start, now time.Time) Decision {
	overlap := 1 - now.Sub(start).Seconds()/w.size.Seconds()
	effective := prev*max(overlap, 0) + curr
	d := Decision{
		Limit:   w.max,
		Reset:   start.Add(w.size),
		Allowed: effective <= float64(w.max),
	}
	if d.Allowed {
		d.Remaining = max(int(float64(w.max)-effective), 0)
	}
	return d
}

type bucket struct {
	prev, curr float64
	start      time.Time
}

// MemoryLimiter keeps counters in process memory. Use it for a single
// replica; run Run to evict idle keys.
type MemoryLimiter struct {
	w       window
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryLimiter allows max requests per key in each window.
func NewMemoryLimiter(maxRequests int, size time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		w:       window{max: maxRequests, size: size},
		buckets: make(map[string]*bucket),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.w.size)
	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &bucket{start: start}
		l.buckets[key] = b
	case start.Sub(b.start) == l.w.size:
		b.prev, b.curr, b.start = b.curr, 0, start
	case start.After(b.start):
		b.prev, b.curr, b.start = 0, 0, start
	}

	b.curr++
	return l.w.decide(b.prev, b.curr, b.start, now), nil
}

// Run evicts keys idle for two windows until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(2 * l.w.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *MemoryLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.start) >= 2*l.w.size {
			delete(l.buckets, key)
		}
	}
}

// RedisLimiter shares counters between replicas through Redis.
type RedisLimiter struct {
	rdb    redis.Cmdable
	w      window
	prefix string
}

// NewRedisLimiter allows max requests per key in each window.
func NewRedisLimiter(rdb redis.Cmdable, maxRequests int, size time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		w:      window{max: maxRequests, size: size},
		prefix: "rl:",
	}
}

func (l *RedisLimiter) bucketKey(key string, start time.Time) string {
	return l.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	start := now.Truncate(l.w.size)

	var (
		curr *redis.IntCmd
		prev *redis.StringCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		curr = p.Incr(ctx, l.bucketKey(key, start))
		p.Expire(ctx, l.bucketKey(key, start), 2*l.w.size)
		prev = p.Get(ctx, l.bucketKey(key, start.Add(-l.w.size)))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, errors.Wrap(err, "count request")
	}

	prevCount, err := prev.Float64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, errors.Wrap(err, "read previous window")
	}
	return l.w.decide(prevCount, float64(curr.Val()), start, now), nil
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter Limiter
	// KeyFunc extracts the rate limit key. Defaults to ClientIP, or to
	// ForwardedClientIP when TrustProxy is set.
	KeyFunc func(*http.Request) string
	// TrustProxy keys clients by X-Forwarded-For and X-Real-IP. Enable it
	// only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// RateLimit rejects requests over the limiter budget with 429 Too Many
// Requests. Every response carries X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset. Requests pass when the limiter fails.
func RateLimit(cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	switch {
	case keyFunc != nil:
	case cfg.TrustProxy:
		keyFunc = ForwardedClientIP
	default:
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Limiter.Allow(r.Context(), keyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
			if !d.Allowed {
				wait := max(d.Reset.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host of the connection peer.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ForwardedClientIP returns the first X-Forwarded-For address, then
// X-Real-IP, then ClientIP. Clients control these headers unless a proxy
// rewrites them.
func ForwardedClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return ClientIP(r)
}
