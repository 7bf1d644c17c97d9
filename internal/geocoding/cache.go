package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const (
	defaultCacheTTL   = 24 * time.Hour
	defaultMissTTL    = time.Hour
	defaultKeyPrefix  = "geocode:"
	notFoundSentinel  = "-"
	cacheWriteTimeout = time.Second
)

// RedisClient is the subset of go-redis used by the cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedGeocoder memoises a Geocoder in Redis. Misses are cached for a shorter period; Redis
// failures fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next    services.Geocoder
	client  RedisClient
	ttl     time.Duration
	missTTL time.Duration
	prefix  string
	logger  *zap.Logger
}

var _ services.Geocoder = (*CachedGeocoder)(nil)

// CacheOption customises CachedGeocoder.
type CacheOption func(*CachedGeocoder)

// WithCacheTTL sets how long positive answers are kept.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedGeocoder) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMissTTL sets how long not-found answers are kept.
func WithMissTTL(ttl time.Duration) CacheOption {
	return func(c *CachedGeocoder) {
		if ttl > 0 {
			c.missTTL = ttl
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *CachedGeocoder) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next services.Geocoder, client RedisClient, opts ...CacheOption) (*CachedGeocoder, error) {
	if next == nil {
		return nil, errors.New("geocoding cache: geocoder is required")
	}
	if client == nil {
		return nil, errors.New("geocoding cache: redis client is required")
	}
	c := &CachedGeocoder{
		next:    next,
		client:  client,
		ttl:     defaultCacheTTL,
		missTTL: defaultMissTTL,
		prefix:  defaultKeyPrefix,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type cachedResult struct {
	City     string `json:"city"`
	Province string `json:"province"`
}

func (c *CachedGeocoder) Geocode(ctx context.Context, postalCode string) (services.GeocodeResult, error) {
	key := c.prefix + postalCode
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == notFoundSentinel {
			return services.GeocodeResult{}, services.ErrGeocodeNotFound
		}
		var cached cachedResult
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return services.GeocodeResult{City: cached.City, Province: cached.Province}, nil
		}
		c.logger.Warn("geocode cache entry unreadable", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
	}

	result, err := c.next.Geocode(ctx, postalCode)
	switch {
	case err == nil:
		payload, _ := json.Marshal(cachedResult{City: result.City, Province: result.Province})
		c.store(ctx, key, payload, c.ttl)
	case errors.Is(err, services.ErrGeocodeNotFound):
		c.store(ctx, key, []byte(notFoundSentinel), c.missTTL)
	}
	return result, err
}

func (c *CachedGeocoder) store(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
}
