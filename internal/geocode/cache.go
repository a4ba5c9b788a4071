package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/pinreport/internal/metrics"
	"github.com/golang/geo/s2"
	"github.com/redis/go-redis/v9"
)

const (
	// CacheCellLevel is the S2 level used to bucket pins. Level 16 cells are
	// roughly 150m across, well inside any jurisdiction boundary tolerance.
	CacheCellLevel = 16

	// DefaultCacheTTL is how long a cached lookup stays valid.
	DefaultCacheTTL = 30 * 24 * time.Hour

	cacheKeyPrefix = "geocode:"
)

// Cache stores reverse geocoding results.
type Cache interface {
	// Get returns the cached result, or ok=false on a miss.
	Get(ctx context.Context, key string) (result *Result, ok bool, err error)
	Set(ctx context.Context, key string, result *Result, ttl time.Duration) error
}

// CellKey returns the cache key for a point: the token of its enclosing S2
// cell at CacheCellLevel.
func CellKey(lat, lng float64) string {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(CacheCellLevel)
	return cell.ToToken()
}

// =============================================================================
// CachedGeocoder
// =============================================================================

// CachedGeocoder wraps a Geocoder with a Cache. Cache failures are logged
// and bypassed; they never fail a lookup.
type CachedGeocoder struct {
	next   Geocoder
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGeocoder creates a caching decorator around next.
func NewCachedGeocoder(next Geocoder, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGeocoder{next: next, cache: cache, ttl: ttl, logger: logger}
}

// ReverseGeocode serves from cache when possible, otherwise delegates and
// stores the result.
func (g *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*Result, error) {
	key := CellKey(lat, lng)

	cached, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("geocode cache read failed", "key", key, "error", err)
	} else if ok {
		metrics.GeocodeLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}

	result, err := g.next.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.GeocodeLookups.WithLabelValues("miss").Inc()

	if err := g.cache.Set(ctx, key, result, g.ttl); err != nil {
		g.logger.Warn("geocode cache write failed", "key", key, "error", err)
	}

	return result, nil
}

var _ Geocoder = (*CachedGeocoder)(nil)

// =============================================================================
// RedisCache
// =============================================================================

// RedisCache stores results as JSON strings in Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed Cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	payload, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached result: %w", err)
	}
	return &result, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, result *Result, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}
