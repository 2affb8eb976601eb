package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// availabilityKeyPrefix namespaces a room's version counter and its windows
const availabilityKeyPrefix = "availability:room:"

// AvailabilityCache caches a room's active stays per query window.
//
// Every room has a version that Invalidate bumps. GetStays reports the
// version it read under, and SetStays stores under that version only, so a
// result loaded before a write commits can never be served after it.
type AvailabilityCache interface {
	GetStays(ctx context.Context, roomID string, from, to time.Time) (stays []domain.Stay, version int64, ok bool, err error)
	SetStays(ctx context.Context, roomID string, version int64, from, to time.Time, stays []domain.Stay) error
	Invalidate(ctx context.Context, roomID string) error
}

// CacheClient is the subset of go-redis the cache needs
type CacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisAvailabilityCache keeps one key per room window, each with its own
// TTL, named by the room's current version.
type RedisAvailabilityCache struct {
	client CacheClient
	ttl    time.Duration
}

// NewRedisAvailabilityCache creates a cache whose windows expire after ttl
func NewRedisAvailabilityCache(client CacheClient, ttl time.Duration) *RedisAvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisAvailabilityCache{client: client, ttl: ttl}
}

// GetStays returns the cached stays; ok is false on a miss. version is
// valid whenever err is nil and is what a following SetStays must pass.
func (c *RedisAvailabilityCache) GetStays(ctx context.Context, roomID string, from, to time.Time) ([]domain.Stay, int64, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "cache.redis.availability.get")
	defer span.End()

	span.SetAttributes(attribute.String("room_id", roomID))

	version, err := c.version(ctx, roomID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, false, err
	}

	raw, err := c.client.Get(ctx, windowKey(roomID, version, from, to)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("cache_hit", false))
			return nil, version, false, nil
		}
		telemetry.RecordError(span, err)
		return nil, 0, false, err
	}

	var stays []domain.Stay
	if err := json.Unmarshal([]byte(raw), &stays); err != nil {
		return nil, 0, false, err
	}
	span.SetAttributes(attribute.Bool("cache_hit", true))
	return stays, version, true, nil
}

// SetStays caches stays for a window under version
func (c *RedisAvailabilityCache) SetStays(ctx context.Context, roomID string, version int64, from, to time.Time, stays []domain.Stay) error {
	data, err := json.Marshal(stays)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, windowKey(roomID, version, from, to), string(data), c.ttl).Err()
}

// Invalidate moves the room to a new version. Windows of older versions are
// never read again and expire on their own.
func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, roomID string) error {
	return c.client.Incr(ctx, versionKey(roomID)).Err()
}

func (c *RedisAvailabilityCache) version(ctx context.Context, roomID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(roomID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func versionKey(roomID string) string {
	return availabilityKeyPrefix + roomID + ":version"
}

func windowKey(roomID string, version int64, from, to time.Time) string {
	return availabilityKeyPrefix + roomID + ":v" + strconv.FormatInt(version, 10) + ":" +
		from.UTC().Format(time.RFC3339) + "|" + to.UTC().Format(time.RFC3339)
}
