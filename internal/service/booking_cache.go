package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garasku/garasku-api/internal/models"
)

// BookingCache is a best-effort read-through cache over booking lookups.
// Every miss or Redis error falls back to the database; a write invalidates
// the single cached entry.
type BookingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewBookingCache returns a cache bound to client, or nil when client is nil
// so callers can hold a nil *BookingCache safely.
func NewBookingCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *BookingCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingCache{client: client, ttl: ttl, logger: logger}
}

func bookingCacheKey(id string) string {
	return fmt.Sprintf("booking:%s", id)
}

// Get returns the cached booking or nil on miss.
func (c *BookingCache) Get(ctx context.Context, id string) *models.Booking {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, bookingCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("booking cache read failed", zap.String("booking_id", id), zap.Error(err))
		}
		return nil
	}
	var booking models.Booking
	if err := json.Unmarshal(raw, &booking); err != nil {
		c.logger.Warn("booking cache entry corrupt", zap.String("booking_id", id), zap.Error(err))
		_ = c.client.Del(ctx, bookingCacheKey(id)).Err()
		return nil
	}
	return &booking
}

// Set stores the booking for the configured TTL.
func (c *BookingCache) Set(ctx context.Context, booking *models.Booking) {
	if c == nil || booking == nil {
		return
	}
	raw, err := json.Marshal(booking)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, bookingCacheKey(booking.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Debug("booking cache write failed", zap.String("booking_id", booking.ID), zap.Error(err))
	}
}

// Invalidate drops the cached entry after a mutation.
func (c *BookingCache) Invalidate(ctx context.Context, id string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, bookingCacheKey(id)).Err(); err != nil {
		c.logger.Debug("booking cache invalidation failed", zap.String("booking_id", id), zap.Error(err))
	}
}
