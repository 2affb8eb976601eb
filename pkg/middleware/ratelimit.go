package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/response"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitConfig configures one rate limiter instance
type RateLimitConfig struct {
	// Rate in limiter format, e.g. "30-M" or "5-S"
	Rate string
	// RouteID namespaces the counters
	RouteID string
	// Redis backs the counters; nil falls back to process memory
	Redis *redis.Client
}

// RateLimit limits requests per authenticated user, or per client IP for
// anonymous callers.
func RateLimit(cfg *RateLimitConfig) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", cfg.Rate, err)
	}

	opts := limiter.StoreOptions{
		Prefix:          "rate_limiter:" + cfg.RouteID,
		MaxRetry:        3,
		CleanUpInterval: rate.Period,
	}

	var store limiter.Store
	if cfg.Redis != nil {
		store, err = redisstore.NewStoreWithOptions(cfg.Redis, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store for route %s: %w", cfg.RouteID, err)
		}
	} else {
		store = memorystore.NewStoreWithOptions(opts)
	}

	instance := limiter.New(store, rate)

	return ginmiddleware.NewMiddleware(instance,
		ginmiddleware.WithKeyGetter(rateLimitKey),
		ginmiddleware.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.NewError("RATE_LIMITED", "too many requests"))
		}),
		ginmiddleware.WithErrorHandler(func(c *gin.Context, err error) {
			// limiter backend down: fail open
			c.Next()
		}),
	), nil
}

func rateLimitKey(c *gin.Context) string {
	if userID, ok := GetUserID(c); ok {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
