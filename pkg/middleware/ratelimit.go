package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns rate limit settings for human sessions
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
	}
}

// APIKeyRateLimitConfig returns rate limit settings for machine keys
// (more generous, integrations batch)
func APIKeyRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 5000,
		WindowDuration:    time.Minute,
	}
}

// KeyRateLimiter implements rate limiting using Redis, shared across
// instances so a key's budget holds fleet-wide.
type KeyRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewKeyRateLimiter creates a new Redis-backed rate limiter
func NewKeyRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *KeyRateLimiter {
	if config == nil {
		config = APIKeyRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &KeyRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// Allow checks if a request is allowed for the given key
func (rl *KeyRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)

	_, err := pipe.Exec(ctx)
	if err != nil {
		// On Redis error, fail open (allow request) to prevent service
		// disruption; rate limiting is protection, not authorization.
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// KeyRateLimit limits requests per principal. API keys are limited by key
// id; humans by principal id.
func KeyRateLimit(limiter *KeyRateLimiter, log *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limitKey := string(p.Role) + ":" + p.ID
			if p.Role == tenancy.RoleAPIKey && p.Grant != nil {
				limitKey = "key:" + p.Grant.KeyID
			}

			allowed, err := limiter.Allow(r.Context(), limitKey)
			if err != nil {
				log.WithError(err).Warn("rate limiter unavailable, failing open")
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(limiter.config.WindowDuration.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
