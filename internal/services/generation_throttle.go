package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"paperdigest/internal/apierror"
)

// GenerationThrottle limits how many AI generations a user can start within a
// short window, independent of the monthly quota. Counters live in Redis when
// available so limits hold across instances; otherwise, or when Redis errors,
// a per-user token bucket in process memory is used.
type GenerationThrottle struct {
	redis  *redis.Client
	burst  int
	window time.Duration

	localLimiters *sync.Map // map[string]*rate.Limiter
}

// NewGenerationThrottle creates a throttle allowing burst generations per window.
// client may be nil.
func NewGenerationThrottle(client *redis.Client, burst int, window time.Duration) *GenerationThrottle {
	if burst < 1 {
		burst = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &GenerationThrottle{
		redis:         client,
		burst:         burst,
		window:        window,
		localLimiters: &sync.Map{},
	}
}

// Allow records one generation attempt and returns a RateLimited error when
// the user is over the burst limit
func (t *GenerationThrottle) Allow(ctx context.Context, userID string) error {
	if t.redis != nil {
		retryAfter, exceeded, err := t.checkRedis(ctx, userID)
		if err == nil {
			if exceeded {
				throttleRejections.WithLabelValues("redis").Inc()
				return apierror.RateLimited("Too many AI generations. Please wait before trying again.", retryAfter)
			}
			return nil
		}
		log.Printf("⚠️  [THROTTLE] Redis unavailable, using in-memory limiter: %v", err)
	}

	limiter := t.getOrCreateUserLimiter(userID)
	reservation := limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		throttleRejections.WithLabelValues("memory").Inc()
		return apierror.RateLimited("Too many AI generations. Please wait before trying again.", delay)
	}
	return nil
}

// Reset clears a user's counters
func (t *GenerationThrottle) Reset(ctx context.Context, userID string) error {
	t.localLimiters.Delete(userID)
	if t.redis == nil {
		return nil
	}
	return t.redis.Del(ctx, t.key(userID)).Err()
}

// checkRedis is a fixed-window counter: INCR, with the expiry set on the first hit
func (t *GenerationThrottle) checkRedis(ctx context.Context, userID string) (time.Duration, bool, error) {
	key := t.key(userID)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if count == 1 {
		if err := t.redis.Expire(ctx, key, t.window).Err(); err != nil {
			return 0, false, err
		}
	}

	if count <= int64(t.burst) {
		return 0, false, nil
	}

	ttl, err := t.redis.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		// Key lost its expiry; restore it so the user is not locked out
		t.redis.Expire(ctx, key, t.window)
		ttl = t.window
	}
	return ttl, true, nil
}

func (t *GenerationThrottle) key(userID string) string {
	return fmt.Sprintf("ai_generation:%s", userID)
}

// getOrCreateUserLimiter returns the in-memory bucket for a user: burst tokens,
// refilled evenly over the window
func (t *GenerationThrottle) getOrCreateUserLimiter(userID string) *rate.Limiter {
	if limiter, ok := t.localLimiters.Load(userID); ok {
		return limiter.(*rate.Limiter)
	}

	newLimiter := rate.NewLimiter(rate.Every(t.window/time.Duration(t.burst)), t.burst)
	actual, _ := t.localLimiters.LoadOrStore(userID, newLimiter)
	return actual.(*rate.Limiter)
}
