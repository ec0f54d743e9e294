package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("too many attempts")

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redis *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis: redis,
	}
}

// CheckTopUp limits how often a user can start a payment order.
func (r *RateLimiter) CheckTopUp(ctx context.Context, userID string) error {
	key := fmt.Sprintf("topup_attempts:%s", userID)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}

	if count == 1 {
		r.redis.Expire(ctx, key, 15*time.Minute)
	}

	if count > 10 {
		return ErrTooManyAttempts
	}

	return nil
}

// MarkEventProcessed records a webhook event id and reports whether this is
// the first delivery. Duplicate deliveries (vendor retries) must not bill a
// call twice.
func (r *RateLimiter) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("webhook_event:%s", eventID)
	return r.redis.SetNX(ctx, key, 1, 24*time.Hour).Result()
}

// ResetAttempts clears a user's counter for an operation.
func (r *RateLimiter) ResetAttempts(ctx context.Context, userID, operation string) error {
	key := fmt.Sprintf("%s_attempts:%s", operation, userID)
	return r.redis.Del(ctx, key).Err()
}
