package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RedisRateLimiter is a sliding-window limiter keyed by workspace id.
// Personal and enterprise workspaces get independent windows.
type RedisRateLimiter struct {
	client              redis.Cmdable
	window              time.Duration
	rateLimitRejections metric.Int64Counter
}

// NewRedisRateLimiter creates a limiter with a one minute window.
func NewRedisRateLimiter(client redis.Cmdable, rateLimitRejections metric.Int64Counter) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:              client,
		window:              time.Minute,
		rateLimitRejections: rateLimitRejections,
	}
}

func windowKey(workspaceID string) string {
	return "weldflow:ratelimit:" + workspaceID
}

// Allow records one request for workspaceID and reports whether it fits in
// the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, workspaceID string, limit int) (Decision, error) {
	now := time.Now()
	windowStart := now.Add(-rl.window)
	key := windowKey(workspaceID)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit count: %w", err)
	}

	d := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   now.Add(rl.window),
	}

	if !d.Allowed && rl.rateLimitRejections != nil {
		rl.rateLimitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("workspace_id", workspaceID)))
	}
	return d, nil
}
