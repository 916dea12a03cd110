package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RateLimiter is satisfied by ratelimit.RedisRateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, workspaceID string, limit int) (ratelimit.Decision, error)
}

// RateLimitMiddleware enforces rate limiting per workspace. It must run
// after WorkspaceMiddleware. Limiter failures let the request through.
func RateLimitMiddleware(limiter RateLimiter, limitPerMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			workspaceID, ok := GetWorkspaceID(ctx)
			if !ok {
				log.Error(ctx, "workspace not found in context for rate limiting",
					logger.Module("ratelimit"), logger.Action("check"))
				httperr.InternalError(w, ctx)
				return
			}

			decision, err := limiter.Allow(ctx, workspaceID, limitPerMin)
			if err != nil {
				log.Warn(ctx, "rate limit check failed, allowing request",
					logger.Module("ratelimit"), logger.Action("check"), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				trace.SpanFromContext(ctx).AddEvent("rate_limit_exceeded")

				log.Warn(ctx, "rate limit exceeded",
					logger.Module("ratelimit"),
					logger.Action("reject"),
					zap.Int("limit", limitPerMin),
				)

				httperr.TooManyRequests429(w, ctx, "rate limit exceeded", time.Until(decision.ResetAt))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
