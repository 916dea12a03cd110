package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/observability/requestid"
	"weldflow-api/internal/repo"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RequestIDMiddleware reads X-Request-Id or generates one, stores it in the
// context and echoes it on the response. Oversized or non-printable ids from
// clients are replaced.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestid.Accept(r.Header.Get("X-Request-Id"))
		ctx := requestid.SetRequestID(r.Context(), reqID)
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLoggingMiddleware writes one line per request when it completes.
// Bodies and auth headers are never logged. A 5xx adds an http_error line
// carrying the root cause recorded by the handler.
func RequestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			origin := repo.Origin{
				IPAddress: sanitizeRemoteAddr(r.RemoteAddr),
				UserAgent: sanitizeUserAgent(r.UserAgent()),
			}
			ctx := logger.SetLoggerInContext(r.Context(), log)
			ctx = logger.InitRootErrorContext(ctx)
			ctx = repo.WithOrigin(ctx, origin)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			route := getRoutePattern(r)
			fields := []zap.Field{
				logger.Module("http"),
				logger.Action("request"),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", wrapped.statusCode),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("remote_addr", origin.IPAddress),
				zap.String("user_agent", origin.UserAgent),
			}
			// URL params are filled in by the router once the request was routed
			if kind := chi.URLParamFromCtx(ctx, "kind"); kind != "" {
				fields = append(fields, logger.Kind(kind))
			}
			log.Info(ctx, "http request completed", fields...)

			if wrapped.statusCode < http.StatusInternalServerError {
				return
			}

			rootErr := logger.GetRootError(ctx)
			errFields := []zap.Field{
				logger.Module("http"),
				logger.Action("http_error"),
				zap.Int("status", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.String("kind", classifyError(rootErr)),
			}
			if rootErr == nil {
				errFields = append(errFields, zap.String("err", "internal server error (unspecified cause)"))
			} else {
				errFields = append(errFields, zap.String("err", rootErr.Error()))
				var pgErr *pgconn.PgError
				if errors.As(rootErr, &pgErr) {
					errFields = append(errFields, zap.String("pgcode", pgErr.Code))
				}
			}
			log.Error(ctx, "http_error", errFields...)
		})
	}
}

// panicError marks a root error that came from a recovered panic.
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// RecoveryMiddleware turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can abort the connection as intended.
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				logger.SetRootError(ctx, &panicError{value: rec})

				log.Error(ctx, "panic_recovered",
					logger.Module("http"),
					logger.Action("panic_recovery"),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", getRoutePattern(r)),
				)
				httperr.InternalError(w, ctx)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var sensitiveQueryKeys = map[string]struct{}{
	"token":        {},
	"access_token": {},
	"password":     {},
	"secret":       {},
	"api_key":      {},
}

// sanitizeQuery redacts credential-like params and truncates the rest.
// Search terms (q) stay visible since they only hold record codes and titles.
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err == nil {
		for key := range values {
			if _, ok := sensitiveQueryKeys[strings.ToLower(key)]; ok {
				values[key] = []string{"[REDACTED]"}
			}
		}
		query = values.Encode()
	}

	const maxLen = 200
	if len(query) > maxLen {
		return query[:maxLen] + "..."
	}
	return query
}

// sanitizeRemoteAddr drops the client port.
func sanitizeRemoteAddr(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func sanitizeUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) > maxLen {
		return ua[:maxLen] + "..."
	}
	return ua
}

// getRoutePattern prefers the chi pattern so ids do not explode log cardinality.
func getRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// classifyError buckets a root error for the http_error line.
func classifyError(err error) string {
	var (
		pErr  *panicError
		pgErr *pgconn.PgError
	)
	switch {
	case err == nil:
		return "unknown"
	case errors.As(err, &pErr):
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &pgErr):
		return "db"
	case strings.Contains(strings.ToLower(err.Error()), "scan"):
		return "scan"
	default:
		return "unknown"
	}
}
