// Package logger wraps zap with the fields every weldflow log line carries:
// service, request, workspace and user scope, plus the module/action pair
// used to slice logs per operation.
package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"weldflow-api/internal/observability/requestid"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	loggerContextKey      contextKey = "logger"
	workspaceIDContextKey contextKey = "workspace_id"
	userIDContextKey      contextKey = "user_id"
	rootErrorContextKey   contextKey = "root_err"
)

const unknown = "unknown"

type rootErrorContainer struct {
	err error
}

// Logger enforces the structured fields above on top of zap.
type Logger struct {
	zap         *zap.Logger
	serviceName string
}

type Field = zapcore.Field

// redactedKeys never reach the output with their value. Welder identity
// documents are covered alongside credentials and contact data.
var redactedKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"password":      {},
	"secret":        {},
	"api_key":       {},
	"database_url":  {},
	"redis_url":     {},
	"jwt":           {},
	"bearer":        {},
	"credential":    {},
	"email":         {},
	"phone":         {},
	"full_name":     {},
	"address":       {},
	"id_number":     {},
	"id_card":       {},
	"national_id":   {},
}

// New builds a JSON logger writing to stdout. Unknown levels fall back to info.
func New(serviceName string, level string) (*Logger, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("serviceName is required")
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	z, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &Logger{zap: z.With(zap.String("service", serviceName)), serviceName: serviceName}, nil
}

// NewWithCore builds a Logger over an arbitrary core (zaptest/observer in tests).
func NewWithCore(serviceName string, core zapcore.Core) *Logger {
	return &Logger{
		zap:         zap.New(core).With(zap.String("service", serviceName)),
		serviceName: serviceName,
	}
}

func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), serviceName: "nop"}
}

// WithContext binds the request scope of ctx to the returned logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := scopeFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return &Logger{zap: l.zap.With(fields...), serviceName: l.serviceName}
}

func Module(name string) Field { return zap.String("module", name) }

func Action(name string) Field { return zap.String("action", name) }

// Kind tags a business record kind (wps, pqr, material...).
func Kind(kind string) Field { return zap.String("record_kind", kind) }

func WorkspaceType(t string) Field { return zap.String("workspace_type", t) }

func RecordID(id string) Field { return zap.String("record_id", id) }

func InstanceID(id string) Field { return zap.String("instance_id", id) }

func WorkflowID(id string) Field { return zap.String("workflow_id", id) }

func Tier(tier string) Field { return zap.String("tier", tier) }

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}

	all := scopeFields(ctx)
	var hasModule, hasAction bool
	for _, f := range fields {
		switch f.Key {
		case "module":
			hasModule = true
		case "action":
			hasAction = true
		}
		all = append(all, redact(f))
	}
	// module/action are mandatory; a missing one degrades to "unknown"
	if !hasModule {
		all = append(all, zap.String("module", unknown))
	}
	if !hasAction {
		all = append(all, zap.String("action", unknown))
	}
	ce.Write(all...)
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func scopeFields(ctx context.Context) []Field {
	fields := make([]Field, 0, 3)
	if id := GetRequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetWorkspaceIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("workspace_id", id))
	}
	if id := GetUserIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("user_id", id))
	}
	return fields
}

func redact(f Field) Field {
	if _, ok := redactedKeys[strings.ToLower(f.Key)]; ok {
		return zap.String(f.Key, "[REDACTED]")
	}
	return f
}

func parseLevel(level string) zapcore.Level {
	if strings.EqualFold(level, "warning") {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func GetRequestIDFromContext(ctx context.Context) string {
	return requestid.GetRequestID(ctx)
}

func GetWorkspaceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(workspaceIDContextKey).(string)
	return id
}

func GetUserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey).(string)
	return id
}

func SetRequestIDInContext(ctx context.Context, requestID string) context.Context {
	return requestid.SetRequestID(ctx, requestID)
}

func SetWorkspaceIDInContext(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceIDContextKey, workspaceID)
}

func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// GetLogger returns the request logger, or a shared info-level logger when
// ctx was not prepared by the HTTP middleware (CLI commands, tests).
func GetLogger(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return l
	}
	fallbackOnce.Do(func() {
		l, err := New("weldflow-api", "info")
		if err != nil {
			l = Nop()
		}
		fallback = l
	})
	return fallback
}

func SetLoggerInContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// InitRootErrorContext installs a mutable slot so handlers can report the
// root cause of a 5xx to the logging middleware that wraps them.
func InitRootErrorContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, rootErrorContextKey, &rootErrorContainer{})
}

// SetRootError is a no-op without InitRootErrorContext.
func SetRootError(ctx context.Context, err error) {
	if container, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		container.err = err
	}
}

func GetRootError(ctx context.Context) error {
	if container, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		return container.err
	}
	return nil
}
