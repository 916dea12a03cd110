package database

import (
	"context"
	"strings"
	"time"

	"weldflow-api/internal/observability/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// slowQueryTracer logs statements slower than threshold. Arguments are never
// logged since they carry tenant data.
type slowQueryTracer struct {
	threshold time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func (t *slowQueryTracer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.clock(), sql: data.SQL})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := t.clock().Sub(start.at)
	if elapsed < t.threshold {
		return
	}

	fields := []zap.Field{
		logger.Module("database"),
		logger.Action("slow_query"),
		zap.String("sql", compactSQL(start.sql)),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", data.CommandTag.RowsAffected()),
	}
	if data.Err != nil {
		fields = append(fields, zap.Error(data.Err))
	}
	t.log.Warn(ctx, "slow query", fields...)
}

// compactSQL collapses whitespace and caps the statement length.
func compactSQL(sql string) string {
	const maxLen = 300
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
