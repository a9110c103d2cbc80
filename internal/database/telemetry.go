package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/irfndi/cryptopulse/internal/database"

// TracedDB wraps a DatabasePool and records a span and a debug log line per statement.
type TracedDB struct {
	Pool   DatabasePool
	tracer trace.Tracer
	logger logrus.FieldLogger
}

// NewTracedDB creates a new traced database connection
func NewTracedDB(pool DatabasePool, logger logrus.FieldLogger) *TracedDB {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TracedDB{
		Pool:   pool,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

// Query executes a query that returns rows
func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "db.query", sql)
	defer span.End()

	start := time.Now()
	rows, err := db.Pool.Query(ctx, sql, args...)
	db.finish(span, "Query", sql, start, err)
	return rows, err
}

// QueryRow executes a query that returns a single row
func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "db.query_row", sql)
	defer span.End()

	start := time.Now()
	row := db.Pool.QueryRow(ctx, sql, args...)
	db.finish(span, "QueryRow", sql, start, nil)
	return row
}

// Exec executes a query without returning rows
func (db *TracedDB) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "db.exec", sql)
	defer span.End()

	start := time.Now()
	tag, err := db.Pool.Exec(ctx, sql, arguments...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	db.finish(span, "Exec", sql, start, err)
	return tag, err
}

func (db *TracedDB) start(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation(sql)),
			attribute.String("db.statement", compact(sql)),
		),
	)
}

func (db *TracedDB) finish(span trace.Span, method, sql string, start time.Time, err error) {
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	db.logger.WithFields(logrus.Fields{
		"method":      method,
		"operation":   operation(sql),
		"duration_ms": duration.Milliseconds(),
	}).Debug("Database statement executed")
}

// operation returns the leading SQL verb.
func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func compact(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
