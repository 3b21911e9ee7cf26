package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/moolen/ferry/internal/database"

// Querier is the subset of *pgxpool.Pool used by the queries. *Pool and
// *pgxpool.Pool both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*Pool)(nil)

const (
	getDateSQL = `SELECT NOW() AS now`

	getWeekSQL = `
		SELECT date
		FROM generate_series(
			NOW() - '6 day'::interval,
			NOW(),
			'1 day'::interval
		) AS date`

	updateSomeTableSQL = `
		UPDATE some_table
		SET some_field = 1
		WHERE id = $1`
)

func startSpan(ctx context.Context, name, statement string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", statement),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetDate returns the database server's current time.
func GetDate(ctx context.Context, q Querier) (now time.Time, err error) {
	ctx, span := startSpan(ctx, "db.GetDate", getDateSQL)
	defer func() { endSpan(span, err) }()

	if err = q.QueryRow(ctx, getDateSQL).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("get date: %w", err)
	}
	return now, nil
}

// GetWeek returns the seven days ending with the server's current time,
// oldest first.
func GetWeek(ctx context.Context, q Querier) (week []time.Time, err error) {
	ctx, span := startSpan(ctx, "db.GetWeek", getWeekSQL)
	defer func() { endSpan(span, err) }()

	rows, err := q.Query(ctx, getWeekSQL)
	if err != nil {
		return nil, fmt.Errorf("get week: %w", err)
	}
	week, err = pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("get week: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(week)))
	return week, nil
}

// UpdateSomeTable marks the row with the given id.
func UpdateSomeTable(ctx context.Context, q Querier, id int64) (err error) {
	ctx, span := startSpan(ctx, "db.UpdateSomeTable", updateSomeTableSQL)
	defer func() { endSpan(span, err) }()

	if _, err = q.Exec(ctx, updateSomeTableSQL, id); err != nil {
		return fmt.Errorf("update some_table: %w", err)
	}
	return nil
}
