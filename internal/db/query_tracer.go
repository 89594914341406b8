package db

import (
	"context"
	"errors"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type querySpanContextKey struct{}

// queryTracer opens a child span per statement when the caller is already
// inside a sentry transaction.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	query := normalizeQuery(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithDescription(query),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")

	operation := queryOperation(query)
	if operation != "" {
		span.SetData("db.operation", operation)
	}
	if table := queryTable(query, operation); table != "" {
		span.SetData("db.collection.name", table)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	switch {
	case data.Err == nil:
		span.Status = sentry.SpanStatusOK
	case errors.Is(data.Err, pgx.ErrNoRows):
		// Conditional updates that match nothing are expected outcomes.
		span.Status = sentry.SpanStatusOK
		span.SetData("db.no_rows", true)
	default:
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	}

	if rowsAffected := data.CommandTag.RowsAffected(); rowsAffected >= 0 {
		span.SetData("db.rows_affected", rowsAffected)
	}

	span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}

	const maxLen = 512
	if len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

func queryOperation(query string) string {
	parts := strings.Fields(query)
	if len(parts) == 0 {
		return ""
	}
	return strings.ToUpper(parts[0])
}

// queryTable returns the first table named after the keyword that follows
// the operation (FROM, INTO, UPDATE).
func queryTable(query, operation string) string {
	parts := strings.Fields(query)
	keyword := ""
	switch operation {
	case "SELECT", "DELETE":
		keyword = "FROM"
	case "INSERT":
		keyword = "INTO"
	case "UPDATE":
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	default:
		return ""
	}

	for i, part := range parts {
		if strings.EqualFold(part, keyword) && i+1 < len(parts) {
			return strings.Trim(parts[i+1], "(),;")
		}
	}
	return ""
}
