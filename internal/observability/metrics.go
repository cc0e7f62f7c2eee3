package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every entitysql instrument.
const MeterName = "entitysql"

// StatementMetrics counts generated statements, executed statements and
// materialized entities. A nil *StatementMetrics records nothing.
type StatementMetrics struct {
	statementsBuilt   metric.Int64Counter
	statementDuration metric.Float64Histogram
	statementErrors   metric.Int64Counter
	rowsMaterialized  metric.Int64Counter
}

// InitStatementMetrics creates the instruments on the global meter provider.
func InitStatementMetrics() (*StatementMetrics, error) {
	meter := otel.Meter(MeterName)

	statementsBuilt, err := meter.Int64Counter(
		"entitysql.statements.built",
		metric.WithDescription("Number of SQL statements generated"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statements built counter: %w", err)
	}

	statementDuration, err := meter.Float64Histogram(
		"entitysql.statement.duration",
		metric.WithDescription("Duration of executed statements in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement duration histogram: %w", err)
	}

	statementErrors, err := meter.Int64Counter(
		"entitysql.statement.errors",
		metric.WithDescription("Number of statements that failed to execute"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement error counter: %w", err)
	}

	rowsMaterialized, err := meter.Int64Counter(
		"entitysql.rows.materialized",
		metric.WithDescription("Number of result rows turned into entities"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows materialized counter: %w", err)
	}

	return &StatementMetrics{
		statementsBuilt:   statementsBuilt,
		statementDuration: statementDuration,
		statementErrors:   statementErrors,
		rowsMaterialized:  rowsMaterialized,
	}, nil
}

// RecordStatementBuilt counts one generated statement of the given kind.
func (m *StatementMetrics) RecordStatementBuilt(ctx context.Context, dialect, entity, kind string) {
	if m == nil {
		return
	}
	m.statementsBuilt.Add(ctx, 1, metric.WithAttributes(
		attribute.String("db.dialect", dialect),
		attribute.String("entity", entity),
		attribute.String("statement.kind", kind),
	))
}

// RecordStatement records the outcome of one executed statement.
func (m *StatementMetrics) RecordStatement(ctx context.Context, operation, entity string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("entity", entity),
	)
	m.statementDuration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	if err != nil {
		m.statementErrors.Add(ctx, 1, attrs)
	}
}

// RecordRowsMaterialized counts rows consumed by a result parser.
func (m *StatementMetrics) RecordRowsMaterialized(ctx context.Context, entity string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.rowsMaterialized.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("entity", entity)))
}
