package telemetry

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/sparkfeed/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey      = "telemetry:span"
	startedKey   = "telemetry:started"
	operationKey = "telemetry:operation"
	maxStatement = 500
)

// GORMTracingPlugin returns a GORM plugin that opens a span per statement
// and records query counts and latency. Lookups that find no row are not
// recorded as errors.
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("sparkfeed/gorm"), metrics: metrics.Get()}
}

type tracingPlugin struct {
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	err := stderrors.Join(
		cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT")),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT")),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.before("DELETE")),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.before("RAW")),

		cb.Query().After("gorm:query").Register("telemetry:after_query", p.after),
		cb.Create().After("gorm:create").Register("telemetry:after_create", p.after),
		cb.Update().After("gorm:update").Register("telemetry:after_update", p.after),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.after),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.after),
	)
	if err != nil {
		return fmt.Errorf("register tracing callbacks: %w", err)
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation)+" "+table,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", dbSystem(db)),
				attribute.String("db.table", table),
				attribute.String("db.operation", operation),
			),
		)
		db.InstanceSet(spanKey, span)
		db.InstanceSet(startedKey, time.Now())
		db.InstanceSet(operationKey, operation)
	}
}

func (p *tracingPlugin) after(db *gorm.DB) {
	raw, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation, _ := db.InstanceGet(operationKey)
	op, _ := operation.(string)
	table := db.Statement.Table
	status := "ok"
	failed := db.Error != nil && !stderrors.Is(db.Error, gorm.ErrRecordNotFound)
	if failed {
		status = "error"
	}
	p.metrics.DatabaseQueriesTotal.WithLabelValues(op, table, status).Inc()

	if started, ok := db.InstanceGet(startedKey); ok {
		if t, ok := started.(time.Time); ok {
			elapsed := time.Since(t)
			p.metrics.DatabaseQueryDuration.WithLabelValues(op, table).Observe(elapsed.Seconds())
			span.SetAttributes(attribute.Int64("db.duration_ms", elapsed.Milliseconds()))
		}
	}
	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatement {
			sql = sql[:maxStatement] + "..."
		}
		span.SetAttributes(attribute.String("db.statement", sql))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))

	if failed {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}

// dbSystem maps the GORM dialector to the semantic-convention system name
func dbSystem(db *gorm.DB) string {
	if db.Dialector == nil {
		return "unknown"
	}
	if name := db.Dialector.Name(); name != "postgres" {
		return name
	}
	return "postgresql"
}
