package database

import (
	"errors"
	"time"

	applogger "github.com/dumeirei/storefront-catalog/internal/common/logger"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	instrumentationName = "catalog:instrumentation"
	startTimeKey        = "catalog:instrumentation:start"
	spanKey             = "catalog:instrumentation:span"
)

// Instrumentation GORM 插件，为每条语句记录耗时指标、追踪 span 与异常日志
type Instrumentation struct {
	metrics *metrics.Metrics
	tracer  *tracing.Tracer
	log     *zap.Logger
	slow    time.Duration
}

// NewInstrumentation 创建插件，metrics 或 tracer 为 nil 时跳过对应功能
func NewInstrumentation(m *metrics.Metrics, t *tracing.Tracer) *Instrumentation {
	return &Instrumentation{metrics: m, tracer: t, log: zap.NewNop()}
}

// WithStatementLog 记录失败语句以及耗时不低于 slow 的慢语句，slow 为 0 时只记录失败
func (p *Instrumentation) WithStatementLog(l *zap.Logger, slow time.Duration) *Instrumentation {
	if l != nil {
		p.log = l
	}
	p.slow = slow
	return p
}

// Name 实现 gorm.Plugin
func (p *Instrumentation) Name() string {
	return instrumentationName
}

// Initialize 实现 gorm.Plugin
func (p *Instrumentation) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register(instrumentationName+":before_create", p.before("create")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register(instrumentationName+":after_create", p.after("create")); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register(instrumentationName+":before_query", p.before("query")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register(instrumentationName+":after_query", p.after("query")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register(instrumentationName+":before_update", p.before("update")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register(instrumentationName+":after_update", p.after("update")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register(instrumentationName+":before_delete", p.before("delete")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register(instrumentationName+":after_delete", p.after("delete")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register(instrumentationName+":before_row", p.before("row")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register(instrumentationName+":after_row", p.after("row")); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register(instrumentationName+":before_raw", p.before("raw")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register(instrumentationName+":after_raw", p.after("raw"))
}

func (p *Instrumentation) before(op string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		tx.InstanceSet(startTimeKey, time.Now())
		if p.tracer == nil || tx.Statement.Context == nil {
			return
		}
		ctx, span := p.tracer.Start(tx.Statement.Context, "db."+op, trace.WithSpanKind(trace.SpanKindClient))
		tx.Statement.Context = ctx
		tx.InstanceSet(spanKey, span)
	}
}

func (p *Instrumentation) after(op string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		table := tx.Statement.Table
		if table == "" {
			table = "raw"
		}

		err := tx.Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = nil
		}

		var elapsed time.Duration
		if v, ok := tx.InstanceGet(startTimeKey); ok {
			if start, ok := v.(time.Time); ok {
				elapsed = time.Since(start)
				if p.metrics != nil {
					p.metrics.RecordDBQuery(op, table, elapsed)
				}
			}
		}
		if p.metrics != nil && err != nil {
			p.metrics.RecordDBError(op, table)
		}
		p.logStatement(tx, op, table, elapsed, err)

		if v, ok := tx.InstanceGet(spanKey); ok {
			if span, ok := v.(trace.Span); ok {
				span.SetAttributes(
					tracing.AttrDBOperation.String(op),
					tracing.WithDBTable(table),
					tracing.AttrDBRows.Int64(tx.RowsAffected),
				)
				tracing.End(span, err)
			}
		}
	}
}

func (p *Instrumentation) logStatement(tx *gorm.DB, op, table string, elapsed time.Duration, err error) {
	slow := p.slow > 0 && elapsed >= p.slow
	if err == nil && !slow {
		return
	}

	fields := []zap.Field{
		applogger.String("operation", op),
		applogger.Table(table),
		applogger.RowsAffected(tx.RowsAffected),
		applogger.Latency(elapsed),
		applogger.String("sql", tx.Statement.SQL.String()),
	}
	l := applogger.WithTrace(tx.Statement.Context, p.log)
	if err != nil {
		l.Error("数据库语句执行失败", append(fields, applogger.Err(err))...)
		return
	}
	l.Warn("数据库慢语句", fields...)
}
