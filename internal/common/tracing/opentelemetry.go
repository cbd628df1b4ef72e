// Package tracing 提供 OpenTelemetry 分布式追踪
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config 追踪配置
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP endpoint
	Exporter       string // otlp 或 stdout，Endpoint 为空时回落到 stdout
	SampleRate     float64
	Enabled        bool
}

// Tracer 追踪器包装
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   *Config
}

var defaultTracer *Tracer

// Init 初始化追踪器并注册为全局 TracerProvider
func Init(cfg *Config) (*Tracer, error) {
	if cfg == nil {
		cfg = &Config{
			ServiceName: "storefront-catalog",
			Environment: "development",
			SampleRate:  1.0,
			Enabled:     true,
		}
	}

	if !cfg.Enabled {
		defaultTracer = Disabled()
		defaultTracer.config = cfg
		return defaultTracer, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	tracer, err := newTracer(cfg, sdktrace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}

	// 设置全局 TracerProvider 和传播器
	otel.SetTracerProvider(tracer.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	defaultTracer = tracer
	return tracer, nil
}

// NewWithExporter 使用给定导出器同步导出 span，不修改全局状态
func NewWithExporter(cfg *Config, exporter sdktrace.SpanExporter) (*Tracer, error) {
	return newTracer(cfg, sdktrace.WithSyncer(exporter))
}

// Disabled 返回不记录任何 span 的追踪器
func Disabled() *Tracer {
	return &Tracer{
		tracer: noop.NewTracerProvider().Tracer("disabled"),
		config: &Config{},
	}
}

func newExporter(cfg *Config) (sdktrace.SpanExporter, error) {
	if cfg.Exporter != "stdout" && cfg.Endpoint != "" {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err := otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, fmt.Errorf("创建 OTLP 导出器失败: %w", err)
		}
		return exporter, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("创建 stdout 导出器失败: %w", err)
	}
	return exporter, nil
}

func newTracer(cfg *Config, processor sdktrace.TracerProviderOption) (*Tracer, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("创建资源失败: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		config:   cfg,
	}, nil
}

// sampler 根据采样率选择采样器
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// GetTracer 获取默认追踪器，未初始化时返回禁用的追踪器
func GetTracer() *Tracer {
	if defaultTracer == nil {
		return Disabled()
	}
	return defaultTracer
}

// Shutdown 关闭追踪器
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start 开始一个新的 span
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartSpan 开始一个带属性的 span
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End 结束 span，err 非空时记录错误并标记状态
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SpanFromContext 从上下文获取当前 span
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent 添加事件到当前 span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetError 设置 span 错误
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes 设置 span 属性
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}

// 常用属性键
var (
	AttrUserID      = attribute.Key("user.id")
	AttrCategoryID  = attribute.Key("category.id")
	AttrProductID   = attribute.Key("product.id")
	AttrReviewID    = attribute.Key("review.id")
	AttrQuantity    = attribute.Key("catalog.quantity")
	AttrOperation   = attribute.Key("operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBOperation = attribute.Key("db.operation")
	AttrDBRows      = attribute.Key("db.rows_affected")
	AttrLockKey     = attribute.Key("lock.key")
)

// WithUserID 添加用户 ID 属性
func WithUserID(id int64) attribute.KeyValue {
	return AttrUserID.Int64(id)
}

// WithCategoryID 添加分类 ID 属性
func WithCategoryID(id int64) attribute.KeyValue {
	return AttrCategoryID.Int64(id)
}

// WithProductID 添加商品 ID 属性
func WithProductID(id int64) attribute.KeyValue {
	return AttrProductID.Int64(id)
}

// WithReviewID 添加评价 ID 属性
func WithReviewID(id int64) attribute.KeyValue {
	return AttrReviewID.Int64(id)
}

// WithQuantity 添加数量属性
func WithQuantity(n int) attribute.KeyValue {
	return AttrQuantity.Int(n)
}

// WithOperation 添加操作属性
func WithOperation(op string) attribute.KeyValue {
	return AttrOperation.String(op)
}

// WithDBTable 添加数据库表属性
func WithDBTable(table string) attribute.KeyValue {
	return AttrDBTable.String(table)
}
