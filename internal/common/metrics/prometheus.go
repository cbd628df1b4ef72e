// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器，每个实例持有独立的注册表
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	httpRequestsInFlight   prometheus.Gauge
	dbQueriesTotal         *prometheus.CounterVec
	dbQueryDuration        *prometheus.HistogramVec
	dbErrorsTotal          *prometheus.CounterVec
	lockAttemptsTotal      *prometheus.CounterVec
	stockDecrementsTotal   *prometheus.CounterVec
	productViewsTotal      prometheus.Counter
	reviewSubmissionsTotal *prometheus.CounterVec
	reviewModerationsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultMu      sync.Mutex
)

// New 创建指标收集器
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "storefront"
	}

	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		dbQueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		dbQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		dbErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of failed database queries",
			},
			[]string{"operation", "table"},
		),
		lockAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_attempts_total",
				Help:      "Total number of distributed lock attempts",
			},
			[]string{"name", "result"},
		),
		stockDecrementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stock_decrements_total",
				Help:      "Total number of stock decrement attempts",
			},
			[]string{"result"},
		),
		productViewsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "product_views_total",
				Help:      "Total number of recorded product views",
			},
		),
		reviewSubmissionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_submissions_total",
				Help:      "Total number of review submissions",
			},
			[]string{"result"},
		),
		reviewModerationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_moderations_total",
				Help:      "Total number of review moderation actions",
			},
			[]string{"action", "result"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Init 初始化默认指标收集器
func Init(namespace string) *Metrics {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultMetrics = New(namespace)
	return defaultMetrics
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMetrics == nil {
		defaultMetrics = New("")
	}
	return defaultMetrics
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RequestStarted 进行中请求数加一，请求结束时调用返回的 done
func (m *Metrics) RequestStarted() (done func()) {
	m.httpRequestsInFlight.Inc()
	return m.httpRequestsInFlight.Dec
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery 记录数据库查询
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.dbQueriesTotal.WithLabelValues(operation, table).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError 记录数据库错误
func (m *Metrics) RecordDBError(operation, table string) {
	m.dbErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordLockAttempt 记录分布式锁获取结果
func (m *Metrics) RecordLockAttempt(name string, acquired bool) {
	result := "acquired"
	if !acquired {
		result = "busy"
	}
	m.lockAttemptsTotal.WithLabelValues(name, result).Inc()
}

// RecordStockDecrement 记录库存扣减结果：ok、insufficient 或 error
func (m *Metrics) RecordStockDecrement(result string) {
	m.stockDecrementsTotal.WithLabelValues(result).Inc()
}

// RecordProductView 记录商品浏览
func (m *Metrics) RecordProductView() {
	m.productViewsTotal.Inc()
}

// RecordReviewSubmission 记录评价提交结果
func (m *Metrics) RecordReviewSubmission(result string) {
	m.reviewSubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordReviewModeration 记录评价审核操作
func (m *Metrics) RecordReviewModeration(action, result string) {
	m.reviewModerationsTotal.WithLabelValues(action, result).Inc()
}
