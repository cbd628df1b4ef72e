// Package logger 提供结构化日志功能
package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var global atomic.Pointer[zap.Logger]

// 输出目标
const (
	OutputStdout = "stdout"
	OutputFile   = "file"
	OutputBoth   = "both"
)

// Init 按配置创建日志器并设置为全局实例
func Init(cfg *config.LoggerConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// New 按配置创建日志器，不修改全局实例
func New(cfg *config.LoggerConfig) (*zap.Logger, error) {
	switch cfg.Output {
	case "", OutputStdout, OutputFile, OutputBoth:
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.NewMultiWriteSyncer(writers(cfg)...), level)

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...), nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// writers 未配置文件路径时始终退回标准输出
func writers(cfg *config.LoggerConfig) []zapcore.WriteSyncer {
	var ws []zapcore.WriteSyncer
	toFile := cfg.FilePath != "" && (cfg.Output == OutputFile || cfg.Output == OutputBoth)
	if toFile {
		ws = append(ws, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}))
	}
	if !toFile || cfg.Output == OutputBoth {
		ws = append(ws, zapcore.Lock(os.Stdout))
	}
	return ws
}

// SetLogger 替换全局日志器，传入 nil 时恢复为惰性初始化
func SetLogger(l *zap.Logger) {
	global.Store(l)
}

// GetLogger 获取全局日志器，未初始化时使用开发配置
func GetLogger() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	if global.CompareAndSwap(nil, l) {
		return l
	}
	return global.Load()
}

// Named 返回命名子日志器
func Named(name string) *zap.Logger {
	return GetLogger().Named(name)
}

// Sync 刷新缓冲
func Sync() error {
	if l := global.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

// Ctx 返回附带当前链路 trace_id/span_id 的全局日志器
func Ctx(ctx context.Context) *zap.Logger {
	return WithTrace(ctx, GetLogger())
}

// WithTrace 为 l 附加 ctx 中的链路标识，ctx 没有有效 span 时原样返回
func WithTrace(ctx context.Context, l *zap.Logger) *zap.Logger {
	if ctx == nil {
		return l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// 常用字段构造函数
var (
	String = zap.String
	Err    = zap.Error
)

// UserID 用户ID字段
func UserID(id int64) zap.Field {
	return zap.Int64("user_id", id)
}

// CategoryID 分类ID字段
func CategoryID(id int64) zap.Field {
	return zap.Int64("category_id", id)
}

// ProductID 商品ID字段
func ProductID(id int64) zap.Field {
	return zap.Int64("product_id", id)
}

// ReviewID 评价ID字段
func ReviewID(id int64) zap.Field {
	return zap.Int64("review_id", id)
}

// SKU 商品SKU字段
func SKU(sku string) zap.Field {
	return zap.String("sku", sku)
}

// Quantity 数量字段
func Quantity(n int) zap.Field {
	return zap.Int("quantity", n)
}

// Module 模块字段
func Module(name string) zap.Field {
	return zap.String("module", name)
}

// Action 操作字段
func Action(name string) zap.Field {
	return zap.String("action", name)
}

// Latency 语句耗时字段
func Latency(d time.Duration) zap.Field {
	return zap.Duration("latency", d)
}

// Table 数据表字段
func Table(name string) zap.Field {
	return zap.String("table", name)
}

// RowsAffected 影响行数字段
func RowsAffected(n int64) zap.Field {
	return zap.Int64("rows_affected", n)
}
