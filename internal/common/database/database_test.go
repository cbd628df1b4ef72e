// Package database 数据库模块单元测试
package database

import (
	"context"
	"testing"
	"time"

	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ==================== getLogLevel 测试 ====================

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logMode  bool
		expected logger.LogLevel
	}{
		{"log mode enabled", true, logger.Info},
		{"log mode disabled", false, logger.Silent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getLogLevel(tt.logMode)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// ==================== Dialector / DSN 测试 ====================

func TestDialector(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		d, err := Dialector(&config.DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432})
		require.NoError(t, err)
		assert.Equal(t, "postgres", d.Name())
	})

	t.Run("sqlite", func(t *testing.T) {
		d, err := Dialector(&config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
		require.NoError(t, err)
		assert.Equal(t, "sqlite", d.Name())
	})

	t.Run("不支持的驱动", func(t *testing.T) {
		_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
		assert.Error(t, err)
	})
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"纯文件名", "catalog.db", "file:catalog.db?_foreign_keys=on"},
		{"内存库", ":memory:", "file::memory:?_foreign_keys=on"},
		{"已有参数", "file:test?mode=memory&cache=shared", "file:test?mode=memory&cache=shared&_foreign_keys=on"},
		{"已开启外键", "file:test?_foreign_keys=on", "file:test?_foreign_keys=on"},
		{"_fk 写法", "file:test?_fk=1", "file:test?_fk=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLiteDSN(tt.dsn))
		})
	}
}

func TestGormConfig(t *testing.T) {
	cfg := GormConfig(&config.DatabaseConfig{Driver: "postgres", SlowThreshold: 200})
	assert.True(t, cfg.TranslateError)
	assert.True(t, cfg.PrepareStmt)

	sqliteCfg := GormConfig(&config.DatabaseConfig{Driver: "sqlite"})
	assert.False(t, sqliteCfg.PrepareStmt)
}

// ==================== Open 测试 ====================

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		Name:   "file:open_test?mode=memory&cache=shared",
	}

	conn, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := conn.DB()
		_ = sqlDB.Close()
	})

	var fk int
	require.NoError(t, conn.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)

	assert.NoError(t, Ping(context.Background(), conn))
}

func TestOpen_TranslatesDuplicateKey(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		Name:   "file:translate_test?mode=memory&cache=shared",
	}
	conn, err := Open(cfg)
	require.NoError(t, err)

	type Sku struct {
		ID   int64
		Code string `gorm:"uniqueIndex"`
	}
	require.NoError(t, conn.AutoMigrate(&Sku{}))
	require.NoError(t, conn.Create(&Sku{Code: "A-1"}).Error)

	err = conn.Create(&Sku{Code: "A-1"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestPing_NilDB(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}

// ==================== Pagination 测试 ====================

func TestPagination_Normalize(t *testing.T) {
	tests := []struct {
		name       string
		in         Pagination
		want       Pagination
		wantOffset int
	}{
		{"正常分页", Pagination{Page: 3, PageSize: 10}, Pagination{Page: 3, PageSize: 10}, 20},
		{"页码为零", Pagination{Page: 0, PageSize: 10}, Pagination{Page: 1, PageSize: 10}, 0},
		{"页大小为零取默认", Pagination{Page: 1, PageSize: 0}, Pagination{Page: 1, PageSize: 20}, 0},
		{"页大小超限截断", Pagination{Page: 2, PageSize: 500}, Pagination{Page: 2, PageSize: 100}, 100},
		{"负数页码", Pagination{Page: -4, PageSize: -1}, Pagination{Page: 1, PageSize: 20}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize(20, 100)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOffset, got.Offset())
		})
	}

	t.Run("非法默认值回落到包常量", func(t *testing.T) {
		got := Pagination{}.Normalize(0, 0)
		assert.Equal(t, DefaultPageSize, got.PageSize)
	})
}

// ==================== Close 测试 ====================

func TestClose_WithNilDB(t *testing.T) {
	oldDB := db
	db = nil
	t.Cleanup(func() {
		db = oldDB
	})

	assert.NoError(t, Close())
}

// ==================== Instrumentation 测试 ====================

func TestInstrumentation(t *testing.T) {
	m := metrics.New("instr_test")
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := tracing.NewWithExporter(&tracing.Config{ServiceName: "db-test", SampleRate: 1.0, Enabled: true}, exporter)
	require.NoError(t, err)

	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, testDB.Use(NewInstrumentation(m, tracer)))

	type Widget struct {
		ID   int64
		Name string
	}
	require.NoError(t, testDB.AutoMigrate(&Widget{}))
	exporter.Reset()

	ctx := context.Background()
	require.NoError(t, testDB.WithContext(ctx).Create(&Widget{Name: "a"}).Error)

	var w Widget
	require.NoError(t, testDB.WithContext(ctx).First(&w).Error)

	// 记录不存在不计为错误
	err = testDB.WithContext(ctx).First(&w, 999).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, testDB.WithContext(ctx).Model(&Widget{}).Where("id = ?", w.ID).Update("name", "b").Error)

	t.Run("指标", func(t *testing.T) {
		count, err := testutil.GatherAndCount(m.Registry(), "instr_test_db_queries_total")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 3)

		errCount, err := testutil.GatherAndCount(m.Registry(), "instr_test_db_errors_total")
		require.NoError(t, err)
		assert.Equal(t, 0, errCount)
	})

	t.Run("追踪", func(t *testing.T) {
		var names []string
		for _, s := range exporter.GetSpans() {
			names = append(names, s.Name)
		}
		assert.Contains(t, names, "db.create")
		assert.Contains(t, names, "db.query")
		assert.Contains(t, names, "db.update")

		for _, s := range exporter.GetSpans() {
			if s.Name == "db.create" {
				assert.Contains(t, s.Attributes, tracing.WithDBTable("widgets"))
			}
		}
	})

	t.Run("失败语句计入错误", func(t *testing.T) {
		err := testDB.WithContext(ctx).Exec("INSERT INTO missing_table (id) VALUES (1)").Error
		require.Error(t, err)

		errCount, err := testutil.GatherAndCount(m.Registry(), "instr_test_db_errors_total")
		require.NoError(t, err)
		assert.Equal(t, 1, errCount)
	})
}

func TestInstrumentation_StatementLog(t *testing.T) {
	type Gadget struct {
		ID   int64
		Name string
	}

	open := func(t *testing.T, slow time.Duration) (*gorm.DB, *observer.ObservedLogs) {
		t.Helper()
		core, logs := observer.New(zapcore.DebugLevel)
		testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err)
		require.NoError(t, testDB.Use(NewInstrumentation(nil, nil).WithStatementLog(zap.New(core), slow)))
		require.NoError(t, testDB.AutoMigrate(&Gadget{}))
		return testDB, logs
	}

	t.Run("正常语句不记录", func(t *testing.T) {
		testDB, logs := open(t, 0)
		require.NoError(t, testDB.Create(&Gadget{Name: "a"}).Error)

		var g Gadget
		assert.ErrorIs(t, testDB.First(&g, 999).Error, gorm.ErrRecordNotFound)
		assert.Zero(t, logs.Len())
	})

	t.Run("失败语句记录错误", func(t *testing.T) {
		testDB, logs := open(t, 0)
		require.Error(t, testDB.Exec("UPDATE missing_table SET id = 1").Error)

		entries := logs.FilterMessage("数据库语句执行失败").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "raw", fields["table"])
		assert.Contains(t, fields["sql"], "missing_table")
		assert.Contains(t, fields, "error")
	})

	t.Run("慢语句记录表名与影响行数", func(t *testing.T) {
		testDB, logs := open(t, time.Nanosecond)
		require.NoError(t, testDB.Create(&Gadget{Name: "b"}).Error)

		entries := logs.FilterMessage("数据库慢语句").
			FilterField(zap.String("table", "gadgets")).
			FilterField(zap.String("operation", "create")).
			All()
		require.NotEmpty(t, entries)
		fields := entries[0].ContextMap()
		assert.Equal(t, "create", fields["operation"])
		assert.Equal(t, int64(1), fields["rows_affected"])
		assert.Contains(t, fields, "latency")
	})
}
