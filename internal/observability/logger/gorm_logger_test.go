package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

type slowRecorder struct {
	calls []string
}

func (r *slowRecorder) IncSlowQuery(operation, table string) {
	r.calls = append(r.calls, operation+" "+table)
}

func statementFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestSlowThresholdFor(t *testing.T) {
	assert.Equal(t, 2500*time.Millisecond, SlowThresholdFor(10*time.Second))
	assert.Equal(t, minSlowQueryThreshold, SlowThresholdFor(0))
	assert.Equal(t, minSlowQueryThreshold, SlowThresholdFor(100*time.Millisecond))
}

func TestGormLoggerSlowStatement(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	recorder := &slowRecorder{}
	l := NewGormLogger(GormLoggerConfig{
		QueryTimeout: 400 * time.Millisecond,
		Recorder:     recorder,
		Base:         zap.New(core),
	})

	l.Trace(context.Background(), time.Now().Add(-300*time.Millisecond),
		statementFn("SELECT id, state FROM cycles WHERE id = ? FOR UPDATE", 1), nil)
	l.Trace(context.Background(), time.Now(), statementFn("SELECT 1 FROM kits", 1), nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "db statement slow", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "SELECT", fields["db.operation"])
	assert.Equal(t, "cycles", fields["db.table"])
	assert.Equal(t, true, fields["db.row_lock"])
	assert.EqualValues(t, 100, fields["db.slow_threshold_ms"])
	assert.GreaterOrEqual(t, fields["db.budget_pct"], int64(75))
	assert.Equal(t, []string{"SELECT cycles"}, recorder.calls)
}

func TestGormLoggerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{QueryTimeout: time.Second, Base: zap.New(core)})

	l.Trace(context.Background(), time.Now(), statementFn("SELECT * FROM kits WHERE id = ?", 0), gormlogger.ErrRecordNotFound)
	assert.Empty(t, logs.All())

	l.Trace(context.Background(), time.Now(),
		statementFn(`INSERT INTO "purchase_order_lines" ("id") VALUES ($1)`, 0), errors.New("CHECK constraint failed"))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "INSERT", fields["db.operation"])
	assert.Equal(t, "purchase_order_lines", fields["db.table"])
	assert.Equal(t, "CHECK constraint failed", fields["error"])
}

func TestGormLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Info, QueryTimeout: time.Second, Base: zap.New(core)})

	l.Trace(context.Background(), time.Now(), statementFn("DELETE FROM wage_thresholds WHERE year = ?", 1), nil)
	require.Len(t, logs.All(), 1)
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.EqualValues(t, 1, logs.All()[0].ContextMap()["db.rows"])

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now().Add(-time.Minute), statementFn("SELECT 1 FROM cycles", 1), errors.New("boom"))
	silent.Warn(context.Background(), "ignored")
	assert.Len(t, logs.All(), 1)

	l.Warn(context.Background(), "migration drift", "cycles")
	require.Len(t, logs.All(), 2)
	assert.Equal(t, "migration drift", logs.All()[1].Message)
}
