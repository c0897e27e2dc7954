package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const minSlowQueryThreshold = 50 * time.Millisecond

// SlowQueryRecorder receives statements that crossed the slow threshold.
type SlowQueryRecorder interface {
	IncSlowQuery(operation, table string)
}

type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// QueryTimeout is the per-operation database budget; durations are also
	// reported as a share of it.
	QueryTimeout time.Duration
	Recorder     SlowQueryRecorder
	Base         *zap.Logger
}

// SlowThresholdFor flags statements that use a quarter of the query budget.
func SlowThresholdFor(queryTimeout time.Duration) time.Duration {
	threshold := queryTimeout / 4
	if threshold < minSlowQueryThreshold {
		return minSlowQueryThreshold
	}
	return threshold
}

// GormLogger writes SQL diagnostics through zap. Not-found results are never
// logged since every lookup in this service treats them as a normal outcome.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	queryTimeout  time.Duration
	recorder      SlowQueryRecorder
	base          *zap.Logger
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	level := cfg.Level
	if level == 0 {
		level = gormlogger.Warn
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = SlowThresholdFor(cfg.QueryTimeout)
	}
	return &GormLogger{
		level:         level,
		slowThreshold: slow,
		queryTimeout:  cfg.QueryTimeout,
		recorder:      cfg.Recorder,
		base:          cfg.Base,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.message(ctx, zap.InfoLevel, msg, data)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.message(ctx, zap.WarnLevel, msg, data)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.message(ctx, zap.ErrorLevel, msg, data)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.statement(ctx, fc, elapsed, err, zap.ErrorLevel)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.statement(ctx, fc, elapsed, nil, zap.WarnLevel)
	case l.level >= gormlogger.Info:
		l.statement(ctx, fc, elapsed, nil, zap.DebugLevel)
	}
}

// ParamsFilter drops bound values; salaries and names travel as parameters.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	if l.base != nil {
		return WithContext(ctx, l.base)
	}
	return FromContext(ctx)
}

func (l *GormLogger) message(ctx context.Context, level zapcore.Level, msg string, data []interface{}) {
	fields := []zap.Field{zap.String("component", "db")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := l.logger(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *GormLogger) statement(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level zapcore.Level) {
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	operation := operationFromSQL(sql)
	table := tableFromSQL(sql)

	fields := []zap.Field{
		zap.String("component", "db"),
		zap.String("db.operation", operation),
		zap.String("db.table", table),
		zap.Int64("db.duration_ms", elapsed.Milliseconds()),
		zap.String("db.statement", sql),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("db.rows", rows))
	}
	if isRowLock(sql) {
		fields = append(fields, zap.Bool("db.row_lock", true))
	}
	if l.queryTimeout > 0 {
		fields = append(fields, zap.Int64("db.budget_pct", int64(elapsed*100/l.queryTimeout)))
	}

	msg := "db statement"
	switch level {
	case zap.ErrorLevel:
		msg = "db statement failed"
		fields = append(fields, zap.Error(err))
	case zap.WarnLevel:
		msg = "db statement slow"
		fields = append(fields, zap.Int64("db.slow_threshold_ms", l.slowThreshold.Milliseconds()))
		if l.recorder != nil {
			l.recorder.IncSlowQuery(operation, table)
		}
	}
	if ce := l.logger(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// operationFromSQL returns the outermost statement verb, skipping CTE bodies.
func operationFromSQL(sql string) string {
	depth := 0
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		trimmed := strings.TrimLeft(token, "(")
		depth += len(token) - len(trimmed)
		if depth == 0 {
			switch strings.TrimRight(trimmed, ");,") {
			case "SELECT", "INSERT", "UPDATE", "DELETE":
				return strings.TrimRight(trimmed, ");,")
			}
		}
		depth += strings.Count(trimmed, "(") - strings.Count(trimmed, ")")
		if depth < 0 {
			depth = 0
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE,
// unquoted and lower-cased.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			name := strings.Trim(tokens[i+1], "\"`();,")
			if name == "" || strings.EqualFold(name, "SELECT") {
				continue
			}
			return strings.ToLower(name)
		}
	}
	return "unknown"
}

func isRowLock(sql string) bool {
	return strings.Contains(strings.ToUpper(sql), "FOR UPDATE")
}

var _ gormlogger.Interface = (*GormLogger)(nil)
