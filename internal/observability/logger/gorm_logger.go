package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LogParams keeps bound values in logged SQL. Leave it off anywhere
	// password or refresh token hashes are written.
	LogParams bool
}

func DefaultGormLoggerConfig(debug bool) GormLoggerConfig {
	if debug {
		return GormLoggerConfig{Level: gormlogger.Info, SlowThreshold: 200 * time.Millisecond}
	}
	return GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 200 * time.Millisecond}
}

// GormLogger routes gorm output through the request-scoped zap logger under
// the "db" name.
type GormLogger struct {
	base *zap.Logger
	cfg  GormLoggerConfig
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.L()
	}
	return &GormLogger{base: base.Named("db"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	if ce := WithContext(ctx, l.base).Check(level, fmt.Sprintf(msg, data...)); ce != nil {
		ce.Write()
	}
}

// Trace picks one level per statement: real failures at error, slow
// statements at warn, the rest at debug when gorm is at Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		level zapcore.Level
		msg   string
	)
	switch {
	case err != nil && !expectedQueryErr(err) && l.cfg.Level >= gormlogger.Error:
		level, msg = zapcore.ErrorLevel, "db.query_failed"
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		level, msg = zapcore.WarnLevel, "db.query_slow"
	case l.cfg.Level >= gormlogger.Info:
		level, msg = zapcore.DebugLevel, "db.query"
	default:
		return
	}

	ce := WithContext(ctx, l.base).Check(level, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("operation", operationFromSQL(sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// Not-found backs every "no current subscription" read and cancellation
// means the client went away.
func expectedQueryErr(err error) bool {
	return errors.Is(err, gormlogger.ErrRecordNotFound) || errors.Is(err, context.Canceled)
}

func (l *GormLogger) ParamsFilter(_ context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if !l.cfg.LogParams {
		return sql, nil
	}
	return sql, params
}

// operationFromSQL returns the leading DML verb, skipping a CTE prefix.
func operationFromSQL(sql string) string {
	for _, word := range strings.Fields(sql) {
		switch verb := strings.ToUpper(strings.Trim(word, "();")); verb {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return verb
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
