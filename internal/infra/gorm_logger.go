package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/logger"
)

// gormZapLogger 把 GORM 的日志接到 Zap，并带上请求 ID
type gormZapLogger struct {
	base          *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

func newGormZapLogger(base *zap.Logger, level gormLogger.LogLevel) *gormZapLogger {
	return &gormZapLogger{
		base:          base,
		level:         level,
		slowThreshold: 200 * time.Millisecond,
	}
}

// forContext 让 SQL 日志能关联到触发它的 HTTP 请求
func (l *gormZapLogger) forContext(ctx context.Context) *zap.Logger {
	if requestID := logger.GetRequestID(ctx); requestID != "" {
		return l.base.With(zap.String("request_id", requestID))
	}
	return l.base
}

func (l *gormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Info {
		l.forContext(ctx).Sugar().Infof(msg, args...)
	}
}

func (l *gormZapLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.forContext(ctx).Sugar().Warnf(msg, args...)
	}
}

func (l *gormZapLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Error {
		l.forContext(ctx).Sugar().Errorf(msg, args...)
	}
}

// Trace 记录每条 SQL：错误走 Error，超过阈值走 Warn，其余在 Info 级别下降级为 Debug
func (l *gormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := l.forContext(ctx).With(
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)

	switch {
	// 未命中记录是正常业务分支，不当错误记
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		log.Error("SQL 执行失败", zap.Error(err))
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		log.Warn("SQL 慢查询", zap.Duration("threshold", l.slowThreshold))
	case l.level >= gormLogger.Info:
		log.Debug("SQL 执行")
	}
}
