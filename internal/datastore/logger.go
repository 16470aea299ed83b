package datastore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/mkarling/podkeeper/internal/logging"
)

// slowQueryThreshold is the duration after which a query is logged as slow.
const slowQueryThreshold = time.Second

var (
	datastoreLogger *slog.Logger
	loggerOnce      sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		datastoreLogger = logging.ForService("datastore")
	})
	return datastoreLogger
}

// gormSlogAdapter routes GORM log output into the service logger.
type gormSlogAdapter struct {
	level gormlogger.LogLevel
}

func createGormLogger() gormlogger.Interface {
	return &gormSlogAdapter{level: gormlogger.Warn}
}

func (g *gormSlogAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormSlogAdapter{level: level}
}

func (g *gormSlogAdapter) Info(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		getLogger().Info(msg, "data", data)
	}
}

func (g *gormSlogAdapter) Warn(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		getLogger().Warn(msg, "data", data)
	}
}

func (g *gormSlogAdapter) Error(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		getLogger().Error(msg, "data", data)
	}
}

func (g *gormSlogAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	switch {
	case err != nil && g.level >= gormlogger.Error:
		getLogger().Error("query failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowQueryThreshold && g.level >= gormlogger.Warn:
		getLogger().Warn("slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case g.level >= gormlogger.Info:
		getLogger().Info("query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
