package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/irfndi/cryptopulse/internal/config"
)

// NewLogger builds the process logger from configuration.
// Production defaults to JSON output, development to human readable text.
// When cfg.File is set, output is tee'd into a size-rotated file.
func NewLogger(logLevel string, environment string, cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLogrusLevel(logLevel))
	logger.SetFormatter(formatterFor(cfg.Format, environment))

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	logger.SetOutput(out)

	return logger
}

func formatterFor(format string, environment string) logrus.Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &logrus.JSONFormatter{}
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	if strings.EqualFold(environment, "development") {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithComponent creates a logger entry with component context
func WithComponent(logger *logrus.Logger, componentName string) *logrus.Entry {
	return logger.WithField("component", componentName)
}

// LogStartup logs application startup information
func LogStartup(logger *logrus.Logger, serviceName string, version string, port int) {
	logger.WithFields(logrus.Fields{
		"service": serviceName,
		"version": version,
		"port":    port,
		"event":   "startup",
	}).Info("Application startup")
}

// LogShutdown logs application shutdown information
func LogShutdown(logger *logrus.Logger, serviceName string, reason string) {
	logger.WithFields(logrus.Fields{
		"service": serviceName,
		"reason":  reason,
		"event":   "shutdown",
	}).Info("Application shutdown")
}

// LogCacheOperation logs cache operations in a standardized format
func LogCacheOperation(logger logrus.FieldLogger, operation string, key string, hit bool) {
	logger.WithFields(logrus.Fields{
		"operation": operation,
		"key":       key,
		"hit":       hit,
		"event":     "cache",
	}).Debug("Cache operation")
}

// LogDatabaseOperation logs database operations in a standardized format
func LogDatabaseOperation(logger logrus.FieldLogger, operation string, table string, duration int64, rowsAffected int64) {
	logger.WithFields(logrus.Fields{
		"operation":     operation,
		"table":         table,
		"duration_ms":   duration,
		"rows_affected": rowsAffected,
		"event":         "database",
	}).Debug("Database operation")
}

// LogAPIRequest logs API requests in a standardized format
func LogAPIRequest(logger logrus.FieldLogger, method string, path string, statusCode int, duration int64, requestID string) {
	logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      statusCode,
		"duration_ms": duration,
		"request_id":  requestID,
		"event":       "api",
	}).Info("API request")
}
