package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to the
// process-wide default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides domain-specific log lines on top of Logger.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs the completion of an HTTP request. The level follows
// the status class.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogMetricsComputed logs a successful business metrics refresh.
func (sl *StructuredLogger) LogMetricsComputed(ctx context.Context, mrr, monthlyRevenue int64, activeSubs, recentCharges int) {
	fields := NewFields().
		WithMetrics(mrr, monthlyRevenue).
		WithOperation(OpFetch).
		WithComponent(ComponentBusiness).
		ToSlice()
	fields = append(fields, "active_subscriptions", activeSubs, "recent_charges", recentCharges)

	sl.logger.Logger.InfoContext(ctx, "Business metrics computed", fields...)
}

// LogLookup logs the outcome of a media lookup; an empty source means
// nothing was found.
func (sl *StructuredLogger) LogLookup(ctx context.Context, kind, key, source string) {
	fields := NewFields().
		WithLookup(key, source).
		WithOperation(OpLookup).
		WithComponent(ComponentMedia).
		ToSlice()
	fields = append(fields, "kind", kind)

	if source == "" {
		sl.logger.Logger.InfoContext(ctx, "Media lookup found nothing", fields...)
		return
	}
	sl.logger.Logger.DebugContext(ctx, "Media lookup resolved", fields...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
