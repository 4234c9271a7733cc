// Package obslog provides structured logging for the evolutionary engine,
// tagging every entry with the locus/allele/transaction it concerns.
package obslog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through engine calls.
type ContextKey string

const (
	// TraceIDKey is the context key for the request trace ID.
	TraceIDKey ContextKey = "trace_id"
	// LocusKey is the context key for the current locus name.
	LocusKey ContextKey = "locus"
	// AlleleIDKey is the context key for the allele currently selected.
	AlleleIDKey ContextKey = "allele_id"
	// TxnIDKey is the context key for the open transaction id, if any.
	TxnIDKey ContextKey = "txn_id"
	// ServiceKey is the context key for the component name.
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger, stamping every entry with the component name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the named component.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{
		Logger:  logger,
		service: service,
	}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a new logger entry carrying trace/locus/allele/txn
// identifiers found on the context.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if locus := ctx.Value(LocusKey); locus != nil {
		entry = entry.WithField("locus", locus)
	}
	if alleleID := ctx.Value(AlleleIDKey); alleleID != nil {
		entry = entry.WithField("allele_id", alleleID)
	}
	if txnID := ctx.Value(TxnIDKey); txnID != nil {
		entry = entry.WithField("txn_id", txnID)
	}

	return entry
}

// WithFields creates a new logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a new logger entry carrying an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithLocus adds the current locus name to the context.
func WithLocus(ctx context.Context, locus string) context.Context {
	return context.WithValue(ctx, LocusKey, locus)
}

// WithAllele adds the selected allele id to the context.
func WithAllele(ctx context.Context, alleleID string) context.Context {
	return context.WithValue(ctx, AlleleIDKey, alleleID)
}

// WithTxn adds the open transaction id to the context.
func WithTxn(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, TxnIDKey, txnID)
}

// LogExecution logs the outcome of one execute_locus attempt.
func (l *Logger) LogExecution(ctx context.Context, locus, alleleID string, success bool, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"locus":       locus,
		"allele_id":   alleleID,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("locus execution failed")
		return
	}
	entry.Info("locus execution")
}

// LogPromotion logs a dominance change for a locus.
func (l *Logger) LogPromotion(ctx context.Context, locus, newDominant, oldDominant string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"locus":        locus,
		"new_dominant": newDominant,
		"old_dominant": oldDominant,
	}).Info("allele promoted")
}

// LogMutation logs a mutation attempt for an exhausted locus.
func (l *Logger) LogMutation(ctx context.Context, locus string, attempt int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"locus":   locus,
		"attempt": attempt,
	})
	if err != nil {
		entry.WithError(err).Warn("mutation attempt failed")
		return
	}
	entry.Info("mutation attempt succeeded")
}

// Error logs an error message with fields.
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.WithFields(fields).Error(message)
}

// Info logs an info message with fields.
func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(message)
}

// Warn logs a warning message with fields.
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(message)
}

var defaultLogger *Logger

// InitDefault initializes the package default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package default logger, creating a fallback if unset.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("sg", "info", "json")
	}
	return defaultLogger
}

// FormatDuration renders a duration as milliseconds with two decimal places.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
