package logging

import (
	"context"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	if datasetID := DatasetIDFromContext(ctx); datasetID != "" {
		fields = append(fields, zap.String("dataset.id", datasetID))
	}

	return fields
}

type requestCtxKey struct{}
type datasetCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validID(id string) bool {
	return id != "" &&
		utf8.ValidString(id) &&
		len(id) <= maxIDLen &&
		idPattern.MatchString(id)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context. Request IDs arrive from
// clients, so malformed values are dropped rather than logged.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// DatasetIDFromContext extracts the dataset being operated on.
func DatasetIDFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(datasetCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// WithDatasetID tags the context with a dataset ID. Dataset IDs are opaque
// to the service, so only length and encoding are checked.
func WithDatasetID(ctx context.Context, datasetID string) context.Context {
	if datasetID == "" || len(datasetID) > maxIDLen || !utf8.ValidString(datasetID) {
		return ctx
	}
	return context.WithValue(ctx, datasetCtxKey{}, datasetID)
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
