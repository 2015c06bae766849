// Package spanlogger pairs a go-kit logger with an OpenTelemetry span so that
// one call both logs and annotates the trace.
package spanlogger

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pkg/util/spanlogger")

type loggerCtxKey struct{}

// SpanLogger unifies tracing and logging, to reduce repetition.
type SpanLogger struct {
	log.Logger
	trace.Span
}

// New starts a span named method and returns a SpanLogger writing to logger.
// kvps are added to every log line and to the span. The returned context
// carries the span and the logger; retrieve them with FromContext.
func New(ctx context.Context, logger log.Logger, method string, kvps ...interface{}) (*SpanLogger, context.Context) {
	ctx, span := tracer.Start(ctx, method)
	span.SetAttributes(attributes(kvps)...)

	l := &SpanLogger{
		Logger: log.With(logger, append([]interface{}{"method", method}, kvps...)...),
		Span:   span,
	}
	return l, context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns a span logger using the current parent span. If the
// context doesn't have a logger, the fallback logger is used.
func FromContext(ctx context.Context, fallback log.Logger) *SpanLogger {
	logger, ok := ctx.Value(loggerCtxKey{}).(log.Logger)
	if !ok {
		logger = fallback
	}
	return &SpanLogger{
		Logger: logger,
		Span:   trace.SpanFromContext(ctx),
	}
}

// Log implements log.Logger. The line is also added to the span as an event.
func (s *SpanLogger) Log(kvps ...interface{}) error {
	if s.Span.IsRecording() {
		s.Span.AddEvent("log", trace.WithAttributes(attributes(kvps)...))
	}
	return s.Logger.Log(kvps...)
}

// Error records err on the span and marks it failed. It returns err.
func (s *SpanLogger) Error(err error) error {
	if err == nil {
		return nil
	}
	s.Span.RecordError(err)
	s.Span.SetStatus(codes.Error, err.Error())
	return err
}

func attributes(kvps []interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kvps)/2)
	for i := 0; i+1 < len(kvps); i += 2 {
		key := fmt.Sprint(kvps[i])
		switch v := kvps[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case error:
			attrs = append(attrs, attribute.String(key, v.Error()))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return attrs
}
