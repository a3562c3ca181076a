package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Span struct {
	span   trace.Span
	logger *zap.Logger
}

func StartSpan(ctx context.Context, tracer trace.Tracer, logger *zap.Logger, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	return ctx, &Span{
		span:   span,
		logger: logger,
	}
}

// End closes the span, marking it failed when err is non-nil.
func (s *Span) End(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
		s.logger.Debug("span failed", zap.Error(err))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}

	s.span.End()
}

func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// Attempt records a numbered retry event.
func (s *Span) Attempt(name string, attempt int, err error) {
	attrs := []attribute.KeyValue{attribute.Int("attempt", attempt)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}

	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}
