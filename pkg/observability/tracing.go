// Package observability traces the stages of a mongobridge run with
// OpenTelemetry.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/mongobridge"

// Tracer starts one span per pipeline stage
type Tracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
	once     sync.Once
}

// NewTracer creates a tracer exporting to stdout, or to cfg.Output
func NewTracer(cfg TracingConfig) (*Tracer, error) {
	return newTracer(cfg, nil)
}

// NewTracerWithExporter creates a tracer exporting to exporter
func NewTracerWithExporter(cfg TracingConfig, exporter sdktrace.SpanExporter) (*Tracer, error) {
	return newTracer(cfg, exporter)
}

func newTracer(cfg TracingConfig, exporter sdktrace.SpanExporter) (*Tracer, error) {
	tp, shutdown, err := newProvider(cfg, exporter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to set up tracing")
	}
	return &Tracer{
		tracer:   tp.Tracer(instrumentationName),
		shutdown: shutdown,
	}, nil
}

// NoopTracer returns a tracer that records nothing
func NoopTracer() *Tracer {
	t, _ := newTracer(TracingConfig{}, nil)
	return t
}

// Span wraps a trace span with batched attributes
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// StartSpan starts a span named name
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute, applied when the span ends
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case fmt.Stringer:
		attr = attribute.String(key, v.String())
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed. A nil error marks it ok.
func (s *Span) RecordError(err error) {
	if err == nil {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.SetAttribute("error.type", string(errors.TypeOf(err)))
}

// Duration returns the time since the span started
func (s *Span) Duration() time.Duration {
	return time.Since(s.startTime)
}

// End applies the batched attributes and ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// Stage runs fn inside a span named "stage.<name>" and returns fn's error
// and the elapsed time.
func (t *Tracer) Stage(ctx context.Context, name string, fn func(ctx context.Context, span *Span) error) (time.Duration, error) {
	ctx, span := t.StartSpan(ctx, "stage."+name)
	defer span.End()

	span.SetAttribute("stage", name)
	err := fn(ctx, span)
	span.RecordError(err)
	return span.Duration(), err
}

// Shutdown flushes pending spans. Calling it more than once is safe.
func (t *Tracer) Shutdown(ctx context.Context) error {
	var err error
	t.once.Do(func() {
		err = t.shutdown(ctx)
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush traces")
	}
	return nil
}
