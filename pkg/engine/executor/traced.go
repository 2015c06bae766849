package executor

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pkg/engine/executor")

type tracedComponent struct {
	name    string
	inner   Component
	metrics *Metrics
}

var _ Component = (*tracedComponent)(nil)

// traceComponent wraps a [Component] to record each call to Drain with a span
// and in metrics.
func traceComponent(name string, component Component, metrics *Metrics) *tracedComponent {
	return &tracedComponent{
		name:    name,
		inner:   component,
		metrics: metrics,
	}
}

func (c *tracedComponent) Drain(ctx context.Context, maxElements int) (*Response, error) {
	ctx, span := tracer.Start(ctx, c.name+".Drain", trace.WithAttributes(
		attribute.Int("max_elements", maxElements),
	))
	defer span.End()

	start := time.Now()
	res, err := c.inner.Drain(ctx, maxElements)
	c.observe(res, time.Since(start))

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !res.IsSuccess():
		span.SetAttributes(attribute.Int("status_code", res.Failure.StatusCode))
		span.SetStatus(codes.Error, res.Failure.Error())
	default:
		span.SetAttributes(
			attribute.Int("rows", len(res.Items)),
			attribute.Float64("request_charge", res.RequestCharge),
		)
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

func (c *tracedComponent) observe(res *Response, took time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.drainsTotal.WithLabelValues(c.name).Inc()
	c.metrics.drainSeconds.WithLabelValues(c.name).Observe(took.Seconds())
	if res == nil {
		return
	}
	if !res.IsSuccess() {
		c.metrics.failuresTotal.WithLabelValues(c.name, strconv.Itoa(res.Failure.StatusCode)).Inc()
		return
	}
	c.metrics.rowsTotal.WithLabelValues(c.name).Add(float64(len(res.Items)))
}

func (c *tracedComponent) IsDone() bool { return c.inner.IsDone() }

func (c *tracedComponent) ContinuationToken() (string, bool) { return c.inner.ContinuationToken() }

func (c *tracedComponent) Close() { c.inner.Close() }
