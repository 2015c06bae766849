package executor

import (
	"context"
	"fmt"
	"math"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/aggregate"
)

// ContinuationNotSupportedWithAggregate is reported on every page of a query
// aggregating all rows into a single result.
const ContinuationNotSupportedWithAggregate = "Continuation token is not supported for queries with aggregates and no GROUP BY. " +
	"Do not persist the continuation token of the query."

// aggregateComponent folds every row of its source into a single group and
// emits its result once the source is drained.
type aggregateComponent struct {
	passthrough
	group *aggregate.SingleGroupAggregator
	done  bool
	err   error
}

// NewAggregate returns a component aggregating all rows of source. spec must
// have been validated.
func NewAggregate(source Component, spec *aggregate.Spec) Component {
	return &aggregateComponent{
		passthrough: newPassthrough(source),
		group:       aggregate.NewSingleGroupAggregator(spec),
	}
}

// Drain implements [Component].
func (c *aggregateComponent) Drain(ctx context.Context, maxElements int) (*Response, error) {
	if err := beginDrain(ctx, maxElements); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.done {
		return c.stamp(emptyResponse()), nil
	}

	if !c.source.IsDone() {
		resp, err := c.source.Drain(ctx, math.MaxInt)
		if err != nil || !resp.IsSuccess() {
			return resp, err
		}
		for _, item := range resp.Items {
			if err := c.group.AddValues(item); err != nil {
				c.err = fmt.Errorf("%w: %w", ErrMalformedProjection, err)
				return nil, c.err
			}
		}
		return c.stamp(withCost(resp)), nil
	}

	result, err := c.group.GetResult()
	if err != nil {
		c.err = err
		return nil, err
	}
	c.done = true

	resp := emptyResponse()
	if !result.IsUndefined() {
		resp.Items = []document.Value{result}
	}
	return c.stamp(resp), nil
}

func (c *aggregateComponent) stamp(resp *Response) *Response {
	resp.ContinuationToken = ""
	resp.DisallowContinuationMessage = ContinuationNotSupportedWithAggregate
	return resp
}

// IsDone implements [Component].
func (c *aggregateComponent) IsDone() bool { return c.done }

// ContinuationToken implements [Component].
func (c *aggregateComponent) ContinuationToken() (string, bool) { return "", false }
