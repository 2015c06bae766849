package executor

import (
	"context"
	"fmt"

	"github.com/go-kit/log"

	"github.com/crossquery/crossquery/pkg/engine/continuation"
	"github.com/crossquery/crossquery/pkg/engine/plan"
)

// SourceFactory creates the component reading from the partitions. token is
// the position to resume from, or empty to start from the beginning.
type SourceFactory func(ctx context.Context, token string) (Component, error)

// Options configures the components built by [Build].
type Options struct {
	Logger  log.Logger
	Metrics *Metrics
	// MaxGroups limits the number of groups of GROUP BY queries. Zero means
	// no limit.
	MaxGroups int
}

// Build assembles the components of p on top of the source created by
// newSource. A non-empty token resumes a previous execution of the same plan;
// each component takes its state from the token and hands the rest to the
// component below it.
func Build(ctx context.Context, p *plan.Plan, token string, newSource SourceFactory, opts Options) (Component, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	frames := make([]*continuation.Frame, len(p.Operators))
	sourceToken := token
	if token != "" {
		for _, op := range p.Operators {
			if _, resumable := frameKind(op); !resumable {
				return nil, &ContinuationNotSupportedError{Message: disallowMessage(op.Kind)}
			}
		}
		for i := len(p.Operators) - 1; i >= 0; i-- {
			op := p.Operators[i]
			kind, _ := frameKind(op)
			frame, err := continuation.Unmarshal(sourceToken, kind)
			if err != nil {
				return nil, fmt.Errorf("resuming %s: %w", op.Kind, err)
			}
			frames[i] = &frame
			sourceToken = frame.Source
		}
	}

	source, err := newSource(ctx, sourceToken)
	if err != nil {
		return nil, fmt.Errorf("creating source: %w", err)
	}

	var c Component = traceComponent("source", source, opts.Metrics)
	for i, op := range p.Operators {
		next, err := buildOperator(c, p, op, frames[i], opts)
		if err != nil {
			c.Close()
			return nil, err
		}
		c = traceComponent(string(op.Kind), next, opts.Metrics)
	}
	return c, nil
}

func buildOperator(source Component, p *plan.Plan, op plan.Operator, frame *continuation.Frame, opts Options) (Component, error) {
	switch op.Kind {
	case plan.GroupBy:
		return NewGroupBy(source, op.AggregateSpec(p.Environment), opts.MaxGroups, opts.Logger, opts.Metrics), nil
	case plan.Aggregate:
		return NewAggregate(source, op.AggregateSpec(p.Environment)), nil
	case plan.Distinct:
		if frame != nil {
			if frame.Distinct.Ordered != op.Ordered {
				return nil, fmt.Errorf("resuming distinct: %w: distinct type does not match the plan", continuation.ErrMalformedToken)
			}
			return resumeDistinct(source, *frame)
		}
		typ := DistinctUnordered
		if op.Ordered {
			typ = DistinctOrdered
		}
		return NewDistinct(source, typ), nil
	case plan.Offset:
		if frame != nil {
			return resumeSkip(source, *frame), nil
		}
		return NewSkip(source, op.Count), nil
	case plan.Limit, plan.Top:
		if frame != nil {
			return resumeTake(source, *frame), nil
		}
		kind, _ := frameKind(op)
		return NewTake(source, kind, op.Count), nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", op.Kind)
	}
}

// frameKind returns the kind of token written by the component of op, or
// false if the component cannot be resumed.
func frameKind(op plan.Operator) (continuation.Kind, bool) {
	switch op.Kind {
	case plan.Distinct:
		return continuation.KindDistinct, true
	case plan.Offset:
		return continuation.KindSkip, true
	case plan.Limit:
		return continuation.KindLimit, true
	case plan.Top:
		return continuation.KindTop, true
	default:
		return "", false
	}
}

func disallowMessage(kind plan.OperatorKind) string {
	if kind == plan.Aggregate {
		return ContinuationNotSupportedWithAggregate
	}
	return ContinuationNotSupportedWithGroupBy
}
