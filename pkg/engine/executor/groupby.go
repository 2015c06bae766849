package executor

import (
	"context"
	"math"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/crossquery/crossquery/pkg/engine/aggregate"
)

// ContinuationNotSupportedWithGroupBy is reported on every page of a GROUP BY
// query, and returned when resuming one.
const ContinuationNotSupportedWithGroupBy = "Continuation token is not supported for queries with GROUP BY. " +
	"Do not persist the continuation token of the query or remove the GROUP BY from the query."

// groupByComponent groups the rows of its source. It drains the whole source
// before emitting any group (accumulating), then emits the groups in pages
// (emitting). Pages returned while accumulating are empty.
type groupByComponent struct {
	passthrough
	logger  log.Logger
	metrics *Metrics

	table   *groupingTable
	sealed  bool
	emitted int // groups consumed from the sorted key list
	pages   int // pages emitted
	done    bool

	// err is sticky: a malformed row or an exceeded group limit ends the query.
	err error
}

// NewGroupBy returns a component computing the groups of source. spec must
// have been validated. A maxGroups of zero means no limit.
func NewGroupBy(source Component, spec *aggregate.Spec, maxGroups int, logger log.Logger, metrics *Metrics) Component {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &groupByComponent{
		passthrough: newPassthrough(source),
		logger:      logger,
		metrics:     metrics,
		table:       newGroupingTable(spec, maxGroups),
	}
}

// Drain implements [Component].
func (c *groupByComponent) Drain(ctx context.Context, maxElements int) (*Response, error) {
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
		return c.accumulate(ctx)
	}
	return c.emit(maxElements)
}

func (c *groupByComponent) accumulate(ctx context.Context) (*Response, error) {
	resp, err := c.source.Drain(ctx, math.MaxInt)
	if err != nil || !resp.IsSuccess() {
		return resp, err
	}

	rows := make([]groupedRow, 0, len(resp.Items))
	for _, item := range resp.Items {
		row, err := splitGroupedRow(item)
		if err != nil {
			c.err = err
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := c.table.add(rows); err != nil {
		c.err = err
		return nil, err
	}

	return c.stamp(withCost(resp)), nil
}

func (c *groupByComponent) emit(maxElements int) (*Response, error) {
	if !c.sealed {
		c.table.seal()
		c.sealed = true
		c.metrics.observeGroups(c.table.count())
		level.Debug(c.logger).Log("msg", "group by input drained", "groups", c.table.count())
	}

	items, consumed, err := c.table.results(c.emitted, maxElements)
	if err != nil {
		c.err = err
		return nil, err
	}
	c.emitted += consumed
	c.pages++
	c.done = c.emitted >= len(c.table.sorted)
	if c.done {
		level.Debug(c.logger).Log("msg", "group by finished", "groups", c.emitted, "pages", c.pages)
	}

	resp := emptyResponse()
	resp.Items = items
	return c.stamp(resp), nil
}

func (c *groupByComponent) stamp(resp *Response) *Response {
	resp.ContinuationToken = ""
	resp.DisallowContinuationMessage = ContinuationNotSupportedWithGroupBy
	return resp
}

// IsDone implements [Component].
func (c *groupByComponent) IsDone() bool { return c.done }

// ContinuationToken implements [Component]. GROUP BY queries cannot be
// resumed.
func (c *groupByComponent) ContinuationToken() (string, bool) { return "", false }
