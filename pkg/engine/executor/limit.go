package executor

import (
	"context"

	"github.com/crossquery/crossquery/pkg/engine/continuation"
)

// skipComponent drops the first rows of its source. The offset may span
// several source pages.
type skipComponent struct {
	passthrough
	remaining int64
}

// NewSkip returns a component that drops the first offset rows of source.
func NewSkip(source Component, offset int64) Component {
	return &skipComponent{passthrough: newPassthrough(source), remaining: offset}
}

// resumeSkip rebuilds a skip component from its continuation frame.
func resumeSkip(source Component, frame continuation.Frame) Component {
	return NewSkip(source, frame.Count)
}

// Drain implements [Component].
func (c *skipComponent) Drain(ctx context.Context, maxElements int) (*Response, error) {
	if err := beginDrain(ctx, maxElements); err != nil {
		return nil, err
	}
	if c.IsDone() {
		return emptyResponse(), nil
	}

	resp, err := c.source.Drain(ctx, maxElements)
	if err != nil || !resp.IsSuccess() {
		return resp, err
	}

	skipped := min(c.remaining, int64(len(resp.Items)))
	c.remaining -= skipped
	resp.Items = resp.Items[skipped:]
	resp.ContinuationToken = tokenOrEmpty(c)
	return resp, nil
}

// ContinuationToken implements [Component].
func (c *skipComponent) ContinuationToken() (string, bool) {
	if c.IsDone() {
		return "", true
	}
	src, ok := c.source.ContinuationToken()
	if !ok {
		return "", false
	}
	return marshalFrame(continuation.Frame{Kind: continuation.KindSkip, Count: c.remaining, Source: src})
}

// takeComponent emits at most a fixed number of rows of its source. TOP and
// LIMIT behave the same and only differ in the kind of token they write.
type takeComponent struct {
	passthrough
	kind      continuation.Kind
	remaining int64
}

// NewTake returns a component that emits the first count rows of source.
// kind is either [continuation.KindLimit] or [continuation.KindTop].
func NewTake(source Component, kind continuation.Kind, count int64) Component {
	return &takeComponent{passthrough: newPassthrough(source), kind: kind, remaining: count}
}

func resumeTake(source Component, frame continuation.Frame) Component {
	return NewTake(source, frame.Kind, frame.Count)
}

// Drain implements [Component].
func (c *takeComponent) Drain(ctx context.Context, maxElements int) (*Response, error) {
	if err := beginDrain(ctx, maxElements); err != nil {
		return nil, err
	}
	if c.IsDone() {
		return emptyResponse(), nil
	}

	// Never ask the source for rows that would be thrown away.
	resp, err := c.source.Drain(ctx, int(min(int64(maxElements), c.remaining)))
	if err != nil || !resp.IsSuccess() {
		return resp, err
	}

	if int64(len(resp.Items)) > c.remaining {
		resp.Items = resp.Items[:c.remaining]
	}
	c.remaining -= int64(len(resp.Items))
	resp.ContinuationToken = tokenOrEmpty(c)
	return resp, nil
}

// IsDone implements [Component].
func (c *takeComponent) IsDone() bool {
	return c.remaining <= 0 || c.source.IsDone()
}

// ContinuationToken implements [Component].
func (c *takeComponent) ContinuationToken() (string, bool) {
	if c.IsDone() {
		return "", true
	}
	src, ok := c.source.ContinuationToken()
	if !ok {
		return "", false
	}
	return marshalFrame(continuation.Frame{Kind: c.kind, Count: c.remaining, Source: src})
}

// marshalFrame serializes a frame for ContinuationToken. Frames only hold
// strings and integers, so marshalling cannot fail in practice; a failure is
// reported as a non-resumable position.
func marshalFrame(f continuation.Frame) (string, bool) {
	token, err := continuation.Marshal(f)
	if err != nil {
		return "", false
	}
	return token, true
}

// tokenOrEmpty returns the token to stamp on a page produced by c.
func tokenOrEmpty(c Component) string {
	token, _ := c.ContinuationToken()
	return token
}
