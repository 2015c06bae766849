package executor

import (
	"context"

	"github.com/dolthub/swiss"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/continuation"
)

// DistinctType selects how duplicates are detected.
type DistinctType int

const (
	// DistinctUnordered remembers every row emitted so far.
	DistinctUnordered DistinctType = iota
	// DistinctOrdered relies on the source being sorted, so duplicates are
	// adjacent and only the previous row needs to be remembered.
	DistinctOrdered
)

func (t DistinctType) String() string {
	if t == DistinctOrdered {
		return "ordered"
	}
	return "unordered"
}

// distinctComponent drops rows equal to a row it already emitted. Rows are
// compared by their canonical hash, so two objects with the same fields in a
// different order are duplicates.
type distinctComponent struct {
	passthrough
	typ DistinctType

	// last is the hash of the previous emitted row of an ordered distinct.
	last    document.Hash
	hasLast bool

	seen *swiss.Map[document.Hash, struct{}]
}

// NewDistinct returns a component removing duplicate rows of source.
func NewDistinct(source Component, typ DistinctType) Component {
	c := &distinctComponent{passthrough: newPassthrough(source), typ: typ}
	if typ == DistinctUnordered {
		c.seen = swiss.NewMap[document.Hash, struct{}](64)
	}
	return c
}

func resumeDistinct(source Component, frame continuation.Frame) (Component, error) {
	if frame.Distinct.Ordered {
		c := NewDistinct(source, DistinctOrdered).(*distinctComponent)
		last, ok, err := frame.Distinct.LastHash()
		if err != nil {
			return nil, err
		}
		c.last, c.hasLast = last, ok
		return c, nil
	}

	hashes, err := frame.Distinct.Hashes()
	if err != nil {
		return nil, err
	}
	c := NewDistinct(source, DistinctUnordered).(*distinctComponent)
	for _, h := range hashes {
		c.seen.Put(h, struct{}{})
	}
	return c, nil
}

// Drain implements [Component].
func (c *distinctComponent) Drain(ctx context.Context, maxElements int) (*Response, error) {
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

	kept := resp.Items[:0]
	for _, item := range resp.Items {
		if c.admit(document.HashValue(item)) {
			kept = append(kept, item)
		}
	}
	resp.Items = kept
	resp.ContinuationToken = tokenOrEmpty(c)
	return resp, nil
}

// admit records h and reports whether its row is new.
func (c *distinctComponent) admit(h document.Hash) bool {
	if c.typ == DistinctOrdered {
		if c.hasLast && c.last == h {
			return false
		}
		c.last, c.hasLast = h, true
		return true
	}

	if c.seen.Has(h) {
		return false
	}
	c.seen.Put(h, struct{}{})
	return true
}

// ContinuationToken implements [Component].
func (c *distinctComponent) ContinuationToken() (string, bool) {
	if c.IsDone() {
		return "", true
	}
	src, ok := c.source.ContinuationToken()
	if !ok {
		return "", false
	}

	var state *continuation.DistinctState
	if c.typ == DistinctOrdered {
		state = &continuation.DistinctState{Ordered: true}
		if c.hasLast {
			state.Last = c.last.String()
		}
	} else {
		hashes := make([]document.Hash, 0, c.seen.Count())
		c.seen.Iter(func(h document.Hash, _ struct{}) bool {
			hashes = append(hashes, h)
			return false
		})
		state = continuation.NewDistinctState(hashes)
	}
	return marshalFrame(continuation.Frame{Kind: continuation.KindDistinct, Distinct: state, Source: src})
}
