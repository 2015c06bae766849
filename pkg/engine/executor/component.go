// Package executor implements the client side operators of a cross
// partition query. Each operator is a [Component] that pulls pages from the
// component below it, so a query plan becomes a chain of components ending in
// a source that talks to the partitions.
package executor

import (
	"context"
	"errors"
	"fmt"
)

// Component produces the result pages of a query, one Drain call at a time.
//
// Drain returns either a page or an error. Upstream failures are not errors:
// they are reported as a page whose Failure is set, and the component must
// not be drained again afterwards. Errors are reserved for cancellation and
// for conditions that make the query unusable, such as malformed rows.
//
// A component is not safe for concurrent use; at most one Drain call may be
// outstanding at a time.
type Component interface {
	// Drain returns the next page holding at most maxElements rows. Pages may
	// be empty while a component buffers its input. Draining a component
	// that is done returns an empty page.
	Drain(ctx context.Context, maxElements int) (*Response, error)
	// IsDone reports whether the component has no further output.
	IsDone() bool
	// ContinuationToken returns the token that resumes the component at its
	// current position. It returns an empty token once the component is
	// done, and ok is false if the component cannot be resumed.
	ContinuationToken() (token string, ok bool)
	// Close releases the resources of the component and its sources.
	Close()
}

var (
	// ErrInvalidPageSize is returned when Drain is called with a
	// non-positive page size.
	ErrInvalidPageSize = errors.New("maxElements must be positive")

	// ErrMalformedProjection is returned when a row does not have the shape
	// the query plan declared.
	ErrMalformedProjection = errors.New("malformed row projection")

	// ErrTooManyGroups is returned when a GROUP BY query exceeds the
	// configured group limit.
	ErrTooManyGroups = errors.New("too many groups")
)

// ContinuationNotSupportedError is returned when resuming a pipeline that
// cannot be resumed.
type ContinuationNotSupportedError struct {
	Message string
}

func (e *ContinuationNotSupportedError) Error() string { return e.Message }

// beginDrain validates the arguments of a Drain call. Every component checks
// cancellation before doing any work.
func beginDrain(ctx context.Context, maxElements int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if maxElements <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, maxElements)
	}
	return nil
}

// passthrough forwards every call to its source. Operators embed it and
// override what they change.
type passthrough struct {
	source Component
}

var _ Component = (*passthrough)(nil)

func newPassthrough(source Component) passthrough {
	return passthrough{source: source}
}

// Drain implements [Component].
func (p *passthrough) Drain(ctx context.Context, maxElements int) (*Response, error) {
	if err := beginDrain(ctx, maxElements); err != nil {
		return nil, err
	}
	return p.source.Drain(ctx, maxElements)
}

// IsDone implements [Component].
func (p *passthrough) IsDone() bool { return p.source.IsDone() }

// ContinuationToken implements [Component].
func (p *passthrough) ContinuationToken() (string, bool) { return p.source.ContinuationToken() }

// Close implements [Component].
func (p *passthrough) Close() { p.source.Close() }

