package aggregate

import (
	"errors"
	"fmt"

	"github.com/crossquery/crossquery/pkg/document"
)

var (
	// ErrMalformedPayload is returned when a row payload does not have the
	// shape the aggregator was declared with.
	ErrMalformedPayload = errors.New("malformed aggregate payload")

	// ErrFinalized is returned when an aggregator is used after GetResult.
	ErrFinalized = errors.New("aggregator already finalized")
)

// Spec declares the output columns of a group.
type Spec struct {
	// Aliases lists the output columns in projection order.
	Aliases []string
	// Operators maps aggregated aliases to their operator. Aliases missing
	// from the map are plain columns.
	Operators map[string]Operator
	// SelectValue is set for SELECT VALUE projections: the group produces the
	// bare value of its single alias instead of an object.
	SelectValue bool
	// Environment determines whether rows carry raw values or partials.
	Environment Environment
}

// Validate checks that s describes a well formed projection.
func (s Spec) Validate() error {
	if len(s.Aliases) == 0 {
		return errors.New("aggregate spec requires at least one alias")
	}
	if s.SelectValue && len(s.Aliases) != 1 {
		return fmt.Errorf("SELECT VALUE requires exactly one alias, got %d", len(s.Aliases))
	}

	seen := make(map[string]struct{}, len(s.Aliases))
	for _, alias := range s.Aliases {
		if _, dup := seen[alias]; dup {
			return fmt.Errorf("duplicate alias %q", alias)
		}
		seen[alias] = struct{}{}
	}
	for alias, op := range s.Operators {
		if _, ok := seen[alias]; !ok {
			return fmt.Errorf("aggregate operator declared for unknown alias %q", alias)
		}
		if _, ok := operatorNames[op]; !ok {
			return fmt.Errorf("alias %q: unsupported aggregate operator %s", alias, op)
		}
	}
	return nil
}

// SingleGroupAggregator accumulates the rows of one group and produces its
// output row once.
type SingleGroupAggregator struct {
	spec      *Spec
	columns   []accumulator
	finalized bool
}

// NewSingleGroupAggregator creates an empty aggregator for spec. spec must
// have passed [Spec.Validate] and must not be modified afterwards.
func NewSingleGroupAggregator(spec *Spec) *SingleGroupAggregator {
	columns := make([]accumulator, len(spec.Aliases))
	for i, alias := range spec.Aliases {
		op, ok := spec.Operators[alias]
		if !ok {
			columns[i] = &lastValue{}
			continue
		}
		acc, err := newAccumulator(op)
		if err != nil {
			// Unreachable for validated specs.
			panic(err)
		}
		columns[i] = acc
	}
	return &SingleGroupAggregator{spec: spec, columns: columns}
}

// AddValues folds one row payload into the group. For SELECT VALUE the
// payload is the value itself, otherwise it is an object keyed by alias.
func (g *SingleGroupAggregator) AddValues(payload document.Value) error {
	if g.finalized {
		return ErrFinalized
	}

	if g.spec.SelectValue {
		return g.fold(g.columns[0], g.spec.Aliases[0], payload)
	}

	if _, ok := payload.Object(); !ok {
		return fmt.Errorf("%w: expected an object, got %s", ErrMalformedPayload, payload.Kind())
	}
	for i, alias := range g.spec.Aliases {
		if err := g.fold(g.columns[i], alias, payload.Get(alias)); err != nil {
			return err
		}
	}
	return nil
}

func (g *SingleGroupAggregator) fold(acc accumulator, alias string, v document.Value) error {
	if g.spec.Environment == EnvironmentClient {
		acc.add(v)
		return nil
	}
	if err := acc.merge(v); err != nil {
		return fmt.Errorf("%w: alias %q: %s", ErrMalformedPayload, alias, err)
	}
	return nil
}

// GetResult finalizes the group. With SELECT VALUE the result may be
// undefined, meaning the group produces no output.
func (g *SingleGroupAggregator) GetResult() (document.Value, error) {
	if g.finalized {
		return document.Undefined(), ErrFinalized
	}
	g.finalized = true

	if g.spec.SelectValue {
		return g.columns[0].result(), nil
	}

	obj := document.NewObject()
	for i, alias := range g.spec.Aliases {
		obj.Set(alias, g.columns[i].result())
	}
	return document.FromObject(obj), nil
}
