// Package plan describes the client side operators of a cross partition
// query, as produced by the query planner.
package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/crossquery/crossquery/pkg/engine/aggregate"
)

// OperatorKind names a client side operator.
type OperatorKind string

const (
	GroupBy   OperatorKind = "group_by"
	Aggregate OperatorKind = "aggregate"
	Distinct  OperatorKind = "distinct"
	Offset    OperatorKind = "offset"
	Limit     OperatorKind = "limit"
	Top       OperatorKind = "top"
)

// Operator is one operator of a plan. Which fields are used depends on Kind.
type Operator struct {
	Kind OperatorKind `yaml:"kind"`

	// Aliases and Aggregates declare the projection of group_by and
	// aggregate operators.
	Aliases     []string                      `yaml:"aliases,omitempty"`
	Aggregates  map[string]aggregate.Operator `yaml:"aggregates,omitempty"`
	SelectValue bool                          `yaml:"select_value,omitempty"`

	// Ordered selects the ordered distinct variant, valid when the query has
	// an ORDER BY.
	Ordered bool `yaml:"ordered,omitempty"`

	// Count is the number of rows of offset, limit and top operators.
	Count int64 `yaml:"count,omitempty"`
}

// Plan is the list of client side operators of a query, ordered from the one
// closest to the partitions to the one producing the final result.
type Plan struct {
	// Environment states whether partitions return raw rows or partial
	// aggregates.
	Environment aggregate.Environment `yaml:"environment"`
	Operators   []Operator            `yaml:"operators"`
}

// position returns the rank operators must respect within a plan.
func (k OperatorKind) position() int {
	switch k {
	case GroupBy, Aggregate:
		return 0
	case Distinct:
		return 1
	case Offset:
		return 2
	case Limit:
		return 3
	case Top:
		return 4
	default:
		return -1
	}
}

// Validate checks that p can be executed.
func (p *Plan) Validate() error {
	last := -1
	for i, op := range p.Operators {
		pos := op.Kind.position()
		if pos < 0 {
			return fmt.Errorf("operator %d: unknown kind %q", i, op.Kind)
		}
		if pos <= last {
			return fmt.Errorf("operator %d: %s cannot follow %s", i, op.Kind, p.Operators[i-1].Kind)
		}
		last = pos

		switch op.Kind {
		case GroupBy, Aggregate:
			if err := op.AggregateSpec(p.Environment).Validate(); err != nil {
				return fmt.Errorf("operator %d (%s): %w", i, op.Kind, err)
			}
		case Offset, Limit, Top:
			if op.Count < 0 {
				return fmt.Errorf("operator %d (%s): count must not be negative, got %d", i, op.Kind, op.Count)
			}
		}
	}
	return nil
}

// AggregateSpec returns the projection of a group_by or aggregate operator.
func (o Operator) AggregateSpec(env aggregate.Environment) *aggregate.Spec {
	return &aggregate.Spec{
		Aliases:     o.Aliases,
		Operators:   o.Aggregates,
		SelectValue: o.SelectValue,
		Environment: env,
	}
}

// Resumable reports whether queries with this plan can be resumed from a
// continuation token.
func (p *Plan) Resumable() bool {
	for _, op := range p.Operators {
		if op.Kind == GroupBy || op.Kind == Aggregate {
			return false
		}
	}
	return true
}

func (p *Plan) String() string {
	kinds := make([]string, len(p.Operators))
	for i, op := range p.Operators {
		kinds[i] = string(op.Kind)
	}
	return strings.Join(kinds, " -> ")
}

// Parse reads a YAML plan and validates it.
func Parse(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a YAML plan from a file.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
