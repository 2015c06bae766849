// Package aggregate implements the per-group accumulation of aggregate
// columns shared by GROUP BY and scalar aggregate execution.
package aggregate

import (
	"fmt"
	"strings"
)

// Operator is an aggregate function applied to a column.
type Operator int

const (
	Sum Operator = iota + 1
	Count
	Min
	Max
	Average
)

var operatorNames = map[Operator]string{
	Sum:     "Sum",
	Count:   "Count",
	Min:     "Min",
	Max:     "Max",
	Average: "Average",
}

func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// ParseOperator parses an operator name, case insensitively. "Avg" is
// accepted as an alias of Average.
func ParseOperator(s string) (Operator, error) {
	if strings.EqualFold(s, "avg") {
		return Average, nil
	}
	for op, name := range operatorNames {
		if strings.EqualFold(s, name) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown aggregate operator %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (op Operator) MarshalText() ([]byte, error) {
	if _, ok := operatorNames[op]; !ok {
		return nil, fmt.Errorf("unknown aggregate operator %d", int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (op *Operator) UnmarshalText(text []byte) error {
	parsed, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// UnmarshalYAML implements the yaml.v2 Unmarshaler interface.
func (op *Operator) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return op.UnmarshalText([]byte(s))
}

// Environment describes what the rows fed to an aggregator contain.
type Environment int

const (
	// EnvironmentClient feeds raw rows; all aggregation happens here.
	EnvironmentClient Environment = iota
	// EnvironmentPartitioned feeds per-partition partial aggregates which are
	// merged here. Partials may be wrapped as {"item": value}, and averages
	// arrive as {"sum": s, "count": n}.
	EnvironmentPartitioned
)

func (e Environment) String() string {
	switch e {
	case EnvironmentClient:
		return "client"
	case EnvironmentPartitioned:
		return "partitioned"
	default:
		return fmt.Sprintf("Environment(%d)", int(e))
	}
}

// UnmarshalYAML implements the yaml.v2 Unmarshaler interface.
func (e *Environment) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "", "client":
		*e = EnvironmentClient
	case "partitioned":
		*e = EnvironmentPartitioned
	default:
		return fmt.Errorf("unknown execution environment %q", s)
	}
	return nil
}
