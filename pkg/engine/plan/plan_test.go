package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crossquery/crossquery/pkg/engine/aggregate"
)

func TestParse(t *testing.T) {
	p, err := Parse(strings.NewReader(`
environment: partitioned
operators:
  - kind: group_by
    aliases: [team, score]
    aggregates:
      score: sum
  - kind: offset
    count: 1
  - kind: top
    count: 10
`))
	require.NoError(t, err)
	require.Equal(t, aggregate.EnvironmentPartitioned, p.Environment)
	require.Len(t, p.Operators, 3)
	require.Equal(t, aggregate.Sum, p.Operators[0].Aggregates["score"])
	require.Equal(t, "group_by -> offset -> top", p.String())
	require.False(t, p.Resumable())

	spec := p.Operators[0].AggregateSpec(p.Environment)
	require.Equal(t, []string{"team", "score"}, spec.Aliases)
	require.Equal(t, aggregate.EnvironmentPartitioned, spec.Environment)
}

func TestParse_Empty(t *testing.T) {
	p, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, p.Operators)
	require.True(t, p.Resumable())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("operators:\n  - kind: top\n    cnt: 3\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		ops     []Operator
		wantErr string
	}{
		{name: "empty"},
		{name: "full", ops: []Operator{
			{Kind: Aggregate, Aliases: []string{"$1"}, Aggregates: map[string]aggregate.Operator{"$1": aggregate.Count}, SelectValue: true},
			{Kind: Distinct},
			{Kind: Offset, Count: 2},
			{Kind: Limit, Count: 2},
			{Kind: Top, Count: 3},
		}},
		{name: "unknown kind", ops: []Operator{{Kind: "sort"}}, wantErr: "unknown kind"},
		{name: "group by and aggregate", ops: []Operator{
			{Kind: GroupBy, Aliases: []string{"a"}},
			{Kind: Aggregate, Aliases: []string{"a"}},
		}, wantErr: "cannot follow"},
		{name: "offset after limit", ops: []Operator{{Kind: Limit, Count: 1}, {Kind: Offset, Count: 1}}, wantErr: "cannot follow"},
		{name: "negative count", ops: []Operator{{Kind: Top, Count: -1}}, wantErr: "must not be negative"},
		{name: "invalid projection", ops: []Operator{{Kind: GroupBy}}, wantErr: "at least one alias"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := (&Plan{Operators: tc.ops}).Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
