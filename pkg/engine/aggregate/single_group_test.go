package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crossquery/crossquery/pkg/document"
)

func parse(t *testing.T, s string) document.Value {
	t.Helper()
	v, err := document.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestSpecValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{name: "valid", spec: Spec{Aliases: []string{"team", "score"}, Operators: map[string]Operator{"score": Sum}}},
		{name: "no aliases", spec: Spec{}, wantErr: true},
		{name: "select value with two aliases", spec: Spec{Aliases: []string{"a", "b"}, SelectValue: true}, wantErr: true},
		{name: "duplicate alias", spec: Spec{Aliases: []string{"a", "a"}}, wantErr: true},
		{name: "operator for unknown alias", spec: Spec{Aliases: []string{"a"}, Operators: map[string]Operator{"b": Count}}, wantErr: true},
		{name: "invalid operator", spec: Spec{Aliases: []string{"a"}, Operators: map[string]Operator{"a": Operator(42)}}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSingleGroupAggregator(t *testing.T) {
	spec := &Spec{
		Aliases: []string{"team", "total", "n", "low", "high", "mean"},
		Operators: map[string]Operator{
			"total": Sum,
			"n":     Count,
			"low":   Min,
			"high":  Max,
			"mean":  Average,
		},
	}
	require.NoError(t, spec.Validate())

	g := NewSingleGroupAggregator(spec)
	for _, row := range []string{
		`{"team": "A", "total": 10, "n": 1, "low": 10, "high": 10, "mean": 10}`,
		`{"team": "A", "total": null, "n": null, "low": null, "high": null, "mean": null}`,
		`{"team": "A", "total": 20, "n": 1, "low": 20, "high": 20, "mean": 20}`,
		`{"team": "A", "n": 1, "low": 3}`,
	} {
		require.NoError(t, g.AddValues(parse(t, row)))
	}

	result, err := g.GetResult()
	require.NoError(t, err)
	require.JSONEq(t, `{"team":"A","total":30,"n":4,"low":3,"high":20,"mean":15}`, result.String())

	t.Run("finalized exactly once", func(t *testing.T) {
		_, err := g.GetResult()
		require.ErrorIs(t, err, ErrFinalized)
		require.ErrorIs(t, g.AddValues(parse(t, `{"team": "A"}`)), ErrFinalized)
	})
}

func TestSingleGroupAggregator_ColumnOrder(t *testing.T) {
	spec := &Spec{Aliases: []string{"z", "a"}, Operators: map[string]Operator{"z": Count}}
	g := NewSingleGroupAggregator(spec)
	require.NoError(t, g.AddValues(parse(t, `{"a": "x"}`)))

	result, err := g.GetResult()
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":"x"}`, result.String())
}

func TestSingleGroupAggregator_SelectValue(t *testing.T) {
	t.Run("aggregate", func(t *testing.T) {
		g := NewSingleGroupAggregator(&Spec{Aliases: []string{"$1"}, Operators: map[string]Operator{"$1": Max}, SelectValue: true})
		for _, v := range []string{`1`, `"b"`, `"a"`, `true`} {
			require.NoError(t, g.AddValues(parse(t, v)))
		}
		result, err := g.GetResult()
		require.NoError(t, err)
		require.Equal(t, `"b"`, result.String())
	})

	t.Run("plain value", func(t *testing.T) {
		g := NewSingleGroupAggregator(&Spec{Aliases: []string{"$1"}, SelectValue: true})
		require.NoError(t, g.AddValues(parse(t, `"A"`)))
		result, err := g.GetResult()
		require.NoError(t, err)
		require.Equal(t, `"A"`, result.String())
	})

	t.Run("undefined result", func(t *testing.T) {
		g := NewSingleGroupAggregator(&Spec{Aliases: []string{"$1"}, Operators: map[string]Operator{"$1": Average}, SelectValue: true})
		require.NoError(t, g.AddValues(document.Null()))
		result, err := g.GetResult()
		require.NoError(t, err)
		require.True(t, result.IsUndefined())
	})
}

func TestSingleGroupAggregator_MalformedPayload(t *testing.T) {
	g := NewSingleGroupAggregator(&Spec{Aliases: []string{"a"}})
	require.ErrorIs(t, g.AddValues(document.Number(1)), ErrMalformedPayload)
}

func TestAccumulators_EmptyInput(t *testing.T) {
	for op, want := range map[Operator]string{
		Sum:     "0",
		Count:   "0",
		Min:     "",
		Max:     "",
		Average: "",
	} {
		acc, err := newAccumulator(op)
		require.NoError(t, err)
		res := acc.result()
		if want == "" {
			require.True(t, res.IsUndefined(), op.String())
			continue
		}
		require.Equal(t, want, res.String(), op.String())
	}
}

func TestAccumulators_Poisoning(t *testing.T) {
	for _, op := range []Operator{Sum, Average} {
		acc, err := newAccumulator(op)
		require.NoError(t, err)
		acc.add(document.Number(1))
		acc.add(document.String("x"))
		acc.add(document.Number(2))
		require.True(t, acc.result().IsUndefined(), op.String())
	}

	for _, op := range []Operator{Min, Max} {
		acc, err := newAccumulator(op)
		require.NoError(t, err)
		acc.add(document.Number(1))
		acc.add(document.Array())
		require.True(t, acc.result().IsUndefined(), op.String())
	}
}

func TestAverage_OrderIndependent(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 1e-3, 7.25, 1.1, 2.2, 3.3}

	reference := &averageAccumulator{}
	for _, v := range values {
		reference.add(document.Number(v))
	}
	want := reference.result()

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]float64(nil), values...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		acc := &averageAccumulator{}
		for _, v := range shuffled {
			acc.add(document.Number(v))
		}
		require.Equal(t, want, acc.result())
	}

	mean, ok := want.Number()
	require.True(t, ok)
	require.Equal(t, 1.806375, mean)
}

func TestAverage_Precision(t *testing.T) {
	for _, tc := range []struct {
		values []float64
		want   float64
	}{
		{values: []float64{1e-17, 1e-17}, want: 1e-17},
		{values: []float64{1e-20, 2e-20}, want: 1.5e-20},
		{values: []float64{1, 1, 0}, want: 2.0 / 3},
		{values: []float64{0.1, 0.2}, want: 0.15},
		{values: []float64{1e300, 1e300, -1e300}, want: 1e300 / 3},
	} {
		acc := &averageAccumulator{}
		for _, v := range tc.values {
			acc.add(document.Number(v))
		}
		mean, ok := acc.result().Number()
		require.True(t, ok, "%v", tc.values)
		require.Equal(t, tc.want, mean, "%v", tc.values)
	}
}

func TestSum_OutOfRange(t *testing.T) {
	acc := &sumAccumulator{}
	acc.add(document.Number(math.MaxFloat64))
	acc.add(document.Number(math.MaxFloat64))
	require.True(t, acc.result().IsUndefined())

	acc.add(document.Number(-math.MaxFloat64))
	got, ok := acc.result().Number()
	require.True(t, ok)
	require.Equal(t, math.MaxFloat64, got)
}

func TestPartitionedEnvironment(t *testing.T) {
	spec := &Spec{
		Aliases: []string{"n", "total", "mean", "low"},
		Operators: map[string]Operator{
			"n":     Count,
			"total": Sum,
			"mean":  Average,
			"low":   Min,
		},
		Environment: EnvironmentPartitioned,
	}
	require.NoError(t, spec.Validate())

	g := NewSingleGroupAggregator(spec)
	for _, partial := range []string{
		`{"n": {"item": 3}, "total": {"item": 30}, "mean": {"item": {"sum": 30, "count": 3}}, "low": {"item": 5}}`,
		`{"n": {"item": 1}, "total": {"item": 6}, "mean": {"sum": 6, "count": 1}, "low": 2}`,
		`{"n": {}, "total": {}, "mean": {"item": {"sum": null, "count": 0}}, "low": {}}`,
	} {
		require.NoError(t, g.AddValues(parse(t, partial)))
	}

	result, err := g.GetResult()
	require.NoError(t, err)
	require.JSONEq(t, `{"n":4,"total":36,"mean":9,"low":2}`, result.String())

	t.Run("malformed partial", func(t *testing.T) {
		for _, partial := range []string{
			`{"n": {"item": "three"}}`,
			`{"n": {"item": 2.5}}`,
			`{"n": {"item": -1}}`,
			`{"mean": {"item": {"sum": 3, "count": 1.5}}}`,
			`{"mean": {"item": {"sum": 3}}}`,
		} {
			g := NewSingleGroupAggregator(spec)
			err := g.AddValues(parse(t, partial))
			require.ErrorIs(t, err, ErrMalformedPayload, partial)
		}
	})
}

func TestParseOperator(t *testing.T) {
	for in, want := range map[string]Operator{"sum": Sum, "COUNT": Count, "Min": Min, "max": Max, "avg": Average, "average": Average} {
		got, err := ParseOperator(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseOperator("median")
	require.Error(t, err)
}
