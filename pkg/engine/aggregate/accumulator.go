package aggregate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/crossquery/crossquery/pkg/document"
)

// accumulator folds values of a single column.
type accumulator interface {
	// add folds a raw row value.
	add(v document.Value)
	// merge folds a partial aggregate produced by a partition.
	merge(partial document.Value) error
	// result returns the final value. Undefined means the column is omitted.
	result() document.Value
}

func newAccumulator(op Operator) (accumulator, error) {
	switch op {
	case Sum:
		return &sumAccumulator{}, nil
	case Count:
		return &countAccumulator{}, nil
	case Min:
		return &extremumAccumulator{want: -1}, nil
	case Max:
		return &extremumAccumulator{want: 1}, nil
	case Average:
		return &averageAccumulator{}, nil
	default:
		return nil, fmt.Errorf("unsupported aggregate operator %s", op)
	}
}

// unwrapPartial strips the {"item": value} envelope partitions use for
// partial aggregates. An empty envelope means the partition had no value.
func unwrapPartial(v document.Value) document.Value {
	obj, ok := v.Object()
	if !ok {
		return v
	}
	switch obj.Len() {
	case 0:
		return document.Undefined()
	case 1:
		if item, ok := obj.Get("item"); ok {
			return item
		}
	}
	return v
}

// sumAccumulator sums numbers exactly so the result is independent of the
// order rows arrive in. Any non-numeric operand makes the sum undefined.
type sumAccumulator struct {
	sum      decimal.Decimal
	poisoned bool
}

func (a *sumAccumulator) add(v document.Value) {
	if a.poisoned || v.IsUndefined() || v.IsNull() {
		return
	}
	f, ok := v.Number()
	if !ok {
		a.poisoned = true
		return
	}
	a.sum = a.sum.Add(decimal.NewFromFloat(f))
}

func (a *sumAccumulator) merge(partial document.Value) error {
	a.add(unwrapPartial(partial))
	return nil
}

func (a *sumAccumulator) result() document.Value {
	if a.poisoned {
		return document.Undefined()
	}
	f := a.sum.InexactFloat64()
	if math.IsInf(f, 0) {
		// Out of float64 range, no JSON number can hold it.
		return document.Undefined()
	}
	return document.Number(f)
}

// countAccumulator counts every row fed to it.
type countAccumulator struct {
	count int64
}

func (a *countAccumulator) add(document.Value) { a.count++ }

func (a *countAccumulator) merge(partial document.Value) error {
	partial = unwrapPartial(partial)
	if partial.IsUndefined() {
		return nil
	}
	n, err := partialCount(partial)
	if err != nil {
		return err
	}
	a.count += n
	return nil
}

// partialCount reads a row count reported by a partition.
func partialCount(v document.Value) (int64, error) {
	f, ok := v.Number()
	if !ok {
		return 0, fmt.Errorf("partial count must be a number, got %s", v.Kind())
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, fmt.Errorf("partial count must be a non-negative integer, got %v", f)
	}
	return int64(f), nil
}

func (a *countAccumulator) result() document.Value {
	return document.Number(float64(a.count))
}

// extremumAccumulator keeps the minimum (want = -1) or maximum (want = 1)
// value, ignoring null. Arrays and objects have no order for MIN/MAX and make
// the result undefined.
type extremumAccumulator struct {
	want     int
	best     document.Value
	poisoned bool
}

func (a *extremumAccumulator) add(v document.Value) {
	if a.poisoned || v.IsUndefined() || v.IsNull() {
		return
	}
	switch v.Kind() {
	case document.KindArray, document.KindObject:
		a.poisoned = true
		return
	}
	if a.best.IsUndefined() || document.Compare(v, a.best) == a.want {
		a.best = v
	}
}

func (a *extremumAccumulator) merge(partial document.Value) error {
	a.add(unwrapPartial(partial))
	return nil
}

func (a *extremumAccumulator) result() document.Value {
	if a.poisoned {
		return document.Undefined()
	}
	return a.best
}

// averageAccumulator keeps the exact sum and the count of numeric operands;
// the mean is computed once, on result.
type averageAccumulator struct {
	sum      decimal.Decimal
	count    int64
	poisoned bool
}

func (a *averageAccumulator) add(v document.Value) {
	if a.poisoned || v.IsUndefined() || v.IsNull() {
		return
	}
	f, ok := v.Number()
	if !ok {
		a.poisoned = true
		return
	}
	a.sum = a.sum.Add(decimal.NewFromFloat(f))
	a.count++
}

func (a *averageAccumulator) merge(partial document.Value) error {
	partial = unwrapPartial(partial)
	if partial.IsUndefined() || a.poisoned {
		return nil
	}
	if _, ok := partial.Object(); !ok {
		return fmt.Errorf("partial average must be an object with sum and count, got %s", partial.Kind())
	}

	countValue := partial.Get("count")
	if countValue.IsUndefined() {
		return fmt.Errorf("partial average is missing a numeric count")
	}
	count, err := partialCount(countValue)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	sum := partial.Get("sum")
	if sum.IsUndefined() || sum.IsNull() {
		// The partition saw non-numeric operands.
		a.poisoned = true
		return nil
	}
	f, ok := sum.Number()
	if !ok {
		return fmt.Errorf("partial average sum must be a number, got %s", sum.Kind())
	}
	a.sum = a.sum.Add(decimal.NewFromFloat(f))
	a.count += count
	return nil
}

func (a *averageAccumulator) result() document.Value {
	if a.poisoned || a.count == 0 {
		return document.Undefined()
	}
	// Round relative to the magnitude of the sum, not to a fixed number of
	// decimal places, so tiny means keep their significant digits.
	places := averagePrecision - int32(a.sum.NumDigits()) - a.sum.Exponent()
	mean := a.sum.DivRound(decimal.NewFromInt(a.count), places)
	return document.Number(mean.InexactFloat64())
}

// averagePrecision is the number of significant digits kept by the division
// of an average.
const averagePrecision = 40

// lastValue is used for plain columns: every row of a group carries the same
// value for a true group-by column, so the last write wins.
type lastValue struct {
	value document.Value
}

func (a *lastValue) add(v document.Value) { a.value = v }

func (a *lastValue) merge(v document.Value) error {
	a.value = v
	return nil
}

func (a *lastValue) result() document.Value { return a.value }
