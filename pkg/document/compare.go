package document

import (
	"cmp"
	"slices"
	"strings"
)

// Compare orders two values. Values of different kinds are ordered by kind
// (undefined < null < bool < number < string < array < object). Strings use
// ordinal byte comparison so the result never depends on locale. Objects are
// compared by their properties sorted by name, making property order
// irrelevant.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}

	switch a.kind {
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindNumber:
		return cmp.Compare(a.num, b.num)
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindArray:
		return slices.CompareFunc(a.arr, b.arr, Compare)
	case KindObject:
		return slices.CompareFunc(sortedFields(a.obj), sortedFields(b.obj), func(x, y Field) int {
			if c := strings.Compare(x.Name, y.Name); c != 0 {
				return c
			}
			return Compare(x.Value, y.Value)
		})
	default:
		return 0
	}
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func sortedFields(o *Object) []Field {
	fields := slices.Clone(o.Fields())
	slices.SortFunc(fields, func(x, y Field) int {
		return strings.Compare(x.Name, y.Name)
	})
	return fields
}
