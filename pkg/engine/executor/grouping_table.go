package executor

import (
	"fmt"
	"sort"

	"github.com/dolthub/swiss"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/aggregate"
)

// Names of the fields of a GROUP BY row as produced by the partitions.
const (
	groupByItemsField = "groupByItems"
	payloadField      = "payload"
	itemField         = "item"
)

// groupedRow is a GROUP BY row split into its group key and payload.
type groupedRow struct {
	key     document.Hash
	payload document.Value
}

// splitGroupedRow extracts the group key and payload of a row shaped as
//
//	{"groupByItems": [{"item": v1}, ...], "payload": {...}}
//
// An item without a value stands for an undefined grouping expression.
func splitGroupedRow(row document.Value) (groupedRow, error) {
	if _, ok := row.Object(); !ok {
		return groupedRow{}, fmt.Errorf("%w: expected an object, got %s", ErrMalformedProjection, row.Kind())
	}
	items, ok := row.Get(groupByItemsField).Array()
	if !ok {
		return groupedRow{}, fmt.Errorf("%w: missing %q array", ErrMalformedProjection, groupByItemsField)
	}
	payload := row.Get(payloadField)
	if payload.IsUndefined() {
		return groupedRow{}, fmt.Errorf("%w: missing %q", ErrMalformedProjection, payloadField)
	}

	keys := make([]document.Value, len(items))
	for i, item := range items {
		if _, ok := item.Object(); !ok {
			return groupedRow{}, fmt.Errorf("%w: group by item %d is %s, not an object", ErrMalformedProjection, i, item.Kind())
		}
		keys[i] = item.Get(itemField)
	}
	return groupedRow{key: document.HashValues(keys), payload: payload}, nil
}

// groupingTable maps group keys to the aggregator of their group.
type groupingTable struct {
	spec      *aggregate.Spec
	maxGroups int
	groups    *swiss.Map[document.Hash, *aggregate.SingleGroupAggregator]

	// sorted holds the keys in emission order once the table is sealed.
	sorted []document.Hash
}

// newGroupingTable creates an empty table. A maxGroups of zero means no limit.
func newGroupingTable(spec *aggregate.Spec, maxGroups int) *groupingTable {
	return &groupingTable{
		spec:      spec,
		maxGroups: maxGroups,
		groups:    swiss.NewMap[document.Hash, *aggregate.SingleGroupAggregator](64),
	}
}

// add folds rows into their groups. An error leaves the table partially
// updated; callers must discard it.
func (t *groupingTable) add(rows []groupedRow) error {
	for _, r := range rows {
		g, ok := t.groups.Get(r.key)
		if !ok {
			if t.maxGroups > 0 && t.groups.Count() >= t.maxGroups {
				return fmt.Errorf("%w: query produces more than %d groups", ErrTooManyGroups, t.maxGroups)
			}
			g = aggregate.NewSingleGroupAggregator(t.spec)
			t.groups.Put(r.key, g)
		}
		if err := g.AddValues(r.payload); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedProjection, err)
		}
	}
	return nil
}

func (t *groupingTable) count() int { return t.groups.Count() }

// seal fixes the emission order. Groups are emitted in key order so that
// every drain of the same input produces the same pages.
func (t *groupingTable) seal() {
	t.sorted = make([]document.Hash, 0, t.groups.Count())
	t.groups.Iter(func(k document.Hash, _ *aggregate.SingleGroupAggregator) bool {
		t.sorted = append(t.sorted, k)
		return false
	})
	sort.Slice(t.sorted, func(i, j int) bool { return t.sorted[i].Compare(t.sorted[j]) < 0 })
}

// results finalizes up to n groups starting at offset in emission order. It
// returns the produced rows and the number of groups consumed; groups whose
// result is undefined produce no row.
func (t *groupingTable) results(offset, n int) ([]document.Value, int, error) {
	end := min(offset+n, len(t.sorted))
	if offset >= end {
		return []document.Value{}, 0, nil
	}

	out := make([]document.Value, 0, end-offset)
	for _, key := range t.sorted[offset:end] {
		g, _ := t.groups.Get(key)
		v, err := g.GetResult()
		if err != nil {
			return nil, 0, err
		}
		// Finalized groups are not needed anymore.
		t.groups.Delete(key)
		if v.IsUndefined() {
			continue
		}
		out = append(out, v)
	}
	return out, end - offset, nil
}
