// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package table

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Aggregations
// =============================================================================

// Aggregate names a reduction over a numeric measure.
type Aggregate string

const (
	AggSum   Aggregate = "sum"
	AggCount Aggregate = "count"
	AggAvg   Aggregate = "avg"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

// ParseAggregate validates an aggregate name.
func ParseAggregate(s string) (Aggregate, error) {
	switch Aggregate(s) {
	case AggSum, AggCount, AggAvg, AggMin, AggMax:
		return Aggregate(s), nil
	}
	return "", fmt.Errorf("unknown aggregate %q (want sum, count, avg, min, or max)", s)
}

// NeedsMeasure reports whether the aggregate reads a measure column.
// count works on bare rows.
func (a Aggregate) NeedsMeasure() bool { return a != AggCount }

// Series is an ordered key → value mapping, the result of a grouped
// aggregation. Multi-column group keys are joined with " / ".
type Series struct {
	Name    string
	Entries []SeriesEntry
}

// SeriesEntry is one line of a Series.
type SeriesEntry struct {
	Key   string
	Value float64
}

// Len returns the number of entries.
func (s *Series) Len() int { return len(s.Entries) }

// SortByValue orders entries by value; ties keep insertion order.
func (s *Series) SortByValue(desc bool) {
	sort.SliceStable(s.Entries, func(i, j int) bool {
		if desc {
			return s.Entries[i].Value > s.Entries[j].Value
		}
		return s.Entries[i].Value < s.Entries[j].Value
	})
}

// SortByKey orders entries lexically by key.
func (s *Series) SortByKey() {
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].Key < s.Entries[j].Key
	})
}

// Head truncates the series to its first n entries.
func (s *Series) Head(n int) {
	if n >= 0 && n < len(s.Entries) {
		s.Entries = s.Entries[:n]
	}
}

// GroupBy groups rows by the given dimension columns and reduces each
// group with agg over the measure column. Entries appear in first-seen
// row order, which keeps output deterministic before any explicit sort.
// Null measure cells are skipped; null dimension cells group under "N/A".
func (r *Relation) GroupBy(by []string, agg Aggregate, measure string) (*Series, error) {
	if len(by) == 0 {
		return nil, fmt.Errorf("relation %q: group needs at least one dimension column", r.Name)
	}
	keyIdx := make([]int, len(by))
	for i, c := range by {
		idx, ok := r.ColumnIndex(c)
		if !ok {
			return nil, r.unknownColumn(c)
		}
		keyIdx[i] = idx
	}

	measureIdx := -1
	if agg.NeedsMeasure() {
		idx, ok := r.ColumnIndex(measure)
		if !ok {
			if measure == "" {
				return nil, fmt.Errorf("aggregate %q needs a measure column", agg)
			}
			return nil, r.unknownColumn(measure)
		}
		if err := requireNumeric(r, idx, measure); err != nil {
			return nil, err
		}
		measureIdx = idx
	}

	type bucket struct {
		sum   float64
		count int
		min   float64
		max   float64
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for _, row := range r.Rows {
		parts := make([]string, len(keyIdx))
		for i, idx := range keyIdx {
			parts[i] = row[idx].Raw()
		}
		key := strings.Join(parts, " / ")

		b, seen := buckets[key]
		if !seen {
			b = &bucket{}
			buckets[key] = b
			order = append(order, key)
		}

		if measureIdx < 0 {
			b.count++
			continue
		}
		cell := row[measureIdx]
		if cell.IsNull() {
			continue
		}
		v := cell.Num()
		if b.count == 0 {
			b.min, b.max = v, v
		} else {
			if v < b.min {
				b.min = v
			}
			if v > b.max {
				b.max = v
			}
		}
		b.sum += v
		b.count++
	}

	name := measure
	if name == "" {
		name = "count"
	}
	out := &Series{Name: name}
	for _, key := range order {
		b := buckets[key]
		out.Entries = append(out.Entries, SeriesEntry{Key: key, Value: reduce(agg, b.sum, b.count, b.min, b.max)})
	}
	return out, nil
}

// Reduce computes a scalar aggregate over the measure column.
func (r *Relation) Reduce(agg Aggregate, measure string) (float64, error) {
	if !agg.NeedsMeasure() {
		return float64(len(r.Rows)), nil
	}
	idx, ok := r.ColumnIndex(measure)
	if !ok {
		if measure == "" {
			return 0, fmt.Errorf("aggregate %q needs a measure column", agg)
		}
		return 0, r.unknownColumn(measure)
	}
	if err := requireNumeric(r, idx, measure); err != nil {
		return 0, err
	}

	var sum, min, max float64
	count := 0
	for _, row := range r.Rows {
		cell := row[idx]
		if cell.IsNull() {
			continue
		}
		v := cell.Num()
		if count == 0 {
			min, max = v, v
		} else {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sum += v
		count++
	}
	if count == 0 && (agg == AggMin || agg == AggMax || agg == AggAvg) {
		return 0, fmt.Errorf("aggregate %q over %q: no non-null values", agg, measure)
	}
	return reduce(agg, sum, count, min, max), nil
}

func reduce(agg Aggregate, sum float64, count int, min, max float64) float64 {
	switch agg {
	case AggSum:
		return sum
	case AggCount:
		return float64(count)
	case AggAvg:
		if count == 0 {
			return 0
		}
		return sum / float64(count)
	case AggMin:
		return min
	case AggMax:
		return max
	default:
		return 0
	}
}

// requireNumeric rejects aggregating text or date columns. The first
// non-null cell decides; an all-null column passes and reduces to zero
// values.
func requireNumeric(r *Relation, idx int, column string) error {
	for _, row := range r.Rows {
		cell := row[idx]
		if cell.IsNull() {
			continue
		}
		if cell.Kind() != KindNumber {
			return fmt.Errorf("column %q holds %s values, not numbers; pick a numeric measure", column, cell.Kind())
		}
		return nil
	}
	return nil
}
