// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package table

import (
	"fmt"
	"strings"
)

// JoinHow selects join semantics.
type JoinHow string

const (
	// JoinInner keeps only left rows with at least one key match.
	JoinInner JoinHow = "inner"

	// JoinLeft keeps every left row; unmatched right cells are null.
	JoinLeft JoinHow = "left"
)

// ParseJoinHow validates a join mode name. Empty defaults to inner.
func ParseJoinHow(s string) (JoinHow, error) {
	switch JoinHow(s) {
	case "":
		return JoinInner, nil
	case JoinInner, JoinLeft:
		return JoinHow(s), nil
	}
	return "", fmt.Errorf("unknown join mode %q (want inner or left)", s)
}

// Join combines r with right on the named key column, which must exist
// in both relations. The result carries the key once, then the
// remaining left columns, then the remaining right columns. A left row
// with several key matches produces one output row per match.
//
// Non-key columns that exist on both sides MUST be disambiguated by
// the caller via suffixes (applied to both sides, pandas-style); an
// empty suffix pair with colliding columns is an error naming the
// collisions. This is deliberate: customers and products both have a
// "name" column and silently dropping one of them is the failure mode
// this package exists to prevent.
func (r *Relation) Join(right *Relation, on string, how JoinHow, leftSuffix, rightSuffix string) (*Relation, error) {
	leftKey, ok := r.ColumnIndex(on)
	if !ok {
		return nil, fmt.Errorf("join key %q missing from left relation %q", on, r.Name)
	}
	rightKey, ok := right.ColumnIndex(on)
	if !ok {
		return nil, fmt.Errorf("join key %q missing from right relation %q", on, right.Name)
	}

	// Detect non-key collisions before building anything.
	rightCols := make(map[string]bool, len(right.Columns))
	for _, c := range right.Columns {
		if c != on {
			rightCols[c] = true
		}
	}
	var collisions []string
	for _, c := range r.Columns {
		if c != on && rightCols[c] {
			collisions = append(collisions, c)
		}
	}
	if len(collisions) > 0 && leftSuffix == "" && rightSuffix == "" {
		return nil, fmt.Errorf(
			"ambiguous columns joining %q with %q: %s appear in both relations; supply suffixes to disambiguate",
			r.Name, right.Name, strings.Join(collisions, ", "))
	}
	collides := make(map[string]bool, len(collisions))
	for _, c := range collisions {
		collides[c] = true
	}

	// Output column list: key, suffixed left columns, suffixed right columns.
	columns := []string{on}
	for _, c := range r.Columns {
		if c == on {
			continue
		}
		if collides[c] {
			columns = append(columns, c+leftSuffix)
		} else {
			columns = append(columns, c)
		}
	}
	for _, c := range right.Columns {
		if c == on {
			continue
		}
		if collides[c] {
			columns = append(columns, c+rightSuffix)
		} else {
			columns = append(columns, c)
		}
	}

	name := r.Name + "_" + right.Name
	out := New(name, columns...)

	// Index the right side by raw key. Null keys never match.
	index := make(map[string][]int)
	for i, row := range right.Rows {
		key := row[rightKey]
		if key.IsNull() {
			continue
		}
		index[key.Raw()] = append(index[key.Raw()], i)
	}

	nullRight := len(right.Columns) - 1
	for _, leftRow := range r.Rows {
		key := leftRow[leftKey]
		var matches []int
		if !key.IsNull() {
			matches = index[key.Raw()]
		}
		if len(matches) == 0 {
			if how == JoinLeft {
				out.Rows = append(out.Rows, joinCells(leftRow, leftKey, nil, rightKey, nullRight))
			}
			continue
		}
		for _, m := range matches {
			out.Rows = append(out.Rows, joinCells(leftRow, leftKey, right.Rows[m], rightKey, nullRight))
		}
	}
	return out, nil
}

// joinCells assembles one output row: key, left non-key cells, right
// non-key cells (nulls when rightRow is nil).
func joinCells(leftRow []Value, leftKey int, rightRow []Value, rightKey, nullRight int) []Value {
	cells := make([]Value, 0, len(leftRow)+nullRight)
	cells = append(cells, leftRow[leftKey])
	for i, v := range leftRow {
		if i != leftKey {
			cells = append(cells, v)
		}
	}
	if rightRow == nil {
		for i := 0; i < nullRight; i++ {
			cells = append(cells, Null())
		}
		return cells
	}
	for i, v := range rightRow {
		if i != rightKey {
			cells = append(cells, v)
		}
	}
	return cells
}
