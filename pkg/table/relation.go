// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package table implements the in-memory relational model shared by the
// dataset loader, the query executor, and the report formatter.
//
// A Relation is a named sequence of rows over a fixed column list; cells
// are typed Values (string, number, date, null). Relations are treated
// as immutable: every operation returns a new Relation and leaves its
// inputs untouched, so a loaded dataset can be borrowed by any number
// of call sites within a request.
//
// Joins are the one deliberately strict spot. Customers and products
// both carry a "name" column, and a join that silently overwrote one of
// them would corrupt every downstream analysis. Join therefore refuses
// to proceed when non-key columns collide unless the caller supplies
// disambiguating suffixes.
package table

import (
	"fmt"
	"sort"
	"strings"
)

// Relation is a named table of typed rows.
type Relation struct {
	Name    string
	Columns []string
	Rows    [][]Value
}

// New creates an empty relation with the given column list.
func New(name string, columns ...string) *Relation {
	return &Relation{
		Name:    name,
		Columns: append([]string(nil), columns...),
	}
}

// AddRow appends a row. The cell count must match the column count.
func (r *Relation) AddRow(cells ...Value) error {
	if len(cells) != len(r.Columns) {
		return fmt.Errorf("relation %q: row has %d cells, want %d", r.Name, len(cells), len(r.Columns))
	}
	r.Rows = append(r.Rows, append([]Value(nil), cells...))
	return nil
}

// NumRows returns the row count.
func (r *Relation) NumRows() int { return len(r.Rows) }

// ColumnIndex resolves a column name to its position.
func (r *Relation) ColumnIndex(name string) (int, bool) {
	for i, c := range r.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Cell returns the value at (row, column name).
func (r *Relation) Cell(row int, column string) (Value, error) {
	idx, ok := r.ColumnIndex(column)
	if !ok {
		return Value{}, r.unknownColumn(column)
	}
	if row < 0 || row >= len(r.Rows) {
		return Value{}, fmt.Errorf("relation %q: row %d out of range", r.Name, row)
	}
	return r.Rows[row][idx], nil
}

func (r *Relation) unknownColumn(column string) error {
	return fmt.Errorf("relation %q has no column %q (columns: %s)",
		r.Name, column, strings.Join(r.Columns, ", "))
}

// empty returns a rowless relation with the same shape.
func (r *Relation) empty(name string) *Relation {
	return New(name, r.Columns...)
}

// =============================================================================
// Filter / Select / Sort / Head
// =============================================================================

// Cmp names a filter comparison operator.
type Cmp string

const (
	CmpEq       Cmp = "eq"
	CmpNe       Cmp = "ne"
	CmpGt       Cmp = "gt"
	CmpGe       Cmp = "ge"
	CmpLt       Cmp = "lt"
	CmpLe       Cmp = "le"
	CmpContains Cmp = "contains"
)

// ParseCmp validates a comparison operator name.
func ParseCmp(s string) (Cmp, error) {
	switch Cmp(s) {
	case CmpEq, CmpNe, CmpGt, CmpGe, CmpLt, CmpLe, CmpContains:
		return Cmp(s), nil
	}
	return "", fmt.Errorf("unknown comparison %q (want eq, ne, gt, ge, lt, le, or contains)", s)
}

// Filter returns the rows whose column satisfies (cmp operand).
// Rows with a null cell never match. Ordered comparisons against a
// mismatched kind do not match either; they do not abort the scan.
func (r *Relation) Filter(column string, cmp Cmp, operand Value) (*Relation, error) {
	idx, ok := r.ColumnIndex(column)
	if !ok {
		return nil, r.unknownColumn(column)
	}

	out := r.empty(r.Name)
	for _, row := range r.Rows {
		if matchesCmp(row[idx], cmp, operand) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func matchesCmp(cell Value, cmp Cmp, operand Value) bool {
	switch cmp {
	case CmpEq:
		return !cell.IsNull() && cell.Equal(operand)
	case CmpNe:
		return !cell.IsNull() && !cell.Equal(operand)
	case CmpContains:
		return cell.Kind() == KindString && operand.Kind() == KindString &&
			strings.Contains(strings.ToLower(cell.Str()), strings.ToLower(operand.Str()))
	}
	c, err := cell.Compare(operand)
	if err != nil {
		return false
	}
	switch cmp {
	case CmpGt:
		return c > 0
	case CmpGe:
		return c >= 0
	case CmpLt:
		return c < 0
	case CmpLe:
		return c <= 0
	}
	return false
}

// Select projects the relation onto the named columns, in order.
func (r *Relation) Select(columns []string) (*Relation, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("relation %q: select needs at least one column", r.Name)
	}
	indices := make([]int, len(columns))
	for i, c := range columns {
		idx, ok := r.ColumnIndex(c)
		if !ok {
			return nil, r.unknownColumn(c)
		}
		indices[i] = idx
	}

	out := New(r.Name, columns...)
	for _, row := range r.Rows {
		cells := make([]Value, len(indices))
		for i, idx := range indices {
			cells[i] = row[idx]
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// Sort returns the rows ordered by the given column. Nulls sort last
// regardless of direction. The sort is stable so repeated runs over
// the same data produce identical output.
func (r *Relation) Sort(column string, desc bool) (*Relation, error) {
	idx, ok := r.ColumnIndex(column)
	if !ok {
		return nil, r.unknownColumn(column)
	}

	out := r.empty(r.Name)
	out.Rows = append(out.Rows, r.Rows...)
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i][idx], out.Rows[j][idx]
		if a.IsNull() {
			return false
		}
		if b.IsNull() {
			return true
		}
		c, err := a.Compare(b)
		if err != nil {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

// Head returns the first n rows (all rows when n exceeds the count,
// none when n is negative).
func (r *Relation) Head(n int) *Relation {
	if n < 0 {
		n = 0
	}
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	out := r.empty(r.Name)
	out.Rows = append(out.Rows, r.Rows[:n]...)
	return out
}
