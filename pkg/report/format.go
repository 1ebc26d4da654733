// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report renders analysis results as human-readable text.
//
// Three entry points cover the three result shapes: Table for
// relations, Series for keyed aggregates, Scalar for single numbers.
// All formatting is pure: identical input yields identical text, and
// nothing here performs I/O. The chat agent passes these strings back
// to the model verbatim, so the layout is part of the tool contract.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/driftline/driftline/pkg/table"
)

// DefaultCap is the record display limit when the caller passes none.
const DefaultCap = 10

const separator = "──────────────────────────────────────────────────────────────────────"

// =============================================================================
// Tabular
// =============================================================================

// Table renders a relation as one block per record. Output starts with
// the total record count, a truncation notice when the cap is
// exceeded, then every field of each displayed record:
//
//	Total Records: 14
//	Showing first 10 rows
//	──────────────────────...
//
//	Record 1:
//	  • order_id: ORD_001
//	  • amount: $1,299.99
//	...
//	... and 4 more records
//
// Dates render as YYYY-MM-DD or N/A; columns whose name contains
// "amount", "price", or "revenue" render as currency; other numbers
// render fixed to two decimals; nulls render as N/A.
func Table(rel *table.Relation, displayCap int) string {
	if displayCap <= 0 {
		displayCap = DefaultCap
	}
	total := rel.NumRows()
	shown := total
	if shown > displayCap {
		shown = displayCap
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total Records: %d\n", total)
	if total > displayCap {
		fmt.Fprintf(&b, "Showing first %d rows\n", displayCap)
	}
	b.WriteString(separator + "\n\n")

	for i := 0; i < shown; i++ {
		fmt.Fprintf(&b, "Record %d:\n", i+1)
		for j, col := range rel.Columns {
			fmt.Fprintf(&b, "  • %s: %s\n", col, cell(rel.Rows[i][j], col))
		}
		b.WriteString("\n")
	}

	if total > displayCap {
		fmt.Fprintf(&b, "... and %d more records\n", total-displayCap)
	}
	return b.String()
}

// cell renders one field value according to its kind and column name.
func cell(v table.Value, column string) string {
	switch v.Kind() {
	case table.KindNull:
		return "N/A"
	case table.KindDate:
		return v.Time().Format("2006-01-02")
	case table.KindNumber:
		if moneyColumn(column) {
			return Currency(v.Num())
		}
		return fmt.Sprintf("%.2f", v.Num())
	default:
		return v.Str()
	}
}

// IsMoneyName reports whether a column or measure name implies a
// currency value. Exposed so result producers can decide scalar
// rendering once, at the boundary where the value is computed.
func IsMoneyName(name string) bool { return moneyColumn(name) }

// moneyColumn reports whether a column name implies a currency value.
func moneyColumn(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "amount") ||
		strings.Contains(lower, "price") ||
		strings.Contains(lower, "revenue")
}

// =============================================================================
// Keyed Series
// =============================================================================

// Series renders an ordered key → value mapping:
//
//	Analysis Results (3 items)
//	──────────────────────...
//
//	▸ West: $12,450.00
//	▸ East: $9,310.25
//
// Values render as currency when the semantic name suggests money
// ("amount", "revenue", "price"), else as thousands-separated numbers.
func Series(s *table.Series, name string) string {
	if name == "" {
		name = s.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis Results (%d items)\n", s.Len())
	b.WriteString(separator + "\n\n")

	money := moneyColumn(name)
	for _, entry := range s.Entries {
		if money {
			fmt.Fprintf(&b, "▸ %s: %s\n", entry.Key, Currency(entry.Value))
		} else {
			fmt.Fprintf(&b, "▸ %s: %s\n", entry.Key, Number(entry.Value))
		}
	}
	return b.String()
}

// =============================================================================
// Scalar
// =============================================================================

// Scalar renders a single numeric result with its description:
//
//	Total Revenue
//	──────────────────────...
//
//	▸ $600.50
//
// money forces currency rendering; callers set it from the measure the
// value was computed over. Without it, whole numbers render with
// separators and no currency symbol (counts are the common case) and
// fractional numbers render as currency.
func Scalar(v float64, description string, money bool) string {
	if description == "" {
		description = "Result"
	}

	var b strings.Builder
	b.WriteString(description + "\n")
	b.WriteString(separator + "\n\n")
	if money || !isWhole(v) {
		fmt.Fprintf(&b, "▸ %s\n", Currency(v))
	} else {
		fmt.Fprintf(&b, "▸ %s\n", Number(v))
	}
	return b.String()
}

// Text renders a non-numeric scalar result.
func Text(value, description string) string {
	if description == "" {
		description = "Result"
	}

	var b strings.Builder
	b.WriteString(description + "\n")
	b.WriteString(separator + "\n\n")
	fmt.Fprintf(&b, "▸ %s\n", value)
	return b.String()
}

// =============================================================================
// Number Rendering
// =============================================================================

// Currency renders a value as dollars with thousands separators and
// two decimals: 1234.5 → "$1,234.50", -20 → "-$20.00".
func Currency(v float64) string {
	sign := ""
	if math.Signbit(v) {
		sign = "-"
		v = -v
	}
	return sign + "$" + groupThousands(fmt.Sprintf("%.2f", v))
}

// Number renders a plain value with thousands separators; whole
// numbers drop the decimals: 1234 → "1,234", 1234.5 → "1,234.50".
func Number(v float64) string {
	sign := ""
	if math.Signbit(v) {
		sign = "-"
		v = -v
	}
	if isWhole(v) {
		return sign + groupThousands(fmt.Sprintf("%.0f", v))
	}
	return sign + groupThousands(fmt.Sprintf("%.2f", v))
}

func isWhole(v float64) bool {
	return v == math.Trunc(v) && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// groupThousands inserts commas into the integer part of a non-negative
// formatted number.
func groupThousands(s string) string {
	intPart := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return intPart + frac
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + frac
}
