// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package table

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// Cell Values
// =============================================================================

// Kind identifies the type of a cell value.
type Kind int

const (
	// KindNull is an absent value (missing est_delivery, unmatched
	// left-join cell).
	KindNull Kind = iota

	// KindString is free text (ids, names, statuses, regions).
	KindString

	// KindNumber is a float64 (prices, amounts, stock levels).
	KindNumber

	// KindDate is a calendar date. The time-of-day part is always
	// truncated to midnight UTC.
	KindDate
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is a single typed cell. The zero value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	date time.Time
}

// Null returns the absent value.
func Null() Value { return Value{} }

// String wraps free text.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Date wraps a calendar date, truncating any time-of-day part.
func Date(t time.Time) Value {
	return Value{kind: KindDate, date: truncateToDay(t)}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload. Zero value for non-string kinds.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload. Zero value for non-number kinds.
func (v Value) Num() float64 { return v.num }

// Time returns the date payload. Zero value for non-date kinds.
func (v Value) Time() time.Time { return v.date }

// Raw returns a plain-text rendition used in diagnostics and group
// keys: dates as YYYY-MM-DD, numbers via strconv, null as "N/A".
// Report formatting (currency, separators) lives in pkg/report.
func (v Value) Raw() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.date.Format("2006-01-02")
	default:
		return "N/A"
	}
}

// Equal reports whether two values have the same kind and payload.
// Nulls are equal to each other.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindDate:
		return v.date.Equal(other.date)
	default:
		return true
	}
}

// Compare orders two values of the same kind: -1, 0, or 1.
// Comparing a null or mismatched kinds returns an error; predicate
// call sites treat that as "no match" rather than failing the scan.
func (v Value) Compare(other Value) (int, error) {
	if v.IsNull() || other.IsNull() {
		return 0, fmt.Errorf("cannot compare null values")
	}
	if v.kind != other.kind {
		return 0, fmt.Errorf("cannot compare %s with %s", v.kind, other.kind)
	}
	switch v.kind {
	case KindString:
		switch {
		case v.str < other.str:
			return -1, nil
		case v.str > other.str:
			return 1, nil
		}
		return 0, nil
	case KindNumber:
		switch {
		case v.num < other.num:
			return -1, nil
		case v.num > other.num:
			return 1, nil
		}
		return 0, nil
	case KindDate:
		switch {
		case v.date.Before(other.date):
			return -1, nil
		case v.date.After(other.date):
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot compare %s values", v.kind)
	}
}
