// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/pkg/table"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func revenueRelation(t *testing.T, n int) *table.Relation {
	t.Helper()
	rel := table.New("revenue", "revenue_id", "amount", "date")
	for i := 0; i < n; i++ {
		require.NoError(t, rel.AddRow(
			table.String(fmt.Sprintf("REV_%03d", i+1)),
			table.Number(float64(i+1)*100),
			table.Date(day("2025-07-01")),
		))
	}
	return rel
}

func TestTableHeaderAndBlocks(t *testing.T) {
	rel := revenueRelation(t, 3)

	out := Table(rel, 10)
	assert.Contains(t, out, "Total Records: 3")
	assert.NotContains(t, out, "Showing first")
	assert.NotContains(t, out, "more records")
	assert.Equal(t, 3, strings.Count(out, "Record "))

	// Currency column renders with symbol and decimals.
	assert.Contains(t, out, "• amount: $100.00")
	// Dates render ISO style.
	assert.Contains(t, out, "• date: 2025-07-01")
}

func TestTableTruncation(t *testing.T) {
	rel := revenueRelation(t, 14)

	out := Table(rel, 10)
	assert.Contains(t, out, "Total Records: 14")
	assert.Contains(t, out, "Showing first 10 rows")
	assert.Contains(t, out, "... and 4 more records")
	assert.Equal(t, 10, strings.Count(out, "Record "))
}

// TestTableDisplayedCountMatchesCap re-parses the rendered record count
// and checks it equals min(total, cap) for a spread of shapes.
func TestTableDisplayedCountMatchesCap(t *testing.T) {
	recordLine := regexp.MustCompile(`(?m)^Record (\d+):$`)
	for _, tc := range []struct{ total, cap int }{
		{0, 10}, {1, 10}, {10, 10}, {11, 10}, {25, 5}, {3, 0},
	} {
		rel := revenueRelation(t, tc.total)
		out := Table(rel, tc.cap)

		cap := tc.cap
		if cap <= 0 {
			cap = DefaultCap
		}
		want := tc.total
		if want > cap {
			want = cap
		}
		matches := recordLine.FindAllStringSubmatch(out, -1)
		assert.Len(t, matches, want, "total=%d cap=%d", tc.total, tc.cap)

		if tc.total > cap {
			suffix := regexp.MustCompile(`\.\.\. and (\d+) more records`).FindStringSubmatch(out)
			require.NotNil(t, suffix, "total=%d cap=%d", tc.total, tc.cap)
			extra, err := strconv.Atoi(suffix[1])
			require.NoError(t, err)
			assert.Equal(t, tc.total-cap, extra)
		}
	}
}

func TestTableNullAndPlainNumber(t *testing.T) {
	rel := table.New("orders", "order_id", "stock_level", "est_delivery")
	require.NoError(t, rel.AddRow(table.String("ORD_001"), table.Number(12), table.Null()))

	out := Table(rel, 10)
	assert.Contains(t, out, "• stock_level: 12.00")
	assert.Contains(t, out, "• est_delivery: N/A")
}

func TestTableDeterministic(t *testing.T) {
	rel := revenueRelation(t, 5)
	assert.Equal(t, Table(rel, 10), Table(rel, 10))
}

func TestSeriesMoney(t *testing.T) {
	s := &table.Series{Name: "amount", Entries: []table.SeriesEntry{
		{Key: "West", Value: 12450},
		{Key: "East", Value: 9310.25},
	}}

	out := Series(s, "amount")
	assert.Contains(t, out, "Analysis Results (2 items)")
	assert.Contains(t, out, "▸ West: $12,450.00")
	assert.Contains(t, out, "▸ East: $9,310.25")
}

func TestSeriesPlainCounts(t *testing.T) {
	s := &table.Series{Name: "count", Entries: []table.SeriesEntry{
		{Key: "Pending", Value: 4},
		{Key: "Shipped", Value: 1200},
	}}

	out := Series(s, "count")
	assert.Contains(t, out, "▸ Pending: 4")
	assert.Contains(t, out, "▸ Shipped: 1,200")
	assert.NotContains(t, out, "$")
}

func TestSeriesFallsBackToOwnName(t *testing.T) {
	s := &table.Series{Name: "revenue", Entries: []table.SeriesEntry{{Key: "West", Value: 10}}}
	out := Series(s, "")
	assert.Contains(t, out, "$10.00")
}

func TestScalarCurrency(t *testing.T) {
	out := Scalar(600.50, "Total Revenue", true)
	assert.Contains(t, out, "Total Revenue")
	assert.Contains(t, out, "▸ $600.50")
}

func TestScalarWholeMoneyStaysCurrency(t *testing.T) {
	out := Scalar(600, "Total Revenue", true)
	assert.Contains(t, out, "▸ $600.00")
}

func TestScalarCount(t *testing.T) {
	out := Scalar(1234, "Order Count", false)
	assert.Contains(t, out, "▸ 1,234")
	assert.NotContains(t, out, "$")
}

func TestScalarDefaultDescription(t *testing.T) {
	out := Scalar(1.5, "", false)
	assert.True(t, strings.HasPrefix(out, "Result\n"))
}

func TestText(t *testing.T) {
	out := Text("Pending", "Most Common Status")
	assert.Contains(t, out, "Most Common Status")
	assert.Contains(t, out, "▸ Pending")
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{600.50, "$600.50"},
		{1299.99, "$1,299.99"},
		{1234567.891, "$1,234,567.89"},
		{0, "$0.00"},
		{-20, "-$20.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Currency(tt.in), "input %v", tt.in)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{4, "4"},
		{1200, "1,200"},
		{1234.5, "1,234.50"},
		{-1000, "-1,000"},
		{999, "999"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Number(tt.in), "input %v", tt.in)
	}
}
