// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ordersFixture(t *testing.T) *Relation {
	t.Helper()
	r := New("orders", "order_id", "customer_id", "product_id", "status", "order_date", "est_delivery")
	rows := [][]Value{
		{String("ORD_001"), String("CUST_001"), String("PROD_001"), String("Delivered"), Date(day("2025-07-01")), Date(day("2025-07-10"))},
		{String("ORD_002"), String("CUST_001"), String("PROD_002"), String("Shipped"), Date(day("2025-07-05")), Date(day("2025-07-15"))},
		{String("ORD_003"), String("CUST_002"), String("PROD_001"), String("Pending"), Date(day("2025-08-01")), Null()},
	}
	for _, row := range rows {
		require.NoError(t, r.AddRow(row...))
	}
	return r
}

func productsFixture(t *testing.T) *Relation {
	t.Helper()
	r := New("products", "product_id", "name", "category", "price", "stock_level")
	rows := [][]Value{
		{String("PROD_001"), String("Laptop"), String("Electronics"), Number(1299.99), Number(12)},
		{String("PROD_002"), String("Desk Chair"), String("Furniture"), Number(189.50), Number(40)},
	}
	for _, row := range rows {
		require.NoError(t, r.AddRow(row...))
	}
	return r
}

func TestAddRowArityMismatch(t *testing.T) {
	r := New("t", "a", "b")
	err := r.AddRow(String("only one"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 cells")
}

func TestFilterEq(t *testing.T) {
	orders := ordersFixture(t)

	got, err := orders.Filter("customer_id", CmpEq, String("CUST_001"))
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumRows())

	// Source relation is untouched.
	assert.Equal(t, 3, orders.NumRows())
}

func TestFilterDateComparison(t *testing.T) {
	orders := ordersFixture(t)

	got, err := orders.Filter("order_date", CmpGt, Date(day("2025-07-03")))
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumRows())
}

func TestFilterNullsNeverMatch(t *testing.T) {
	orders := ordersFixture(t)

	// ORD_003 has a null est_delivery; it must not match any comparison.
	lt, err := orders.Filter("est_delivery", CmpLt, Date(day("2099-01-01")))
	require.NoError(t, err)
	assert.Equal(t, 2, lt.NumRows())

	ne, err := orders.Filter("est_delivery", CmpNe, Date(day("2025-07-10")))
	require.NoError(t, err)
	assert.Equal(t, 1, ne.NumRows())
}

func TestFilterUnknownColumn(t *testing.T) {
	orders := ordersFixture(t)
	_, err := orders.Filter("nope", CmpEq, String("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "nope"`)
}

func TestSelectProjects(t *testing.T) {
	orders := ordersFixture(t)

	got, err := orders.Select([]string{"order_id", "status"})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "status"}, got.Columns)
	assert.Equal(t, 3, got.NumRows())

	v, err := got.Cell(1, "status")
	require.NoError(t, err)
	assert.Equal(t, "Shipped", v.Str())
}

func TestSortNullsLast(t *testing.T) {
	orders := ordersFixture(t)

	got, err := orders.Sort("est_delivery", false)
	require.NoError(t, err)

	last, err := got.Cell(2, "est_delivery")
	require.NoError(t, err)
	assert.True(t, last.IsNull())

	desc, err := orders.Sort("est_delivery", true)
	require.NoError(t, err)
	last, err = desc.Cell(2, "est_delivery")
	require.NoError(t, err)
	assert.True(t, last.IsNull())
}

func TestHead(t *testing.T) {
	orders := ordersFixture(t)
	assert.Equal(t, 2, orders.Head(2).NumRows())
	assert.Equal(t, 3, orders.Head(10).NumRows())
	assert.Equal(t, 0, orders.Head(-1).NumRows())
}

func TestJoinInner(t *testing.T) {
	orders := ordersFixture(t)
	products := productsFixture(t)

	joined, err := orders.Join(products, "product_id", JoinInner, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, joined.NumRows())
	assert.Equal(t, "product_id", joined.Columns[0], "key column leads")

	name, err := joined.Cell(0, "name")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", name.Str())
}

func TestJoinLeftNullsUnmatched(t *testing.T) {
	orders := ordersFixture(t)
	// Products table missing PROD_002.
	products := New("products", "product_id", "name", "category", "price", "stock_level")
	require.NoError(t, products.AddRow(String("PROD_001"), String("Laptop"), String("Electronics"), Number(1299.99), Number(12)))

	joined, err := orders.Join(products, "product_id", JoinLeft, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, joined.NumRows())

	// ORD_002 referenced PROD_002; its product cells are null.
	name, err := joined.Cell(1, "name")
	require.NoError(t, err)
	assert.True(t, name.IsNull())

	// Inner join drops it instead.
	inner, err := orders.Join(products, "product_id", JoinInner, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.NumRows())
}

func TestJoinDuplicateColumnRequiresSuffixes(t *testing.T) {
	customers := New("customers", "customer_id", "name", "email", "region")
	require.NoError(t, customers.AddRow(String("CUST_001"), String("Alice Chen"), String("alice@example.com"), String("West")))

	orders := ordersFixture(t)
	products := productsFixture(t)

	withCustomers, err := orders.Join(customers, "customer_id", JoinInner, "", "")
	require.NoError(t, err)

	// Both sides now carry "name": must fail without suffixes.
	_, err = withCustomers.Join(products, "product_id", JoinInner, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous columns")
	assert.Contains(t, err.Error(), "name")

	// With suffixes both name columns survive, distinctly.
	full, err := withCustomers.Join(products, "product_id", JoinInner, "_customer", "_product")
	require.NoError(t, err)
	_, hasCustomer := full.ColumnIndex("name_customer")
	_, hasProduct := full.ColumnIndex("name_product")
	assert.True(t, hasCustomer)
	assert.True(t, hasProduct)
	_, hasBare := full.ColumnIndex("name")
	assert.False(t, hasBare)
}

func TestJoinOneToMany(t *testing.T) {
	revenue := New("revenue", "revenue_id", "order_id", "amount")
	require.NoError(t, revenue.AddRow(String("REV_001"), String("ORD_001"), Number(100)))
	require.NoError(t, revenue.AddRow(String("REV_002"), String("ORD_001"), Number(50)))

	orders := ordersFixture(t)
	joined, err := orders.Join(revenue, "order_id", JoinInner, "", "")
	require.NoError(t, err)
	// ORD_001 matches two revenue rows.
	assert.Equal(t, 2, joined.NumRows())
}

func TestJoinMissingKey(t *testing.T) {
	orders := ordersFixture(t)
	products := productsFixture(t)
	_, err := orders.Join(products, "customer_id", JoinInner, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_id")
}

func TestGroupBySum(t *testing.T) {
	r := New("revenue", "region", "amount")
	rows := [][]Value{
		{String("West"), Number(100)},
		{String("East"), Number(200)},
		{String("West"), Number(50.5)},
	}
	for _, row := range rows {
		require.NoError(t, r.AddRow(row...))
	}

	s, err := r.GroupBy([]string{"region"}, AggSum, "amount")
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	// First-seen order.
	assert.Equal(t, "West", s.Entries[0].Key)
	assert.InDelta(t, 150.5, s.Entries[0].Value, 1e-9)
	assert.Equal(t, "East", s.Entries[1].Key)
	assert.InDelta(t, 200, s.Entries[1].Value, 1e-9)
}

func TestGroupByCountWithoutMeasure(t *testing.T) {
	orders := ordersFixture(t)

	s, err := orders.GroupBy([]string{"status"}, AggCount, "")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	for _, e := range s.Entries {
		assert.InDelta(t, 1, e.Value, 1e-9)
	}
}

func TestGroupByMultiKey(t *testing.T) {
	r := New("sales", "region", "category", "amount")
	require.NoError(t, r.AddRow(String("West"), String("Electronics"), Number(10)))
	require.NoError(t, r.AddRow(String("West"), String("Furniture"), Number(20)))

	s, err := r.GroupBy([]string{"region", "category"}, AggSum, "amount")
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "West / Electronics", s.Entries[0].Key)
}

func TestGroupByRejectsTextMeasure(t *testing.T) {
	orders := ordersFixture(t)
	_, err := orders.GroupBy([]string{"status"}, AggSum, "order_id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numbers")
}

func TestReduce(t *testing.T) {
	r := New("revenue", "amount")
	for _, v := range []float64{100.0, 200.0, 300.50} {
		require.NoError(t, r.AddRow(Number(v)))
	}

	sum, err := r.Reduce(AggSum, "amount")
	require.NoError(t, err)
	assert.InDelta(t, 600.50, sum, 1e-9)

	avg, err := r.Reduce(AggAvg, "amount")
	require.NoError(t, err)
	assert.InDelta(t, 200.1666666, avg, 1e-6)

	count, err := r.Reduce(AggCount, "")
	require.NoError(t, err)
	assert.InDelta(t, 3, count, 1e-9)

	max, err := r.Reduce(AggMax, "amount")
	require.NoError(t, err)
	assert.InDelta(t, 300.50, max, 1e-9)
}

func TestReduceEmptyMinErrors(t *testing.T) {
	r := New("revenue", "amount")
	_, err := r.Reduce(AggMin, "amount")
	require.Error(t, err)

	sum, err := r.Reduce(AggSum, "amount")
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestSeriesSortAndHead(t *testing.T) {
	s := &Series{Name: "amount", Entries: []SeriesEntry{
		{Key: "a", Value: 10},
		{Key: "b", Value: 30},
		{Key: "c", Value: 20},
	}}

	s.SortByValue(true)
	assert.Equal(t, "b", s.Entries[0].Key)

	s.Head(2)
	assert.Equal(t, 2, s.Len())

	s.SortByKey()
	assert.Equal(t, "b", s.Entries[0].Key)
	assert.Equal(t, "c", s.Entries[1].Key)
}

func TestValueRaw(t *testing.T) {
	assert.Equal(t, "N/A", Null().Raw())
	assert.Equal(t, "Laptop", String("Laptop").Raw())
	assert.Equal(t, "2025-07-10", Date(day("2025-07-10")).Raw())
	assert.Equal(t, "1299.99", Number(1299.99).Raw())
	assert.Equal(t, "12", Number(12).Raw())
}
