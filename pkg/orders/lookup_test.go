// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orders

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/pkg/dataset"
)

// testNow is "today" for every delay assertion: both fixture
// estimates (07-10, 07-15) are in the past relative to it.
var testNow = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

func loadFixture(t *testing.T, overrides map[string]string) *dataset.Bundle {
	t.Helper()
	files := map[string]string{
		"customers.csv": "customer_id,name,email,region\n" +
			"CUST_001,Alice Chen,alice@example.com,West\n" +
			"CUST_002,Bob Osei,bob@example.com,East\n" +
			"CUST_003,Carol Diaz,carol@example.com,West\n",
		"products.csv": "product_id,name,category,price,stock_level\n" +
			"PROD_001,Laptop,Electronics,1299.99,12\n" +
			"PROD_002,Desk Chair,Furniture,189.50,40\n",
		"orders.csv": "order_id,customer_id,product_id,status,order_date,est_delivery\n" +
			"ORD_001,CUST_001,PROD_001,Delivered,2025-07-01,2025-07-10\n" +
			"ORD_002,CUST_001,PROD_002,Shipped,2025-07-05,2025-07-15\n" +
			"ORD_003,CUST_002,PROD_001,Pending,2025-08-01,\n",
		"revenue.csv": "revenue_id,order_id,amount,date,payment_method\n" +
			"REV_001,ORD_001,1299.99,2025-07-01,card\n",
	}
	for name, content := range overrides {
		files[name] = content
	}
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	bundle, err := dataset.NewLoader(dir).Load()
	require.NoError(t, err)
	return bundle
}

func TestLookupFlagsOnlyUndeliveredOverdueOrders(t *testing.T) {
	bundle := loadFixture(t, nil)

	out := Lookup(bundle, "CUST_001", testNow)

	// Both estimates are past; only the Shipped order is delayed.
	blocks := strings.Split(out, "▸ Order ID:")
	require.Len(t, blocks, 3)

	delivered := blocks[1]
	assert.Contains(t, delivered, "ORD_001")
	assert.Contains(t, delivered, "Status: Delivered")
	assert.NotContains(t, delivered, "DELAYED")

	shipped := blocks[2]
	assert.Contains(t, shipped, "ORD_002")
	assert.Contains(t, shipped, "Status: Shipped")
	assert.Contains(t, shipped, "DELAYED: 36 day(s) overdue")
}

func TestLookupRendersProductDetails(t *testing.T) {
	bundle := loadFixture(t, nil)

	out := Lookup(bundle, "CUST_001", testNow)

	assert.Contains(t, out, "Customer: Alice Chen (ID: CUST_001)")
	assert.Contains(t, out, "Email: alice@example.com")
	assert.Contains(t, out, "Region: West")
	assert.Contains(t, out, "Total Orders: 2")
	assert.Contains(t, out, "Product: Laptop (Electronics)")
	assert.Contains(t, out, "Price: $1299.99")
	assert.Contains(t, out, "Order Date: 2025-07-01")
}

func TestLookupNormalizesID(t *testing.T) {
	bundle := loadFixture(t, nil)

	out := Lookup(bundle, "  cust_001 ", testNow)
	assert.Contains(t, out, "Customer: Alice Chen (ID: CUST_001)")
}

func TestLookupNotFound(t *testing.T) {
	bundle := loadFixture(t, nil)

	out := Lookup(bundle, "cust_999", testNow)
	assert.Equal(t, "ERROR: Customer ID 'CUST_999' not found in the system.", out)
}

func TestLookupNoOrders(t *testing.T) {
	bundle := loadFixture(t, nil)

	out := Lookup(bundle, "CUST_003", testNow)
	assert.Equal(t, "Hello Carol Diaz! You currently have no orders in the system.", out)
}

func TestLookupUnknownEstDelivery(t *testing.T) {
	bundle := loadFixture(t, nil)

	out := Lookup(bundle, "CUST_002", testNow)
	assert.Contains(t, out, "Est. Delivery: N/A")
	assert.NotContains(t, out, "DELAYED")
}

func TestCheckStatusDelayed(t *testing.T) {
	bundle := loadFixture(t, nil)

	st := CheckStatus(bundle, "cust_001", testNow)
	assert.Equal(t, StateDelayed, st.State)
	assert.Equal(t, "You have 1 delayed order!", st.Message)
	assert.Equal(t, 1, st.Count)
}

func TestCheckStatusOnTrack(t *testing.T) {
	bundle := loadFixture(t, map[string]string{
		"orders.csv": "order_id,customer_id,product_id,status,order_date,est_delivery\n" +
			"ORD_001,CUST_001,PROD_001,Pending,2025-08-18,2025-08-30\n" +
			"ORD_002,CUST_001,PROD_002,Shipped,2025-08-19,2025-09-01\n",
	})

	st := CheckStatus(bundle, "CUST_001", testNow)
	assert.Equal(t, StateNormal, st.State)
	assert.Equal(t, "All 2 active orders are on track!", st.Message)
	assert.Equal(t, 2, st.Count)
}

func TestCheckStatusAllDelivered(t *testing.T) {
	bundle := loadFixture(t, map[string]string{
		"orders.csv": "order_id,customer_id,product_id,status,order_date,est_delivery\n" +
			"ORD_001,CUST_001,PROD_001,Delivered,2025-07-01,2025-07-10\n",
	})

	st := CheckStatus(bundle, "CUST_001", testNow)
	assert.Equal(t, StateNormal, st.State)
	assert.Equal(t, "You have 1 completed order", st.Message)
	assert.Equal(t, 1, st.Count)
}

func TestCheckStatusNoOrders(t *testing.T) {
	bundle := loadFixture(t, nil)

	st := CheckStatus(bundle, "CUST_003", testNow)
	assert.Equal(t, StateNormal, st.State)
	assert.Equal(t, "You have no active orders", st.Message)
	assert.Equal(t, 0, st.Count)
}

func TestCheckStatusCancelledNotDelayed(t *testing.T) {
	bundle := loadFixture(t, map[string]string{
		"orders.csv": "order_id,customer_id,product_id,status,order_date,est_delivery\n" +
			"ORD_001,CUST_001,PROD_001,Cancelled,2025-07-01,2025-07-10\n",
	})

	st := CheckStatus(bundle, "CUST_001", testNow)
	assert.Equal(t, StateNormal, st.State)
	assert.Equal(t, 0, st.Count)
}
