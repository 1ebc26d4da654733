// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orders is the customer-scoped read path: one lookup that
// reports every order a single customer has, and a compact delay
// status used for login-time notification. The lookup trusts the id
// it is given — authorization happens at the tool dispatch boundary,
// not here.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/driftline/driftline/pkg/dataset"
	"github.com/driftline/driftline/pkg/table"
)

const divider = "──────────────────────────────────────────────────"

// Normalize canonicalizes a customer identifier: trimmed, uppercased.
func Normalize(customerID string) string {
	return strings.ToUpper(strings.TrimSpace(customerID))
}

// Lookup renders the full order report for one customer. Unknown ids
// and empty order lists come back as text, never as an error; a
// report is always produced. now supplies "today" for delay flags so
// callers and tests control the clock.
func Lookup(bundle *dataset.Bundle, customerID string, now time.Time) string {
	id := Normalize(customerID)

	customer, err := bundle.Customers.Filter("customer_id", table.CmpEq, table.String(id))
	if err != nil {
		return fmt.Sprintf("Error reading customer data: %v", err)
	}
	if customer.NumRows() == 0 {
		return fmt.Sprintf("ERROR: Customer ID '%s' not found in the system.", id)
	}
	name := cellText(customer, 0, "name")

	mine, err := bundle.Orders.Filter("customer_id", table.CmpEq, table.String(id))
	if err != nil {
		return fmt.Sprintf("Error reading order data: %v", err)
	}
	if mine.NumRows() == 0 {
		return fmt.Sprintf("Hello %s! You currently have no orders in the system.", name)
	}

	// Products also carry a "name" column, so the join must suffix
	// even though this particular pair happens not to collide today.
	joined, err := mine.Join(bundle.Products, "product_id", table.JoinLeft, "_order", "_product")
	if err != nil {
		return fmt.Sprintf("Error joining order data: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s (ID: %s)\n", name, id)
	fmt.Fprintf(&b, "Email: %s\n", cellText(customer, 0, "email"))
	fmt.Fprintf(&b, "Region: %s\n", cellText(customer, 0, "region"))
	fmt.Fprintf(&b, "Total Orders: %d\n\n", joined.NumRows())
	b.WriteString(divider + "\n")

	for i := 0; i < joined.NumRows(); i++ {
		writeOrderBlock(&b, joined, i, now)
	}
	return b.String()
}

// writeOrderBlock renders one order with its product details and, when
// the order is past its known delivery estimate and not yet delivered,
// a delay flag with the days overdue.
func writeOrderBlock(b *strings.Builder, joined *table.Relation, row int, now time.Time) {
	fmt.Fprintf(b, "\n▸ Order ID: %s\n", cellText(joined, row, "order_id"))
	fmt.Fprintf(b, "  Product: %s (%s)\n", cellText(joined, row, "name"), cellText(joined, row, "category"))

	price, _ := joined.Cell(row, "price")
	if price.IsNull() {
		b.WriteString("  Price: N/A\n")
	} else {
		fmt.Fprintf(b, "  Price: $%.2f\n", price.Num())
	}

	status := cellText(joined, row, "status")
	fmt.Fprintf(b, "  Status: %s\n", status)
	fmt.Fprintf(b, "  Order Date: %s\n", cellText(joined, row, "order_date"))

	est, _ := joined.Cell(row, "est_delivery")
	if est.IsNull() {
		b.WriteString("  Est. Delivery: N/A\n")
	} else {
		fmt.Fprintf(b, "  Est. Delivery: %s\n", est.Raw())
		if status != "Delivered" && now.After(est.Time()) {
			days := int(now.Sub(est.Time()).Hours() / 24)
			fmt.Fprintf(b, "  DELAYED: %d day(s) overdue\n", days)
		}
	}
	b.WriteString(divider + "\n")
}

// cellText fetches a cell and renders it with Raw; lookup errors show
// inline rather than aborting the report.
func cellText(rel *table.Relation, row int, column string) string {
	v, err := rel.Cell(row, column)
	if err != nil {
		return "N/A"
	}
	return v.Raw()
}

// =============================================================================
// Login-Time Status
// =============================================================================

// StatusState classifies a customer's order situation for the login
// notification banner.
type StatusState string

const (
	StateDelayed StatusState = "delayed"
	StateNormal  StatusState = "normal"
	StateError   StatusState = "error"
)

// Status is the structured result of CheckStatus: a classification,
// a display message, and the count of orders the message refers to.
type Status struct {
	State   StatusState
	Message string
	Count   int
}

// CheckStatus reports whether a customer has delayed orders. An order
// counts as delayed when its known delivery estimate is strictly
// before today and its status is neither Delivered nor Cancelled.
func CheckStatus(bundle *dataset.Bundle, customerID string, now time.Time) Status {
	id := Normalize(customerID)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	mine, err := bundle.Orders.Filter("customer_id", table.CmpEq, table.String(id))
	if err != nil {
		return Status{State: StateError, Message: "Unable to load data"}
	}
	if mine.NumRows() == 0 {
		return Status{State: StateNormal, Message: "You have no active orders"}
	}

	delayed, active, delivered := 0, 0, 0
	for i := 0; i < mine.NumRows(); i++ {
		status := cellText(mine, i, "status")
		est, _ := mine.Cell(i, "est_delivery")

		if !est.IsNull() && est.Time().Before(today) && status != "Delivered" && status != "Cancelled" {
			delayed++
		}
		switch status {
		case "Pending", "Shipped":
			active++
		case "Delivered":
			delivered++
		}
	}

	if delayed > 0 {
		return Status{
			State:   StateDelayed,
			Message: fmt.Sprintf("You have %d delayed %s!", delayed, plural(delayed, "order", "orders")),
			Count:   delayed,
		}
	}
	if active > 0 {
		return Status{
			State:   StateNormal,
			Message: fmt.Sprintf("All %d active %s on track!", active, plural(active, "order is", "orders are")),
			Count:   active,
		}
	}
	return Status{
		State:   StateNormal,
		Message: fmt.Sprintf("You have %d completed %s", delivered, plural(delivered, "order", "orders")),
		Count:   delivered,
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
