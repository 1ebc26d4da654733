// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit runs the dashboard health checks: a statistical
// screen over revenue amounts and a deterministic scan for overdue
// orders. Each check returns one descriptive line classified by its
// leading keyword (CRITICAL, ALERT, SUCCESS). The revenue screen is a
// heuristic: with a fixed contamination share, any dataset of five or
// more rows flags roughly its top decile by construction, so a
// CRITICAL line means "look here", not "fraud proven".
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/driftline/driftline/pkg/dataset"
	"github.com/driftline/driftline/pkg/report"
	"github.com/driftline/driftline/pkg/table"
)

// contamination is the expected outlier share for the revenue screen.
const contamination = 0.1

// minAnomalyRows is the smallest revenue table the screen accepts.
const minAnomalyRows = 5

// NotEnoughDataMessage is returned verbatim when the revenue table is
// too small for the anomaly screen.
const NotEnoughDataMessage = "Not enough data points to run anomaly detection."

// CheckRevenueAnomalies screens revenue amounts for outliers and
// reports the most recent flagged transaction, or a clean SUCCESS
// line. The forest is seeded, so the verdict is stable across runs.
func CheckRevenueAnomalies(bundle *dataset.Bundle) string {
	rev := bundle.Revenue
	if rev.NumRows() < minAnomalyRows {
		return NotEnoughDataMessage
	}

	amounts := make([]float64, rev.NumRows())
	for i := range amounts {
		v, err := rev.Cell(i, "amount")
		if err != nil {
			return fmt.Sprintf("Error reading revenue data: %v", err)
		}
		if !v.IsNull() {
			amounts[i] = v.Num()
		}
	}

	flagged := flagOutliers(amounts, contamination)
	if len(flagged) == 0 {
		return "SUCCESS: No significant revenue anomalies detected."
	}

	latest := flagged[len(flagged)-1]
	date, _ := rev.Cell(latest, "date")
	amount, _ := rev.Cell(latest, "amount")
	orderID, _ := rev.Cell(latest, "order_id")
	return fmt.Sprintf("CRITICAL REVENUE ANOMALY: Unusual pattern on %s - Amount: %s (Order: %s).",
		date.Raw(), report.Currency(amount.Num()), orderID.Raw())
}

// CheckCriticalDelays scans every order for a known delivery estimate
// strictly before today with a status that is neither Delivered nor
// Cancelled. Matches produce an ALERT naming up to three order ids
// and up to three affected customers.
func CheckCriticalDelays(bundle *dataset.Bundle, now time.Time) string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	orders := bundle.Orders

	var orderIDs []string
	var customerIDs []string
	for i := 0; i < orders.NumRows(); i++ {
		est, err := orders.Cell(i, "est_delivery")
		if err != nil {
			return fmt.Sprintf("Error reading order data: %v", err)
		}
		if est.IsNull() || !est.Time().Before(today) {
			continue
		}
		status, _ := orders.Cell(i, "status")
		if status.Raw() == "Delivered" || status.Raw() == "Cancelled" {
			continue
		}
		oid, _ := orders.Cell(i, "order_id")
		cid, _ := orders.Cell(i, "customer_id")
		orderIDs = append(orderIDs, oid.Raw())
		customerIDs = append(customerIDs, cid.Raw())
	}

	if len(orderIDs) == 0 {
		return "SUCCESS: No critical delivery delays found."
	}

	names := customerNames(bundle.Customers, customerIDs)
	return fmt.Sprintf("ALERT: %d orders are critically delayed!\nAffected Orders: %s\nAffected Customers: %s",
		len(orderIDs),
		strings.Join(truncate(orderIDs, 3), ", "),
		strings.Join(truncate(names, 3), ", "))
}

// customerNames resolves customer ids to display names, keeping order
// and falling back to the raw id when a row is missing.
func customerNames(customers *table.Relation, ids []string) []string {
	byID := make(map[string]string, customers.NumRows())
	for i := 0; i < customers.NumRows(); i++ {
		id, _ := customers.Cell(i, "customer_id")
		name, _ := customers.Cell(i, "name")
		byID[id.Raw()] = name.Raw()
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := byID[id]; ok {
			out[i] = name
		} else {
			out[i] = id
		}
	}
	return out
}

func truncate(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
