// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/pkg/audit"
	"github.com/driftline/driftline/pkg/dataset"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the revenue anomaly screen and the delayed-order scan",
	Long: `Loads the dataset and runs both audit checks: a statistical screen
over revenue amounts and a scan for orders past their delivery
estimate. Each check prints one line prefixed CRITICAL, ALERT, or
SUCCESS.`,
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	bundle, err := dataset.NewLoader(cfg.DataDir).Load()
	if err != nil {
		return err
	}

	fmt.Println("Revenue audit:")
	fmt.Println("  " + audit.CheckRevenueAnomalies(bundle))
	fmt.Println("Delivery audit:")
	fmt.Println("  " + audit.CheckCriticalDelays(bundle, time.Now()))
	return nil
}
