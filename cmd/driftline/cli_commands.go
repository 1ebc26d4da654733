// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/pkg/config"
	"github.com/driftline/driftline/pkg/logging"
)

var version = "0.1.0"

var (
	configPath string
	cfg        config.Config
	logger     *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "driftline",
		Short: "Role-gated conversational analytics over order and revenue data",
		Long: `Driftline is a conversational front-end over a small relational
dataset: customers chat with an order-tracking assistant scoped to
their own orders, business owners chat with an analytics assistant
that answers questions by running analysis plans over all four tables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the driftline version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("driftline %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.driftline/config.yaml)")

	chatCmd.Flags().StringVar(&chatRole, "role", "", "portal to enter: customer or business (required)")
	chatCmd.Flags().BoolVar(&showTrace, "show-trace", false, "print the tool call/output trace after each answer")
	chatCmd.MarkFlagRequired("role")

	usersAddCmd.Flags().StringVar(&addRole, "role", "", "account role: customer or business (required)")
	usersAddCmd.Flags().StringVar(&addCustomerID, "customer-id", "", "customer id to bind (customer role only)")
	usersAddCmd.MarkFlagRequired("role")
	usersCmd.AddCommand(usersAddCmd, usersListCmd)

	rootCmd.AddCommand(chatCmd, auditCmd, usersCmd, versionCmd)
}

// setup loads configuration and builds the logger shared by every
// subcommand. Console logging stays quiet so reports and chat output
// aren't interleaved with log lines; the file sink gets everything.
func setup() error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}

	logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "driftline",
		Quiet:   true,
	})
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
