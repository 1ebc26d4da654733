// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/pkg/session"
)

var (
	addRole       string
	addCustomerID string

	usersCmd = &cobra.Command{
		Use:   "users",
		Short: "Manage credential store accounts",
	}

	usersAddCmd = &cobra.Command{
		Use:   "add [username]",
		Short: "Register a new account",
		Long: `Creates an account in the credential store. Customer accounts must
be bound to a customer id with --customer-id; that id scopes every
order lookup the account can make.`,
		Args: cobra.ExactArgs(1),
		RunE: runUsersAdd,
	}

	usersListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE:  runUsersList,
	}
)

func runUsersAdd(cmd *cobra.Command, args []string) error {
	role := session.Role(strings.ToLower(addRole))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q (want customer or business)", addRole)
	}

	store, err := session.OpenStore(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	password, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := store.CreateUser(args[0], password, role, addCustomerID); err != nil {
		return err
	}
	fmt.Printf("Account for '%s' created successfully! You can now log in.\n", args[0])
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	store, err := session.OpenStore(cfg.CredentialsPath)
	if err != nil {
		return err
	}
	if len(store.Users) == 0 {
		fmt.Println("No accounts registered.")
		return nil
	}
	for _, u := range store.Users {
		if u.Role == session.RoleCustomer {
			fmt.Printf("%s\t%s\t%s\n", u.Username, u.Role, u.CustomerID)
		} else {
			fmt.Printf("%s\t%s\n", u.Username, u.Role)
		}
	}
	return nil
}
