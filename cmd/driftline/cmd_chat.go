// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/driftline/driftline/pkg/agent"
	"github.com/driftline/driftline/pkg/dataset"
	"github.com/driftline/driftline/pkg/orders"
	"github.com/driftline/driftline/pkg/query"
	"github.com/driftline/driftline/pkg/session"
)

var (
	chatRole  string
	showTrace bool

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Log in and chat with the role's assistant",
		Long: `Authenticates against the credential store for the chosen portal
role, then starts an interactive chat. Customers get the order-tracking
assistant pinned to their own customer id; business owners get the
analytics assistant. Type 'exit' or 'quit' (or Ctrl+D) to leave.`,
		RunE: runChat,
	}
)

func runChat(cmd *cobra.Command, args []string) error {
	role := session.Role(strings.ToLower(chatRole))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q (want customer or business)", chatRole)
	}

	store, err := session.OpenStore(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	sess, err := login(store, role)
	if err != nil {
		return err
	}
	logger.Info("login", "role", string(role), "user", sess.Username)
	fmt.Printf("\nWelcome, %s!\n", sess.Username)

	loader := dataset.NewLoader(cfg.DataDir)
	if role == session.RoleCustomer {
		notifyDelays(loader, sess)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	runner := query.NewRunner(loader, cfg.DisplayCap, logger)
	ag := agent.New(openai.NewClient(apiKey), cfg.Model, loader, runner, logger, time.Now)

	chatLoop(cmd, ag, sess)
	return nil
}

// login prompts for credentials until one authenticates or the user
// gives up (EOF).
func login(store *session.Store, role session.Role) (*session.Session, error) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("User ID: ")
		username, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("login aborted")
		}
		password, err := readPassword(reader)
		if err != nil {
			return nil, fmt.Errorf("login aborted")
		}

		sess, err := store.Authenticate(strings.TrimSpace(username), password, role)
		if err == nil {
			return sess, nil
		}
		switch {
		case errors.Is(err, session.ErrUnknownUser):
			fmt.Println("Authentication failed: User ID not found.")
		case errors.Is(err, session.ErrWrongPassword):
			fmt.Println("Authentication failed: Incorrect password.")
		case errors.Is(err, session.ErrWrongRole):
			fmt.Println("Authentication failed: Incorrect role for this user.")
		default:
			return nil, err
		}
	}
}

// readPassword hides input on a real terminal and falls back to plain
// line reading for piped input.
func readPassword(reader *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	if isatty.IsTerminal(os.Stdin.Fd()) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// notifyDelays shows the login-time order status banner. A load
// failure only skips the banner; chat still works.
func notifyDelays(loader *dataset.Loader, sess *session.Session) {
	bundle, err := loader.Load()
	if err != nil {
		logger.Warn("status banner skipped", "error", err.Error())
		return
	}
	st := orders.CheckStatus(bundle, sess.CustomerID, time.Now())
	if st.State == orders.StateError {
		return
	}
	fmt.Println(st.Message)
}

func chatLoop(cmd *cobra.Command, ag *agent.Agent, sess *session.Session) {
	var history []agent.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	fmt.Println("\nType your question, or 'exit' to leave.")
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "exit" || prompt == "quit" {
			return
		}

		answer, steps := ag.Turn(cmd.Context(), sess, history, prompt)
		fmt.Println("\n" + answer)

		if showTrace {
			printTrace(steps)
		}

		history = append(history, agent.UserMessage(prompt), agent.AssistantMessage(answer))
	}
}

func printTrace(steps []agent.TraceStep) {
	fmt.Println("\n--- Trace ---")
	if len(steps) == 0 {
		fmt.Println("No external tools were required for this response.")
		return
	}
	for _, step := range steps {
		if step.Name != "" {
			fmt.Printf("[%s] %s: %s\n", step.Label, step.Name, step.Content)
		} else {
			fmt.Printf("[%s]\n%s\n", step.Label, step.Content)
		}
	}
}
