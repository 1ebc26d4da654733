// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MinPasswordLen is the shortest password accepted at registration.
const MinPasswordLen = 6

// Authentication failures are distinguished so the CLI can tell the
// user which part was wrong, matching the login flow this replaces.
var (
	ErrUnknownUser   = errors.New("user ID not found")
	ErrWrongPassword = errors.New("incorrect password")
	ErrWrongRole     = errors.New("incorrect role for this user")
	ErrUserExists    = errors.New("user ID already exists")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// User is one stored credential record. Passwords are kept as sha256
// hex digests, never in the clear.
type User struct {
	Username   string `yaml:"username" validate:"required"`
	PassDigest string `yaml:"password_sha256" validate:"required,len=64,hexadecimal"`
	Role       Role   `yaml:"role" validate:"required,oneof=customer business"`
	CustomerID string `yaml:"customer_id,omitempty" validate:"required_if=Role customer"`
}

// Store is the flat credential file. It is small, single-writer, and
// rewritten whole on every change.
type Store struct {
	path  string
	Users []User `yaml:"users"`
}

// OpenStore reads the credential file, creating an empty one (with
// its directory) on first run.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("creating credential directory: %w", err)
		}
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential store %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parsing credential store %s: %w", path, err)
	}
	for i := range s.Users {
		if err := validate.Struct(&s.Users[i]); err != nil {
			return nil, fmt.Errorf("credential store %s: user %q: %w", path, s.Users[i].Username, err)
		}
	}
	return s, nil
}

func (s *Store) save() error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding credential store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("writing credential store %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) find(username string) *User {
	for i := range s.Users {
		if s.Users[i].Username == username {
			return &s.Users[i]
		}
	}
	return nil
}

// Digest returns the stored form of a password.
func Digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Authenticate checks a login against the store for the portal role
// the user is entering through. Failures are distinct errors so the
// caller can report which check failed.
func (s *Store) Authenticate(username, password string, role Role) (*Session, error) {
	user := s.find(username)
	if user == nil {
		return nil, ErrUnknownUser
	}
	if user.PassDigest != Digest(password) {
		return nil, ErrWrongPassword
	}
	if user.Role != role {
		return nil, ErrWrongRole
	}
	return NewSession(user.Role, user.Username, user.CustomerID), nil
}

// CreateUser registers a new account and persists the store. Customer
// accounts must carry a customer id, which is normalized to the
// canonical trimmed-uppercase form.
func (s *Store) CreateUser(username, password string, role Role, customerID string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if s.find(username) != nil {
		return fmt.Errorf("%w: %q", ErrUserExists, username)
	}

	user := User{
		Username:   username,
		PassDigest: Digest(password),
		Role:       role,
	}
	if role == RoleCustomer {
		customerID = strings.ToUpper(strings.TrimSpace(customerID))
		if customerID == "" {
			return fmt.Errorf("customer ID is required for customer accounts")
		}
		user.CustomerID = customerID
	}

	if err := validate.Struct(&user); err != nil {
		return fmt.Errorf("invalid user record: %w", err)
	}
	s.Users = append(s.Users, user)
	return s.save()
}
