// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package query executes analysis plans against the loaded dataset.
//
// A plan is what the business-role model emits instead of free-form
// code: a JSON array of assignment steps over relational operations
// (filter, select, join, group, aggregate, sort, limit, value). Steps
// execute top to bottom in an isolated scope that starts with exactly
// the four dataset tables; the plan must assign its final answer to
// "result".
//
// The executor is a tool boundary: it always returns a string and
// never raises. Faults of any kind — malformed plans, unknown columns,
// missing suffixes on an ambiguous join, even panics — are caught and
// rendered as a diagnostic with a step trace and a checklist of the
// usual mistakes.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/driftline/driftline/pkg/table"
)

// Step is one assignment in an analysis plan. Op decides which of the
// optional fields apply.
type Step struct {
	// Assign names the binding the step creates. Required.
	Assign string `json:"assign"`

	// Op is the operation: filter, select, join, group, aggregate,
	// sort, limit, or value.
	Op string `json:"op"`

	// Input names the table or prior binding most ops read.
	Input string `json:"input,omitempty"`

	// Filter fields.
	Column string `json:"column,omitempty"`
	Cmp    string `json:"cmp,omitempty"`
	Value  any    `json:"value,omitempty"`

	// Select field.
	Columns []string `json:"columns,omitempty"`

	// Join fields. Suffixes disambiguate columns present on both
	// sides (left suffix first).
	Left     string   `json:"left,omitempty"`
	Right    string   `json:"right,omitempty"`
	On       string   `json:"on,omitempty"`
	How      string   `json:"how,omitempty"`
	Suffixes []string `json:"suffixes,omitempty"`

	// Group and aggregate fields.
	By        []string `json:"by,omitempty"`
	Aggregate string   `json:"aggregate,omitempty"`
	Measure   string   `json:"measure,omitempty"`
	Sort      string   `json:"sort,omitempty"`
	Limit     int      `json:"limit,omitempty"`

	// Sort fields (standalone sort op).
	Desc bool `json:"desc,omitempty"`

	// Limit field (standalone limit op).
	N int `json:"n,omitempty"`
}

// describe renders a compact one-line form of the step for traces.
func (s Step) describe() string {
	switch s.Op {
	case "filter":
		return fmt.Sprintf("%s = filter(%s) where %s %s %v", s.Assign, s.Input, s.Column, s.Cmp, s.Value)
	case "select":
		return fmt.Sprintf("%s = select(%s) columns [%s]", s.Assign, s.Input, strings.Join(s.Columns, ", "))
	case "join":
		return fmt.Sprintf("%s = join(%s, %s) on %s", s.Assign, s.Left, s.Right, s.On)
	case "group":
		return fmt.Sprintf("%s = group(%s) by [%s] %s(%s)", s.Assign, s.Input, strings.Join(s.By, ", "), s.Aggregate, s.Measure)
	case "aggregate":
		return fmt.Sprintf("%s = %s(%s.%s)", s.Assign, s.Aggregate, s.Input, s.Measure)
	case "sort":
		return fmt.Sprintf("%s = sort(%s) by %s desc=%v", s.Assign, s.Input, s.Column, s.Desc)
	case "limit":
		return fmt.Sprintf("%s = limit(%s, %d)", s.Assign, s.Input, s.N)
	case "value":
		return fmt.Sprintf("%s = value(%v)", s.Assign, s.Value)
	default:
		return fmt.Sprintf("%s = %s(...)", s.Assign, s.Op)
	}
}

// parsePlan accepts either a bare JSON array of steps or an object
// with a "steps" field, which some models prefer to emit.
func parsePlan(raw string) ([]Step, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty analysis plan")
	}

	var steps []Step
	if err := json.Unmarshal([]byte(raw), &steps); err == nil {
		return steps, nil
	}

	var wrapped struct {
		Steps []Step `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if wrapped.Steps == nil {
		return nil, fmt.Errorf("plan JSON has no steps")
	}
	return wrapped.Steps, nil
}

// operand converts a JSON literal to a typed cell. Strings that parse
// as YYYY-MM-DD dates become dates so they compare against date
// columns.
func operand(v any) (table.Value, error) {
	switch x := v.(type) {
	case nil:
		return table.Null(), nil
	case float64:
		return table.Number(x), nil
	case string:
		if t, err := time.Parse("2006-01-02", x); err == nil {
			return table.Date(t), nil
		}
		return table.String(x), nil
	case bool:
		return table.Value{}, fmt.Errorf("boolean literals are not supported; compare against a column value")
	default:
		return table.Value{}, fmt.Errorf("unsupported literal %v (%T)", v, v)
	}
}
