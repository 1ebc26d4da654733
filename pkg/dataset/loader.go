// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dataset loads the four relational CSV sources into typed
// in-memory relations.
//
// The loader is all-or-nothing: a Bundle is only returned when every
// source was read and typed successfully. There is no caching — every
// tool invocation reloads from disk so analyses always see the file
// state at call time. Loaded relations are read-only by convention;
// downstream operations copy rather than mutate.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/driftline/driftline/pkg/table"
)

// Canonical table names, as exposed to analysis plans.
const (
	SourceCustomers = "customers"
	SourceOrders    = "orders"
	SourceProducts  = "products"
	SourceRevenue   = "revenue"
)

// =============================================================================
// Load Errors
// =============================================================================

// LoadErrorKind classifies loader failures.
type LoadErrorKind int

const (
	// LoadErrorMissingSource means a required CSV file is absent.
	LoadErrorMissingSource LoadErrorKind = iota

	// LoadErrorOther covers every other read or parse fault.
	LoadErrorOther
)

// LoadError is the typed failure of Load. Callers that surface the
// failure to a chat tool convert it to a plain descriptive string.
type LoadError struct {
	Kind   LoadErrorKind
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Kind == LoadErrorMissingSource {
		return fmt.Sprintf("required data file not found: %s", e.Source)
	}
	return fmt.Sprintf("error loading data from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// =============================================================================
// Bundle
// =============================================================================

// Bundle is the complete loaded dataset. All four relations are
// non-nil on any Bundle the loader returns.
type Bundle struct {
	Customers *table.Relation
	Orders    *table.Relation
	Products  *table.Relation
	Revenue   *table.Relation
}

// Relation resolves a canonical table name.
func (b *Bundle) Relation(name string) (*table.Relation, bool) {
	switch name {
	case SourceCustomers:
		return b.Customers, true
	case SourceOrders:
		return b.Orders, true
	case SourceProducts:
		return b.Products, true
	case SourceRevenue:
		return b.Revenue, true
	}
	return nil, false
}

// =============================================================================
// Schema
// =============================================================================

type columnSpec struct {
	name string
	kind table.Kind

	// lenient dates parse failures to null instead of failing the
	// load. Only est_delivery is lenient: an unknown delivery date is
	// a fact about the order, not a corrupt file.
	lenient bool
}

type sourceSpec struct {
	name    string
	file    string
	columns []columnSpec
}

var sources = []sourceSpec{
	{
		name: SourceCustomers,
		file: "customers.csv",
		columns: []columnSpec{
			{name: "customer_id", kind: table.KindString},
			{name: "name", kind: table.KindString},
			{name: "email", kind: table.KindString},
			{name: "region", kind: table.KindString},
		},
	},
	{
		name: SourceOrders,
		file: "orders.csv",
		columns: []columnSpec{
			{name: "order_id", kind: table.KindString},
			{name: "customer_id", kind: table.KindString},
			{name: "product_id", kind: table.KindString},
			{name: "status", kind: table.KindString},
			{name: "order_date", kind: table.KindDate},
			{name: "est_delivery", kind: table.KindDate, lenient: true},
		},
	},
	{
		name: SourceProducts,
		file: "products.csv",
		columns: []columnSpec{
			{name: "product_id", kind: table.KindString},
			{name: "name", kind: table.KindString},
			{name: "category", kind: table.KindString},
			{name: "price", kind: table.KindNumber},
			{name: "stock_level", kind: table.KindNumber},
		},
	},
	{
		name: SourceRevenue,
		file: "revenue.csv",
		columns: []columnSpec{
			{name: "revenue_id", kind: table.KindString},
			{name: "order_id", kind: table.KindString},
			{name: "amount", kind: table.KindNumber},
			{name: "date", kind: table.KindDate},
			{name: "payment_method", kind: table.KindString},
		},
	},
}

// =============================================================================
// Loader
// =============================================================================

// Loader reads the four CSV sources from a directory.
type Loader struct {
	// Dir is the directory holding the CSV files.
	Dir string
}

// NewLoader creates a Loader for the given data directory.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load reads and types all four sources. On failure the returned error
// is always a *LoadError and no partial Bundle is returned.
func (l *Loader) Load() (*Bundle, error) {
	loaded := make(map[string]*table.Relation, len(sources))
	for _, src := range sources {
		rel, err := l.loadSource(src)
		if err != nil {
			return nil, err
		}
		loaded[src.name] = rel
	}
	return &Bundle{
		Customers: loaded[SourceCustomers],
		Orders:    loaded[SourceOrders],
		Products:  loaded[SourceProducts],
		Revenue:   loaded[SourceRevenue],
	}, nil
}

func (l *Loader) loadSource(src sourceSpec) (*table.Relation, error) {
	path := filepath.Join(l.Dir, src.file)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Kind: LoadErrorMissingSource, Source: src.file, Err: err}
		}
		return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: fmt.Errorf("failed to read CSV header: %w", err)}
	}

	// Map schema columns onto the file's header positions. Extra file
	// columns are ignored; missing schema columns fail the load.
	positions := make([]int, len(src.columns))
	for i, col := range src.columns {
		pos := -1
		for j, h := range header {
			if strings.TrimSpace(h) == col.name {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: fmt.Errorf("missing column %q", col.name)}
		}
		positions[i] = pos
	}

	columns := make([]string, len(src.columns))
	for i, col := range src.columns {
		columns[i] = col.name
	}
	rel := table.New(src.name, columns...)

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: fmt.Errorf("line %d: %w", line, err)}
		}

		cells := make([]table.Value, len(src.columns))
		for i, col := range src.columns {
			if positions[i] >= len(record) {
				return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: fmt.Errorf("line %d: too few fields", line)}
			}
			raw := strings.TrimSpace(record[positions[i]])
			v, err := coerce(raw, col)
			if err != nil {
				return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: fmt.Errorf("line %d, column %q: %w", line, col.name, err)}
			}
			cells[i] = v
		}
		if err := rel.AddRow(cells...); err != nil {
			return nil, &LoadError{Kind: LoadErrorOther, Source: src.file, Err: err}
		}
	}
	return rel, nil
}

// coerce converts one raw CSV field to a typed cell.
func coerce(raw string, col columnSpec) (table.Value, error) {
	if raw == "" {
		return table.Null(), nil
	}
	switch col.kind {
	case table.KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return table.Value{}, fmt.Errorf("not a number: %q", raw)
		}
		return table.Number(f), nil
	case table.KindDate:
		t, err := parseDate(raw)
		if err != nil {
			if col.lenient {
				return table.Null(), nil
			}
			return table.Value{}, fmt.Errorf("not a date: %q", raw)
		}
		return table.Date(t), nil
	default:
		return table.String(raw), nil
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
