// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/driftline/driftline/pkg/dataset"
	"github.com/driftline/driftline/pkg/logging"
	"github.com/driftline/driftline/pkg/report"
	"github.com/driftline/driftline/pkg/table"
)

// ResultName is the binding every plan must assign.
const ResultName = "result"

// NoResultMessage is returned verbatim when a plan executed without
// assigning "result".
const NoResultMessage = "Error: the plan ran, but nothing was assigned to 'result'. Assign your final answer to a step with \"assign\": \"result\"."

// NullResultMessage is returned verbatim when "result" was assigned
// the null value.
const NullResultMessage = "Warning: the calculation returned no value. Check your plan logic."

// commonIssues closes every diagnostic. The items mirror the mistakes
// models actually make against this schema.
const commonIssues = `Common issues:
- Check column names match the schema exactly (case-sensitive)
- Ensure you're using the correct join keys (customer_id, product_id, order_id)
- Supply suffixes when joining tables that share column names (e.g. 'name' in customers and products)
- Verify table names: customers, orders, products, revenue`

// =============================================================================
// Metrics
// =============================================================================

var (
	planExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftline_query_plans_total",
		Help: "Analysis plan executions by outcome",
	}, []string{"outcome"})

	planSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftline_query_steps_total",
		Help: "Executed analysis plan steps by operation",
	}, []string{"op"})

	planDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "driftline_query_duration_seconds",
		Help:    "Analysis plan execution latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

// =============================================================================
// Bindings
// =============================================================================

type bindingKind int

const (
	bindNull bindingKind = iota
	bindRelation
	bindSeries
	bindScalar
	bindText
)

// binding is the tagged result variant a step produces. The kind is
// decided once, where the value is computed; the dispatcher picks one
// formatter per kind.
type binding struct {
	kind    bindingKind
	rel     *table.Relation
	series  *table.Series
	scalar  float64
	text    string
	measure string // measure the scalar/series was computed over
	desc    string // human description for scalar reports
}

// =============================================================================
// Runner
// =============================================================================

// Runner executes analysis plans. Each Run reloads the dataset so
// plans always see current file state, and evaluates in a scope
// holding only the four tables plus the plan's own bindings — never
// the caller's variables.
type Runner struct {
	loader     *dataset.Loader
	displayCap int
	log        *logging.Logger
}

// NewRunner creates a Runner. displayCap <= 0 uses the report default.
func NewRunner(loader *dataset.Loader, displayCap int, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Default()
	}
	return &Runner{loader: loader, displayCap: displayCap, log: log}
}

// Run executes one plan and always returns text: a formatted report on
// success, a load-failure description, the fixed no-result/null-result
// strings, or a diagnostic with trace and hints. It never panics and
// never returns an error.
func (r *Runner) Run(ctx context.Context, rawPlan string) (out string) {
	start := time.Now()
	defer func() {
		planDuration.Observe(time.Since(start).Seconds())
	}()

	var trace []string
	defer func() {
		// Caller-supplied plans must not take down the turn. A panic
		// here is a bug in the engine, but the tool boundary still
		// owes the caller a string.
		if rec := recover(); rec != nil {
			planExecutions.WithLabelValues("panic").Inc()
			r.log.Error("analysis plan panicked", "panic", fmt.Sprint(rec))
			out = diagnostic(fmt.Errorf("internal fault: %v", rec), trace, string(debug.Stack()))
		}
	}()

	bundle, err := r.loader.Load()
	if err != nil {
		planExecutions.WithLabelValues("load_error").Inc()
		r.log.Error("dataset load failed", "error", err.Error())
		return err.Error()
	}

	steps, err := parsePlan(rawPlan)
	if err != nil {
		planExecutions.WithLabelValues("plan_error").Inc()
		return diagnostic(err, nil, "")
	}

	scope := map[string]binding{
		dataset.SourceCustomers: {kind: bindRelation, rel: bundle.Customers},
		dataset.SourceOrders:    {kind: bindRelation, rel: bundle.Orders},
		dataset.SourceProducts:  {kind: bindRelation, rel: bundle.Products},
		dataset.SourceRevenue:   {kind: bindRelation, rel: bundle.Revenue},
	}

	for i, step := range steps {
		b, err := evalStep(scope, step)
		if err != nil {
			planExecutions.WithLabelValues("step_error").Inc()
			r.log.Warn("analysis plan step failed",
				"step", i+1,
				"op", step.Op,
				"error", err.Error(),
			)
			return diagnostic(fmt.Errorf("step %d (%s): %w", i+1, step.Op, err), trace, "")
		}
		planSteps.WithLabelValues(step.Op).Inc()
		scope[step.Assign] = b
		trace = append(trace, fmt.Sprintf("%d. %s", i+1, step.describe()))
	}

	result, ok := scope[ResultName]
	if !ok {
		planExecutions.WithLabelValues("no_result").Inc()
		return NoResultMessage
	}

	planExecutions.WithLabelValues("ok").Inc()
	r.log.Debug("analysis plan complete", "steps", len(steps))
	return r.render(result)
}

// render dispatches a result binding to its formatter.
func (r *Runner) render(b binding) string {
	switch b.kind {
	case bindRelation:
		return report.Table(b.rel, r.displayCap)
	case bindSeries:
		return report.Series(b.series, b.series.Name)
	case bindScalar:
		return report.Scalar(b.scalar, b.desc, report.IsMoneyName(b.measure))
	case bindText:
		return b.text
	default:
		return NullResultMessage
	}
}

// diagnostic renders a caught fault: message, executed-step trace,
// optional stack, then the fixed checklist.
func diagnostic(err error, trace []string, stack string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan Execution Error: %v\n", err)
	if len(trace) > 0 {
		b.WriteString("Steps completed before the failure:\n")
		for _, line := range trace {
			b.WriteString("  " + line + "\n")
		}
	}
	if stack != "" {
		b.WriteString("Stack trace:\n")
		b.WriteString(stack)
		if !strings.HasSuffix(stack, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(commonIssues)
	return b.String()
}

// =============================================================================
// Step Evaluation
// =============================================================================

func evalStep(scope map[string]binding, step Step) (binding, error) {
	if step.Assign == "" {
		return binding{}, fmt.Errorf("step has no \"assign\" name")
	}

	switch step.Op {
	case "filter":
		return evalFilter(scope, step)
	case "select":
		return evalSelect(scope, step)
	case "join":
		return evalJoin(scope, step)
	case "group":
		return evalGroup(scope, step)
	case "aggregate":
		return evalAggregate(scope, step)
	case "sort":
		return evalSort(scope, step)
	case "limit":
		return evalLimit(scope, step)
	case "value":
		return evalValue(step)
	case "":
		return binding{}, fmt.Errorf("step has no \"op\"")
	default:
		return binding{}, fmt.Errorf("unknown op %q (want filter, select, join, group, aggregate, sort, limit, or value)", step.Op)
	}
}

// resolveRelation looks up a name bound to a table.
func resolveRelation(scope map[string]binding, name string) (*table.Relation, error) {
	if name == "" {
		return nil, fmt.Errorf("missing \"input\" table name")
	}
	b, ok := scope[name]
	if !ok {
		return nil, fmt.Errorf("unknown table or binding %q (available: %s)", name, scopeNames(scope))
	}
	if b.kind != bindRelation {
		return nil, fmt.Errorf("%q is not a table", name)
	}
	return b.rel, nil
}

func scopeNames(scope map[string]binding) string {
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func evalFilter(scope map[string]binding, step Step) (binding, error) {
	rel, err := resolveRelation(scope, step.Input)
	if err != nil {
		return binding{}, err
	}
	cmp, err := table.ParseCmp(step.Cmp)
	if err != nil {
		return binding{}, err
	}
	op, err := operand(step.Value)
	if err != nil {
		return binding{}, err
	}
	out, err := rel.Filter(step.Column, cmp, op)
	if err != nil {
		return binding{}, err
	}
	return binding{kind: bindRelation, rel: out}, nil
}

func evalSelect(scope map[string]binding, step Step) (binding, error) {
	rel, err := resolveRelation(scope, step.Input)
	if err != nil {
		return binding{}, err
	}
	out, err := rel.Select(step.Columns)
	if err != nil {
		return binding{}, err
	}
	return binding{kind: bindRelation, rel: out}, nil
}

func evalJoin(scope map[string]binding, step Step) (binding, error) {
	left, err := resolveRelation(scope, step.Left)
	if err != nil {
		return binding{}, fmt.Errorf("join left side: %w", err)
	}
	right, err := resolveRelation(scope, step.Right)
	if err != nil {
		return binding{}, fmt.Errorf("join right side: %w", err)
	}
	how, err := table.ParseJoinHow(step.How)
	if err != nil {
		return binding{}, err
	}
	var leftSuffix, rightSuffix string
	switch len(step.Suffixes) {
	case 0:
	case 2:
		leftSuffix, rightSuffix = step.Suffixes[0], step.Suffixes[1]
	default:
		return binding{}, fmt.Errorf("suffixes must be a two-element array [left, right]")
	}
	out, err := left.Join(right, step.On, how, leftSuffix, rightSuffix)
	if err != nil {
		return binding{}, err
	}
	return binding{kind: bindRelation, rel: out}, nil
}

func evalGroup(scope map[string]binding, step Step) (binding, error) {
	rel, err := resolveRelation(scope, step.Input)
	if err != nil {
		return binding{}, err
	}
	agg, err := table.ParseAggregate(step.Aggregate)
	if err != nil {
		return binding{}, err
	}
	series, err := rel.GroupBy(step.By, agg, step.Measure)
	if err != nil {
		return binding{}, err
	}

	switch step.Sort {
	case "":
	case "value_desc":
		series.SortByValue(true)
	case "value_asc":
		series.SortByValue(false)
	case "key_asc":
		series.SortByKey()
	default:
		return binding{}, fmt.Errorf("unknown sort %q (want value_desc, value_asc, or key_asc)", step.Sort)
	}
	if step.Limit > 0 {
		series.Head(step.Limit)
	}
	return binding{kind: bindSeries, series: series, measure: step.Measure}, nil
}

func evalAggregate(scope map[string]binding, step Step) (binding, error) {
	rel, err := resolveRelation(scope, step.Input)
	if err != nil {
		return binding{}, err
	}
	agg, err := table.ParseAggregate(step.Aggregate)
	if err != nil {
		return binding{}, err
	}
	v, err := rel.Reduce(agg, step.Measure)
	if err != nil {
		return binding{}, err
	}

	desc := fmt.Sprintf("%s of %s", agg, step.Measure)
	if step.Measure == "" {
		desc = fmt.Sprintf("%s of %s", agg, step.Input)
	}
	return binding{kind: bindScalar, scalar: v, measure: step.Measure, desc: desc}, nil
}

func evalSort(scope map[string]binding, step Step) (binding, error) {
	rel, err := resolveRelation(scope, step.Input)
	if err != nil {
		return binding{}, err
	}
	out, err := rel.Sort(step.Column, step.Desc)
	if err != nil {
		return binding{}, err
	}
	return binding{kind: bindRelation, rel: out}, nil
}

func evalLimit(scope map[string]binding, step Step) (binding, error) {
	rel, err := resolveRelation(scope, step.Input)
	if err != nil {
		return binding{}, err
	}
	return binding{kind: bindRelation, rel: rel.Head(step.N)}, nil
}

func evalValue(step Step) (binding, error) {
	v, err := operand(step.Value)
	if err != nil {
		return binding{}, err
	}
	switch v.Kind() {
	case table.KindNull:
		return binding{kind: bindNull}, nil
	case table.KindNumber:
		return binding{kind: bindScalar, scalar: v.Num(), desc: "Result"}, nil
	default:
		return binding{kind: bindText, text: v.Raw()}, nil
	}
}
