package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/engine"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, entry := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", entry.Seq, entry.Call, entry.Status)
		if entry.Code != "" {
			fmt.Fprintf(&buf, " %s", entry.Code)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Engine   *engine.Engine
	Resolver *Resolver
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventEmitted:
			err = assertEventEmitted(actx, result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(actx, result.Trace, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result.Trace, assertion)
		case AssertCallCount:
			err = assertCallCount(actx, result.Trace, assertion)
		case AssertQuery:
			err = assertQuery(actx, result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// matchingEvents reads the events named by a from the log and keeps those
// whose fields contain a.Fields.
func matchingEvents(actx *AssertionContext, a Assertion) ([]ledger.Event, error) {
	component, name, err := protocol.ParseName(a.Event)
	if err != nil {
		return nil, err
	}
	events, err := actx.Store.ReadEvents(actx.Ctx, store.EventFilter{Component: component, Name: name})
	if err != nil {
		return nil, err
	}
	want, err := actx.Resolver.Args(a.Fields)
	if err != nil {
		return nil, fmt.Errorf("%s fields: %w", a.Type, err)
	}

	var out []ledger.Event
	for _, ev := range events {
		if matchValue(want, ev.Fields) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// assertEventEmitted checks that at least one logged event matches.
func assertEventEmitted(actx *AssertionContext, trace []TraceEntry, a Assertion) error {
	events, err := matchingEvents(actx, a)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return &AssertionError{
			Type:     AssertEventEmitted,
			Expected: fmt.Sprintf("event %s with fields %v", a.Event, a.Fields),
			Actual:   "not found in log",
			Trace:    trace,
		}
	}
	return nil
}

// assertEventCount checks the exact number of matching events.
func assertEventCount(actx *AssertionContext, trace []TraceEntry, a Assertion) error {
	events, err := matchingEvents(actx, a)
	if err != nil {
		return err
	}
	if len(events) != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", len(events)),
			Trace:    trace,
		}
	}
	return nil
}

// assertCallOrder checks that the first occurrence of each call comes in
// the given order. Other calls may come in between.
func assertCallOrder(trace []TraceEntry, a Assertion) error {
	positions := make(map[string]int)
	for i, entry := range trace {
		if _, seen := positions[entry.Call]; !seen {
			positions[entry.Call] = i + 1
		}
	}

	for _, call := range a.Calls {
		if positions[call] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all calls present: %v", a.Calls),
				Actual:   fmt.Sprintf("missing call: %s", call),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Calls); i++ {
		prev, curr := a.Calls[i-1], a.Calls[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("calls in order: %v", a.Calls),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertCallCount counts logged calls by name and, optionally, status.
func assertCallCount(actx *AssertionContext, trace []TraceEntry, a Assertion) error {
	calls, err := actx.Store.ReadCalls(actx.Ctx, 0)
	if err != nil {
		return err
	}

	count := 0
	for _, c := range calls {
		if c.Name() != a.Call {
			continue
		}
		if a.Status != "" && c.Status != a.Status {
			continue
		}
		count++
	}

	if count != a.Count {
		what := a.Call
		if a.Status != "" {
			what += " (" + a.Status + ")"
		}
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d calls of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertQuery runs a read-only method and compares its result.
func assertQuery(actx *AssertionContext, trace []TraceEntry, a Assertion) error {
	args, err := actx.Resolver.Args(a.Args)
	if err != nil {
		return fmt.Errorf("query %s args: %w", a.Call, err)
	}
	want, err := actx.Resolver.Resolve(a.Expect)
	if err != nil {
		return fmt.Errorf("query %s expect: %w", a.Call, err)
	}

	got, err := actx.Engine.Query(a.Call, args)
	if err != nil {
		return &AssertionError{
			Type:     AssertQuery,
			Expected: fmt.Sprintf("%s = %s", a.Call, compact(want)),
			Actual:   fmt.Sprintf("error %s: %v", ledger.CodeOf(err), err),
			Trace:    trace,
		}
	}
	if !matchValue(want, got) {
		return &AssertionError{
			Type:     AssertQuery,
			Expected: fmt.Sprintf("%s = %s", a.Call, compact(want)),
			Actual:   compact(got),
			Trace:    trace,
		}
	}
	return nil
}

// matchValue reports whether actual satisfies expected. Objects match as
// subsets, arrays element-wise, and an integer matches the decimal
// string of the same number so amounts can be written either way.
func matchValue(expected, actual canon.Value) bool {
	switch exp := expected.(type) {
	case canon.Object:
		act, ok := actual.(canon.Object)
		if !ok {
			return false
		}
		for k, v := range exp {
			av, found := act[k]
			if !found || !matchValue(v, av) {
				return false
			}
		}
		return true
	case canon.Array:
		act, ok := actual.(canon.Array)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchValue(exp[i], act[i]) {
				return false
			}
		}
		return true
	case canon.Int:
		switch act := actual.(type) {
		case canon.Int:
			return exp == act
		case canon.String:
			return fmt.Sprint(int64(exp)) == string(act)
		}
		return false
	case canon.String:
		switch act := actual.(type) {
		case canon.String:
			return exp == act
		case canon.Int:
			return string(exp) == fmt.Sprint(int64(act))
		}
		return false
	case canon.Bool:
		act, ok := actual.(canon.Bool)
		return ok && exp == act
	}
	return false
}
