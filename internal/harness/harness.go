package harness

import (
	"context"
	"fmt"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/config"
	"github.com/roach88/flowguard/internal/engine"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
	"github.com/roach88/flowguard/internal/testutil"
)

// Harness runs one scenario against a fresh deployment.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.ManualClock
	resolver *Resolver
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh protocol and in-memory call log,
// with a manual clock and fixed transaction ids, so two runs of the same
// scenario produce identical traces.
//
// Execution flow:
//  1. Deploy the protocol from the scenario config
//  2. Execute setup steps; any rejection aborts the run
//  3. Execute flow steps, checking each expect clause
//  4. Evaluate assertions against the log and final state
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	opts, err := deployment(scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario config: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	proto, err := protocol.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy protocol: %w", err)
	}

	clock := testutil.NewManualClock(opts.Genesis)
	eng := engine.New(proto, st,
		engine.WithTimeSource(clock),
		engine.WithIDGenerator(testutil.NewFixedIDs("tx")),
	)

	resolver, err := newResolver(scenario, opts, clock.Now)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario accounts: %w", err)
	}

	h := &Harness{store: st, engine: eng, clock: clock, resolver: resolver}
	result := NewResult()
	result.resolver = resolver

	for i, step := range scenario.Setup {
		entry, err := h.execute(ctx, stepLabel("setup", i, step), step)
		if err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
		result.Trace = append(result.Trace, entry)
		if entry.Status != protocol.StatusApplied {
			return nil, fmt.Errorf("setup step %s (%s) rejected: %s: %s",
				entry.Step, entry.Call, entry.Code, entry.Message)
		}
	}

	for i, step := range scenario.Flow {
		entry, err := h.execute(ctx, stepLabel("flow", i, step), step)
		if err != nil {
			return nil, fmt.Errorf("failed to execute flow: %w", err)
		}
		result.Trace = append(result.Trace, entry)
		for _, msg := range h.checkExpect(entry, step.Expect) {
			result.AddError(msg)
		}
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Engine:   eng,
		Resolver: resolver,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// deployment overlays the scenario config on the file defaults and
// validates it the same way flowguard.yaml is validated.
func deployment(sc ScenarioConfig) (protocol.Options, error) {
	cfg := config.Default()
	cfg.Database = ":memory:"
	cfg.Admin = DefaultAdmin
	cfg.Genesis = DefaultStartTime
	if sc.ChainID != 0 {
		cfg.ChainID = sc.ChainID
	}
	if sc.Admin != "" {
		cfg.Admin = sc.Admin
	}
	if sc.Asset != "" {
		cfg.Asset.Symbol = sc.Asset
	}
	if sc.LiquidityRateRay != "" {
		cfg.Pool.LiquidityRateRay = sc.LiquidityRateRay
	}
	if sc.StartTime != 0 {
		cfg.Genesis = sc.StartTime
	}
	if err := cfg.Validate(); err != nil {
		return protocol.Options{}, err
	}
	return cfg.Options()
}

func stepLabel(section string, i int, s Step) string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("%s[%d]", section, i)
}

// execute runs one step through the engine. The returned error is set
// only when the step could not be built or persisted; a ledger rejection
// is reported in the entry.
func (h *Harness) execute(ctx context.Context, label string, s Step) (TraceEntry, error) {
	if s.Advance > 0 {
		h.clock.Advance(s.Advance)
	}

	as := s.As
	if as == "" {
		as = "admin"
	}
	caller, err := h.resolver.Address(as)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("%s: %w", label, err)
	}
	args, err := h.resolver.Args(s.Args)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("%s: args: %w", label, err)
	}
	call, err := protocol.NewCall(s.Call, caller, args)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("%s: %w", label, err)
	}

	rec, err := h.engine.Execute(ctx, call)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("%s: %w", label, err)
	}

	entry := TraceEntry{
		Step:   label,
		Seq:    rec.Seq,
		TxID:   rec.TxID,
		Time:   rec.Time,
		Call:   call.Name(),
		Caller: caller,
		Args:   call.Args,
		Status: rec.Status(),
		Code:   rec.Code(),
		Result: rec.Result,
		Events: rec.Events,
	}
	if rec.Err != nil {
		entry.Message = rec.Err.Error()
	} else if s.ID != "" {
		h.resolver.record(s.ID, rec.Result)
	}
	return entry, nil
}

// checkExpect compares a flow step's outcome with its expect clause. A
// step without one must apply.
func (h *Harness) checkExpect(entry TraceEntry, exp *Expect) []string {
	want := Expect{Status: protocol.StatusApplied}
	if exp != nil {
		want = *exp
	}

	if entry.Status != want.Status {
		got := entry.Status
		if entry.Code != "" {
			got += fmt.Sprintf(" (%s: %s)", entry.Code, entry.Message)
		}
		return []string{fmt.Sprintf("%s %s: expected %s, got %s", entry.Step, entry.Call, want.Status, got)}
	}

	var errs []string
	if want.Code != "" && entry.Code != want.Code {
		errs = append(errs, fmt.Sprintf("%s %s: expected code %s, got %s", entry.Step, entry.Call, want.Code, entry.Code))
	}
	if want.Result != nil {
		expected, err := h.resolver.Args(want.Result)
		if err != nil {
			return append(errs, fmt.Sprintf("%s expect.result: %v", entry.Step, err))
		}
		if !matchValue(expected, entry.Result) {
			errs = append(errs, fmt.Sprintf("%s %s: result %s does not match %s",
				entry.Step, entry.Call, compact(entry.Result), compact(expected)))
		}
	}
	return errs
}

// compact renders a value for error messages.
func compact(v canon.Value) string {
	if v == nil {
		return "<none>"
	}
	data, err := canon.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
