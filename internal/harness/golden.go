package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/types"
)

// Snapshot renders a result's trace for golden comparison.
//
// Values are made readable and stable: known addresses print as
// "@alias", hashes produced by named steps or hash_of print as
// "#step.field" or "#label", other hashes as "<hash:N>" numbered by first
// appearance, and signatures as "<sig>". Output is canonical JSON
// indented by two spaces.
func (r *Result) Snapshot(name string) ([]byte, error) {
	rd := &renderer{resolver: r.resolver, unknown: make(map[string]int)}

	trace := make(canon.Array, len(r.Trace))
	for i, entry := range r.Trace {
		trace[i] = entryValue(entry)
	}
	snapshot := rd.value(canon.Object{
		"scenario": canon.String(name),
		"trace":    trace,
	})

	data, err := canon.MarshalCanonical(snapshot)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

type renderer struct {
	resolver *Resolver
	unknown  map[string]int
}

func entryValue(e TraceEntry) canon.Object {
	events := make(canon.Array, len(e.Events))
	for i, ev := range e.Events {
		events[i] = canon.Object{
			"component": canon.String(ev.Component),
			"name":      canon.String(ev.Name),
			"fields":    ev.Fields,
		}
	}

	obj := canon.Object{
		"step":   canon.String(e.Step),
		"seq":    canon.Int(e.Seq),
		"tx":     canon.String(e.TxID),
		"time":   canon.Int(e.Time),
		"call":   canon.String(e.Call),
		"as":     canon.Addr(e.Caller),
		"args":   e.Args,
		"status": canon.String(e.Status),
		"events": events,
	}
	if e.Code != "" {
		obj["code"] = canon.String(e.Code)
	}
	if e.Result != nil {
		obj["result"] = e.Result
	}
	return obj
}

// value walks v in canonical key order, so "<hash:N>" numbering follows
// the order hashes appear in the rendered output.
func (rd *renderer) value(v canon.Value) canon.Value {
	switch val := v.(type) {
	case canon.String:
		return rd.str(string(val))
	case canon.Array:
		out := make(canon.Array, len(val))
		for i, e := range val {
			out[i] = rd.value(e)
		}
		return out
	case canon.Object:
		out := make(canon.Object, len(val))
		for _, k := range val.SortedKeys() {
			out[k] = rd.value(val[k])
		}
		return out
	}
	return v
}

func (rd *renderer) str(s string) canon.Value {
	switch {
	case addrPattern.MatchString(s):
		if rd.resolver != nil {
			addr, err := types.ParseAddress(s)
			if err == nil {
				if name, ok := rd.resolver.names[addr]; ok {
					return canon.String("@" + name)
				}
			}
		}
	case hashPattern.MatchString(s):
		if rd.resolver != nil {
			if label, ok := rd.resolver.labels[s]; ok {
				return canon.String(label)
			}
		}
		n, ok := rd.unknown[s]
		if !ok {
			n = len(rd.unknown) + 1
			rd.unknown[s] = n
		}
		return canon.String(fmt.Sprintf("<hash:%d>", n))
	case sigPattern.MatchString(s):
		return canon.String("<sig>")
	}
	return canon.String(s)
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden. A scenario that fails its own
// expectations fails the test as well.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := result.Snapshot(scenarioName)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
