package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/types"
)

// Scenario is a scripted sequence of calls against a fresh ledger with
// expectations on each outcome and assertions on the final log and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides the deployment defaults.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Accounts maps aliases to fixed addresses. Args refer to them as
	// "$alias" and "as:" names them directly.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Keys lists aliases backed by signing keys derived from Seed. Their
	// addresses resolve like accounts, and sign_claim / sign_execution
	// args sign with them.
	Keys []string `yaml:"keys,omitempty"`

	// Seed is the secret keys are derived from. Defaults to DefaultSeed.
	Seed string `yaml:"seed,omitempty"`

	// Setup steps establish initial state. Each must apply; a rejected
	// setup step aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence, each step checked against its expect.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final log and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig overrides the deployment a scenario runs against.
type ScenarioConfig struct {
	ChainID          uint64 `yaml:"chain_id,omitempty"`
	Admin            string `yaml:"admin,omitempty"`
	Asset            string `yaml:"asset,omitempty"`
	LiquidityRateRay string `yaml:"liquidity_rate_ray,omitempty"`
	// StartTime is the ledger time of the first call and the pool's
	// genesis.
	StartTime int64 `yaml:"start_time,omitempty"`
}

// Defaults applied to ScenarioConfig and Scenario.Seed.
const (
	DefaultAdmin     = "0x00000000000000000000000000000000000000aa"
	DefaultStartTime = 1700000000
	DefaultSeed      = "flowguard-scenario"
)

// Step is one call.
type Step struct {
	// ID names the step so later args can refer to its result as
	// "$id.field".
	ID string `yaml:"id,omitempty"`

	// Call is "component.method".
	Call string `yaml:"call"`

	// As is the caller alias. Defaults to admin.
	As string `yaml:"as,omitempty"`

	// Args are the call arguments; see Resolver for the substitutions.
	Args map[string]any `yaml:"args,omitempty"`

	// Advance moves the ledger clock forward by this many seconds
	// before the call.
	Advance int64 `yaml:"advance,omitempty"`

	// Expect checks the outcome. A step without one must apply.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Status is "applied" or "rejected".
	Status string `yaml:"status"`

	// Code is the expected error code of a rejection.
	Code string `yaml:"code,omitempty"`

	// Result is a subset match against the call's result object.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the final log or state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is "component.Name" (event_emitted, event_count).
	Event string `yaml:"event,omitempty"`

	// Fields is a subset match on event fields (event_emitted,
	// event_count).
	Fields map[string]any `yaml:"fields,omitempty"`

	// Call names a call (call_count) or the query to run (query).
	Call string `yaml:"call,omitempty"`

	// Calls is the expected relative order of call names (call_order).
	Calls []string `yaml:"calls,omitempty"`

	// Status restricts call_count to applied or rejected calls.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of matches (event_count, call_count).
	Count int `yaml:"count,omitempty"`

	// Args are the query arguments (query).
	Args map[string]any `yaml:"args,omitempty"`

	// Expect is the expected query result. Objects match as subsets.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertEventEmitted = "event_emitted"
	AssertEventCount   = "event_count"
	AssertCallOrder    = "call_order"
	AssertCallCount    = "call_count"
	AssertQuery        = "query"
)

var aliasPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for _, name := range builtinAliases {
		aliases[name] = true
	}
	for alias, addr := range s.Accounts {
		if !aliasPattern.MatchString(alias) {
			return fmt.Errorf("accounts: invalid alias %q", alias)
		}
		if aliases[alias] {
			return fmt.Errorf("accounts: alias %q is reserved", alias)
		}
		if _, err := types.ParseAddress(addr); err != nil {
			return fmt.Errorf("accounts.%s: %w", alias, err)
		}
		aliases[alias] = true
	}
	for i, key := range s.Keys {
		if !aliasPattern.MatchString(key) {
			return fmt.Errorf("keys[%d]: invalid alias %q", i, key)
		}
		if aliases[key] {
			return fmt.Errorf("keys[%d]: alias %q already defined", i, key)
		}
		aliases[key] = true
	}

	ids := make(map[string]bool)
	check := func(section string, i int, step Step) error {
		if step.Call == "" {
			return fmt.Errorf("%s[%d]: call is required", section, i)
		}
		if _, _, err := protocol.ParseName(step.Call); err != nil {
			return fmt.Errorf("%s[%d]: %w", section, i, err)
		}
		if step.As != "" && !aliases[step.As] {
			return fmt.Errorf("%s[%d]: unknown caller %q", section, i, step.As)
		}
		if step.Advance < 0 {
			return fmt.Errorf("%s[%d]: advance must be non-negative", section, i)
		}
		if step.ID != "" {
			if ids[step.ID] {
				return fmt.Errorf("%s[%d]: duplicate step id %q", section, i, step.ID)
			}
			ids[step.ID] = true
		}
		if step.Expect != nil {
			switch step.Expect.Status {
			case protocol.StatusApplied:
				if step.Expect.Code != "" {
					return fmt.Errorf("%s[%d].expect: code given for an applied call", section, i)
				}
			case protocol.StatusRejected:
				if step.Expect.Result != nil {
					return fmt.Errorf("%s[%d].expect: result given for a rejected call", section, i)
				}
			default:
				return fmt.Errorf("%s[%d].expect: status must be applied or rejected, got %q", section, i, step.Expect.Status)
			}
		}
		return nil
	}

	for i, step := range s.Setup {
		if err := check("setup", i, step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps take no expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := check("flow", i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventEmitted, AssertEventCount:
		if _, _, err := protocol.ParseName(a.Event); err != nil {
			return fmt.Errorf("assertions[%d]: event: %w", index, err)
		}
	case AssertCallOrder:
		if len(a.Calls) < 2 {
			return fmt.Errorf("assertions[%d]: call_order needs at least two calls", index)
		}
	case AssertCallCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for call_count", index)
		}
		if a.Status != "" && a.Status != protocol.StatusApplied && a.Status != protocol.StatusRejected {
			return fmt.Errorf("assertions[%d]: invalid status %q", index, a.Status)
		}
	case AssertQuery:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for query", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for query", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
