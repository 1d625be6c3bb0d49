package harness

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/sig"
	"github.com/roach88/flowguard/internal/types"
)

// DomainHashOf separates hash_of values from every ledger hash domain.
const DomainHashOf = "flowguard/scenario-label/v1"

// builtinAliases are resolvable in every scenario, in registration order.
var builtinAliases = []string{
	"admin", "zero", "payroll", "stealth", "scheduler",
	"vault", "compliance", "pool", "asset", "atoken",
}

var (
	nowPattern  = regexp.MustCompile(`^now([+-][0-9]+)?$`)
	addrPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	hashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
	sigPattern  = regexp.MustCompile(`^0x[0-9a-f]{192}$`)
)

// Resolver turns scenario YAML values into canonical call arguments.
//
// Substitutions, applied recursively:
//
//	"$alias"              address of an account, key or built-in alias
//	"$now", "$now+3600"   current ledger time, optionally offset
//	"$step.field"         field of an earlier step's result
//	"$$text"              the literal string "$text"
//	{hash_of: label}      a 32-byte hash derived from label
//	{sign_claim: {key, payment_id, recipient}}
//	{sign_execution: {key, payroll_id, nonce}}
//
// The two sign forms produce the hex proof the stealth and scheduler
// components verify.
type Resolver struct {
	chainID uint64
	now     func() int64

	aliases map[string]types.Address
	names   map[types.Address]string
	keys    map[string]*sig.Key
	results map[string]canon.Object
	labels  map[string]string
}

func newResolver(s *Scenario, opts protocol.Options, now func() int64) (*Resolver, error) {
	r := &Resolver{
		chainID: opts.ChainID,
		now:     now,
		aliases: make(map[string]types.Address),
		names:   make(map[types.Address]string),
		keys:    make(map[string]*sig.Key),
		results: make(map[string]canon.Object),
		labels:  make(map[string]string),
	}

	builtins := map[string]types.Address{
		"admin":      opts.Admin,
		"zero":       types.ZeroAddress,
		"payroll":    protocol.PayrollAddress,
		"stealth":    protocol.StealthAddress,
		"scheduler":  protocol.SchedulerAddress,
		"vault":      protocol.VaultAddress,
		"compliance": protocol.ComplianceAddress,
		"pool":       protocol.PoolAddress,
		"asset":      protocol.AssetAddress(opts.AssetSymbol),
		"atoken":     protocol.ATokenAddress(opts.AssetSymbol),
	}
	for _, name := range builtinAliases {
		r.define(name, builtins[name])
	}

	accounts := make([]string, 0, len(s.Accounts))
	for alias := range s.Accounts {
		accounts = append(accounts, alias)
	}
	slices.Sort(accounts)
	for _, alias := range accounts {
		addr, err := types.ParseAddress(s.Accounts[alias])
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", alias, err)
		}
		r.define(alias, addr)
	}

	seed := s.Seed
	if seed == "" {
		seed = DefaultSeed
	}
	for _, name := range s.Keys {
		key, err := sig.DeriveKey([]byte(seed), name)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", name, err)
		}
		r.keys[name] = key
		r.define(name, key.Address())
	}
	return r, nil
}

func (r *Resolver) define(alias string, addr types.Address) {
	r.aliases[alias] = addr
	if _, taken := r.names[addr]; !taken {
		r.names[addr] = alias
	}
}

// Address returns the address behind alias.
func (r *Resolver) Address(alias string) (types.Address, error) {
	addr, ok := r.aliases[alias]
	if !ok {
		return types.Address{}, fmt.Errorf("unknown alias %q", alias)
	}
	return addr, nil
}

// record keeps an applied step's result for "$step.field" references and
// labels the hashes it produced for display.
func (r *Resolver) record(stepID string, result canon.Value) {
	obj, ok := result.(canon.Object)
	if !ok {
		return
	}
	r.results[stepID] = obj
	for _, field := range obj.SortedKeys() {
		if s, ok := obj[field].(canon.String); ok && hashPattern.MatchString(string(s)) {
			r.label(string(s), "#"+stepID+"."+field)
		}
	}
}

func (r *Resolver) label(value, name string) {
	if _, taken := r.labels[value]; !taken {
		r.labels[value] = name
	}
}

// Args resolves a step's argument map.
func (r *Resolver) Args(args map[string]any) (canon.Object, error) {
	obj := make(canon.Object, len(args))
	for k, v := range args {
		val, err := r.Resolve(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

// Resolve converts one YAML value.
func (r *Resolver) Resolve(v any) (canon.Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a permitted value")
	case string:
		return r.resolveString(val)
	case bool:
		return canon.Bool(val), nil
	case int:
		return canon.Int(val), nil
	case int64:
		return canon.Int(val), nil
	case uint64:
		// yaml.v3 only produces uint64 above the int64 range.
		if val > math.MaxInt64 {
			return canon.String(strconv.FormatUint(val, 10)), nil
		}
		return canon.Int(int64(val)), nil
	case float64:
		return nil, fmt.Errorf("floats are not permitted: %v", val)
	case []any:
		arr := make(canon.Array, len(val))
		for i, elem := range val {
			conv, err := r.Resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		if len(val) == 1 {
			for k, inner := range val {
				switch k {
				case "hash_of":
					return r.hashOf(inner)
				case "sign_claim":
					return r.signClaim(inner)
				case "sign_execution":
					return r.signExecution(inner)
				}
			}
		}
		return r.Args(val)
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func (r *Resolver) resolveString(s string) (canon.Value, error) {
	if !strings.HasPrefix(s, "$") {
		return canon.String(s), nil
	}
	ref := s[1:]
	if strings.HasPrefix(ref, "$") {
		return canon.String(ref), nil
	}

	if m := nowPattern.FindStringSubmatch(ref); m != nil {
		now := r.now()
		if m[1] != "" {
			off, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s, err)
			}
			now += off
		}
		return canon.Int(now), nil
	}

	if step, field, ok := strings.Cut(ref, "."); ok {
		res, found := r.results[step]
		if !found {
			return nil, fmt.Errorf("%s: step %q has no result (missing id or rejected)", s, step)
		}
		v, found := res[field]
		if !found {
			return nil, fmt.Errorf("%s: step %q result has no field %q", s, step, field)
		}
		return v, nil
	}

	addr, err := r.Address(ref)
	if err != nil {
		return nil, err
	}
	return canon.Addr(addr), nil
}

func (r *Resolver) hashOf(v any) (canon.Value, error) {
	label, ok := v.(string)
	if !ok || label == "" {
		return nil, fmt.Errorf("hash_of: want a non-empty string label")
	}
	h := canon.H(canon.HashWithDomain(DomainHashOf, []byte(label)))
	r.label(string(h), "#"+label)
	return h, nil
}

// signArgs resolves the argument object of a sign form and returns the
// named key.
func (r *Resolver) signArgs(form string, v any, fields ...string) (*sig.Key, canon.Object, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%s: want a mapping", form)
	}
	name, _ := m["key"].(string)
	key, ok := r.keys[name]
	if !ok {
		return nil, nil, fmt.Errorf("%s: unknown key %q", form, name)
	}
	args := make(canon.Object, len(fields))
	for _, f := range fields {
		raw, ok := m[f]
		if !ok {
			return nil, nil, fmt.Errorf("%s: %s is required", form, f)
		}
		val, err := r.Resolve(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", form, f, err)
		}
		args[f] = val
	}
	if len(m) != len(fields)+1 {
		return nil, nil, fmt.Errorf("%s: want exactly key, %s", form, strings.Join(fields, ", "))
	}
	return key, args, nil
}

func (r *Resolver) signClaim(v any) (canon.Value, error) {
	key, args, err := r.signArgs("sign_claim", v, "payment_id", "recipient")
	if err != nil {
		return nil, err
	}
	id, err := args.Hash("payment_id")
	if err != nil {
		return nil, fmt.Errorf("sign_claim: %w", err)
	}
	to, err := args.Address("recipient")
	if err != nil {
		return nil, fmt.Errorf("sign_claim: %w", err)
	}
	return canon.Bytes(key.Sign(canon.ClaimMessage(id, to, r.chainID))), nil
}

func (r *Resolver) signExecution(v any) (canon.Value, error) {
	key, args, err := r.signArgs("sign_execution", v, "payroll_id", "nonce")
	if err != nil {
		return nil, err
	}
	id, err := args.Hash("payroll_id")
	if err != nil {
		return nil, fmt.Errorf("sign_execution: %w", err)
	}
	nonce, err := args.Hash("nonce")
	if err != nil {
		return nil, fmt.Errorf("sign_execution: %w", err)
	}
	msg := canon.ExecutionMessage(id, nonce, r.chainID, protocol.SchedulerAddress)
	return canon.Bytes(key.Sign(msg)), nil
}
