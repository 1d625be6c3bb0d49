// Package config loads flowguard.yaml and validates it against an embedded
// CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/flowguard/internal/pool"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/types"
)

//go:embed schema.cue
var schemaCUE string

// DefaultPath is the config file name looked up in the working directory.
const DefaultPath = "flowguard.yaml"

// Config is the contents of flowguard.yaml. The json tags name the fields
// for CUE validation; the yaml tags for the file.
type Config struct {
	ChainID  uint64 `json:"chain_id" yaml:"chain_id"`
	Database string `json:"database" yaml:"database"`
	Admin    string `json:"admin" yaml:"admin"`
	// Genesis is the ledger time the pool accrues from. Fixed at init so
	// replays of the same log agree.
	Genesis  int64  `json:"genesis" yaml:"genesis"`
	Asset    Asset  `json:"asset" yaml:"asset"`
	Pool     Pool   `json:"pool" yaml:"pool"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Asset configures the distributed token.
type Asset struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// Pool configures the yield pool.
type Pool struct {
	// LiquidityRateRay is the initial supply rate, 1e27 = 100% per year.
	LiquidityRateRay string `json:"liquidity_rate_ray" yaml:"liquidity_rate_ray"`
}

// Default returns the configuration used for unset fields. Admin has no
// default and must be provided.
func Default() Config {
	return Config{
		ChainID:  137,
		Database: "flowguard.db",
		Asset:    Asset{Symbol: "USDC", Decimals: 6},
		Pool:     Pool{LiquidityRateRay: "0"},
		LogLevel: "info",
	}
}

// Error is a validation failure with the offending field and, when CUE
// reports one, a source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write encodes cfg as YAML to path. Existing files are not overwritten.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}

// Validate unifies cfg with the #Config schema and requires every field
// to be concrete.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// Options converts the config into protocol deployment options.
func (c Config) Options() (protocol.Options, error) {
	admin, err := types.ParseAddress(c.Admin)
	if err != nil {
		return protocol.Options{}, &Error{Field: "admin", Message: err.Error()}
	}
	rate, err := pool.ParseRay(c.Pool.LiquidityRateRay)
	if err != nil {
		return protocol.Options{}, &Error{Field: "pool.liquidity_rate_ray", Message: err.Error()}
	}
	return protocol.Options{
		ChainID:       c.ChainID,
		Admin:         admin,
		AssetSymbol:   c.Asset.Symbol,
		AssetDecimals: c.Asset.Decimals,
		LiquidityRate: rate,
		Genesis:       c.Genesis,
	}, nil
}

// Level maps log_level to a slog level. Unknown values mean info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatCUEError reports the first CUE error with the field path it
// concerns.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "config"
	path := first.Path()
	if len(path) > 0 && path[0] == "#Config" {
		path = path[1:]
	}
	if len(path) > 0 {
		field = strings.Join(path, ".")
	}
	format, args := first.Msg()
	e := &Error{Field: field, Message: fmt.Sprintf(format, args...)}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
