package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/config"
	"github.com/roach88/flowguard/internal/engine"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
	"github.com/roach88/flowguard/internal/types"
)

// session is a deployment opened from a config file: the protocol rebuilt
// from the call log and an engine ready to append to it.
type session struct {
	cfg    config.Config
	store  *store.Store
	proto  *protocol.Protocol
	engine *engine.Engine
}

// openSession loads the config, opens the call log and replays it into a
// fresh protocol. A log that no longer replays to the same outcomes is an
// ExitFailure; every other problem is an ExitCommandError.
func openSession(ctx context.Context, opts *RootOptions, engineOpts ...engine.Option) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	setupLogging(opts.Verbose, cfg.Level())

	deploy, err := cfg.Options()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	proto, err := protocol.New(deploy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to deploy protocol", err)
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng := engine.New(proto, st, engineOpts...)
	if _, err := eng.Recover(ctx); err != nil {
		st.Close()
		if engine.IsDivergence(err) {
			return nil, WrapExitError(ExitFailure, "call log diverges from current logic", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to recover state", err)
	}

	return &session{cfg: cfg, store: st, proto: proto, engine: eng}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// parseCall builds a call from a method name, a caller address and JSON
// args.
func parseCall(name, as, argsJSON string) (protocol.Call, error) {
	caller, err := parseAddressFlag("as", as)
	if err != nil {
		return protocol.Call{}, err
	}
	args, err := parseArgs(argsJSON)
	if err != nil {
		return protocol.Call{}, err
	}
	call, err := protocol.NewCall(name, caller, args)
	if err != nil {
		return protocol.Call{}, WrapExitError(ExitCommandError, "invalid call", err)
	}
	return call, nil
}

func parseArgs(argsJSON string) (canon.Object, error) {
	var args canon.Object
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}
	return args, nil
}

func parseAddressFlag(flag, value string) (types.Address, error) {
	addr, err := types.ParseAddress(value)
	if err != nil {
		return types.Address{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s", flag), err)
	}
	return addr, nil
}
