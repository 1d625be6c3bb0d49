// Package access implements the role sets and pause switch each component
// consults before it mutates state.
package access

import (
	"bytes"
	"slices"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Guard holds role membership and the pause flag of one component.
// Every component owns its own Guard; roles granted on one component
// confer nothing on another.
type Guard struct {
	component string
	members   map[types.Role]map[types.Address]struct{}
	paused    bool
}

var _ ledger.Authorizer = (*Guard)(nil)

// New creates a guard for component and grants admin the Admin role plus
// any extra initial roles.
func New(component string, admin types.Address, initial ...types.Role) (*Guard, error) {
	if admin.IsZero() {
		return nil, ledger.ErrZeroAddress.In(component).WithField("admin")
	}
	g := &Guard{
		component: component,
		members:   make(map[types.Role]map[types.Address]struct{}),
	}
	g.add(types.RoleAdmin, admin)
	for _, r := range initial {
		if !r.Valid() {
			return nil, ledger.ErrInvalidArgument.In(component).WithField("role")
		}
		g.add(r, admin)
	}
	return g, nil
}

// Component returns the component this guard protects.
func (g *Guard) Component() string { return g.component }

func (g *Guard) add(role types.Role, account types.Address) bool {
	set, ok := g.members[role]
	if !ok {
		set = make(map[types.Address]struct{})
		g.members[role] = set
	}
	if _, held := set[account]; held {
		return false
	}
	set[account] = struct{}{}
	return true
}

func (g *Guard) remove(role types.Role, account types.Address) bool {
	set := g.members[role]
	if _, held := set[account]; !held {
		return false
	}
	delete(set, account)
	return true
}

// HasRole reports whether account holds role.
func (g *Guard) HasRole(role types.Role, account types.Address) bool {
	_, ok := g.members[role][account]
	return ok
}

// RequireRole returns Unauthorized unless account holds role.
func (g *Guard) RequireRole(role types.Role, account types.Address) error {
	if !g.HasRole(role, account) {
		e := ledger.ErrUnauthorized.In(g.component).WithID(account)
		e.Message = "caller lacks " + role.String()
		return e
	}
	return nil
}

// Paused reports the pause flag.
func (g *Guard) Paused() bool { return g.paused }

// RequireNotPaused returns Paused while the component is paused.
func (g *Guard) RequireNotPaused() error {
	if g.paused {
		return ledger.ErrPaused.In(g.component)
	}
	return nil
}

// Members lists the holders of role ordered by address bytes.
func (g *Guard) Members(role types.Role) []types.Address {
	out := make([]types.Address, 0, len(g.members[role]))
	for a := range g.members[role] {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b types.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}

// Assign grants role to account without checking the caller. The owning
// component uses it after its own authorization, e.g. agent registration.
// It reports whether membership changed; only a change emits RoleGranted.
func (g *Guard) Assign(tx *ledger.Tx, role types.Role, account types.Address) bool {
	if !g.add(role, account) {
		return false
	}
	tx.OnRevert(func() { g.remove(role, account) })
	tx.Emit(g.component, "RoleGranted", canon.Object{
		"role":    canon.String(role.String()),
		"account": canon.Addr(account),
		"sender":  canon.Addr(tx.Caller),
	}, "role", "account", "sender")
	return true
}

// Unassign is the revoking counterpart of Assign.
func (g *Guard) Unassign(tx *ledger.Tx, role types.Role, account types.Address) bool {
	if !g.remove(role, account) {
		return false
	}
	tx.OnRevert(func() { g.add(role, account) })
	tx.Emit(g.component, "RoleRevoked", canon.Object{
		"role":    canon.String(role.String()),
		"account": canon.Addr(account),
		"sender":  canon.Addr(tx.Caller),
	}, "role", "account", "sender")
	return true
}

// GrantRole gives account the role. The caller must be Admin. Granting a
// held role is a no-op.
func (g *Guard) GrantRole(tx *ledger.Tx, role types.Role, account types.Address) error {
	if err := g.check(tx, role, account); err != nil {
		return err
	}
	g.Assign(tx, role, account)
	return nil
}

// RevokeRole removes the role from account. The caller must be Admin.
// Revoking an unheld role is a no-op; revoking the only Admin is rejected.
func (g *Guard) RevokeRole(tx *ledger.Tx, role types.Role, account types.Address) error {
	if err := g.check(tx, role, account); err != nil {
		return err
	}
	if role == types.RoleAdmin && g.HasRole(role, account) && len(g.members[role]) == 1 {
		return ledger.ErrLastAdmin.In(g.component).WithID(account)
	}
	g.Unassign(tx, role, account)
	return nil
}

func (g *Guard) check(tx *ledger.Tx, role types.Role, account types.Address) error {
	if err := g.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if !role.Valid() {
		return ledger.ErrInvalidArgument.In(g.component).WithField("role")
	}
	if account.IsZero() {
		return ledger.ErrZeroAddress.In(g.component).WithField("account")
	}
	return nil
}

// Pause halts the gated operations of the component. Admin only.
func (g *Guard) Pause(tx *ledger.Tx) error {
	if err := g.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if g.paused {
		return ledger.ErrPaused.In(g.component)
	}
	g.setPaused(tx, true)
	return nil
}

// Unpause resumes the component. Admin only.
func (g *Guard) Unpause(tx *ledger.Tx) error {
	if err := g.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if !g.paused {
		return ledger.ErrNotPaused.In(g.component)
	}
	g.setPaused(tx, false)
	return nil
}

func (g *Guard) setPaused(tx *ledger.Tx, paused bool) {
	g.paused = paused
	tx.OnRevert(func() { g.paused = !paused })
	name := "Unpaused"
	if paused {
		name = "Paused"
	}
	tx.Emit(g.component, name, canon.Object{"account": canon.Addr(tx.Caller)}, "account")
}
