package custody

import (
	"fmt"
	"math/big"
	"sort"
	"time"
)

// State is a self-contained, JSON-serialisable copy of a Vault. Stores
// persist it after every committed call.
type State struct {
	Symbol           string                          `json:"symbol"`
	Guardians        []Address                       `json:"guardians"`
	Admin            Address                         `json:"admin"`
	Paused           bool                            `json:"paused"`
	Approvals        []Cycle                         `json:"approvals"`
	Balances         map[Address]*big.Int            `json:"balances"`
	TotalSupply      *big.Int                        `json:"total_supply"`
	Reserve          *big.Int                        `json:"reserve"`
	Wrapped          *big.Int                        `json:"wrapped"`
	WrappedBalances  map[Address]*big.Int            `json:"wrapped_balances"`
	Custodied        *big.Int                        `json:"custodied"`
	Native           map[Address]*big.Int            `json:"native"`
	LockedReserve    *big.Int                        `json:"locked_reserve"`
	TranchesReleased int                             `json:"tranches_released"`
	LastRelease      time.Time                       `json:"last_release"`
	Foreign          map[string]*big.Int             `json:"foreign"`
	ForeignRecovered map[string]map[Address]*big.Int `json:"foreign_recovered"`
}

// Cycle is one open approval cycle.
type Cycle struct {
	Key              RequestKey                      `json:"key"`
	Approvers        []Address                       `json:"approvers"`
}

// Snapshot copies the whole vault state.
func (v *Vault) Snapshot() *State {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := &State{
		Symbol:           v.symbol,
		Guardians:        append([]Address(nil), v.guardians[:]...),
		Admin:            v.admin,
		Paused:           v.paused,
		Balances:         cloneBalances(v.token.balances),
		TotalSupply:      clone(v.token.total),
		Reserve:          clone(v.reserve),
		Wrapped:          clone(v.wrapped),
		WrappedBalances:  cloneBalances(v.backed),
		Custodied:        clone(v.custodied),
		Native:           cloneBalances(v.native),
		LockedReserve:    clone(v.vesting.locked),
		TranchesReleased: v.vesting.released,
		LastRelease:      v.vesting.lastRelease,
		Foreign:          make(map[string]*big.Int, len(v.foreign)),
		ForeignRecovered: make(map[string]map[Address]*big.Int, len(v.foreignRecovered)),
	}
	for _, key := range v.approvals.keys() {
		s.Approvals = append(s.Approvals, Cycle{Key: key, Approvers: v.approvals.approvers(key)})
	}
	for asset, held := range v.foreign {
		s.Foreign[asset] = clone(held)
	}
	for asset, recipients := range v.foreignRecovered {
		s.ForeignRecovered[asset] = cloneBalances(recipients)
	}
	return s
}

// Restore rebuilds a Vault from a persisted State after checking its
// invariants. Only WithClock is honoured among opts; allocations come from
// the state itself.
func Restore(s *State, opts ...Option) (*Vault, error) {
	if s == nil {
		return nil, fmt.Errorf("restore: nil state")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	cfg := buildConfig(opts)
	set, _ := validateGuardians(s.Guardians)

	v := &Vault{
		clock:     cfg.clock,
		symbol:    s.Symbol,
		guardians: set,
		admin:     s.Admin,
		paused:    s.Paused,
		approvals: newApprovalBook(),
		token:     newTokenLedger(),
		vesting: schedule{
			locked:      clone(s.LockedReserve),
			released:    s.TranchesReleased,
			lastRelease: s.LastRelease,
		},
		reserve:          clone(s.Reserve),
		wrapped:          clone(s.Wrapped),
		backed:           cloneBalances(s.WrappedBalances),
		custodied:        clone(s.Custodied),
		native:           cloneBalances(s.Native),
		foreign:          make(map[string]*big.Int),
		foreignRecovered: make(map[string]map[Address]*big.Int),
	}
	if v.symbol == "" {
		v.symbol = DefaultSymbol
	}
	for _, c := range s.Approvals {
		for _, a := range c.Approvers {
			if _, err := v.approvals.approve(c.Key, a); err != nil {
				return nil, fmt.Errorf("restore: cycle %s: %w", c.Key.Kind, err)
			}
		}
	}
	for a, bal := range s.Balances {
		if bal != nil && bal.Sign() > 0 {
			v.token.mint(a, bal)
		}
	}
	for asset, held := range s.Foreign {
		v.foreign[asset] = clone(held)
	}
	for asset, recipients := range s.ForeignRecovered {
		v.foreignRecovered[asset] = cloneBalances(recipients)
	}
	return v, nil
}

// RestoreFrom replaces v's state in place. It is used to roll a vault back
// when a committed call could not be persisted.
func (v *Vault) RestoreFrom(s *State) error {
	fresh, err := Restore(s, WithClock(v.clock))
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.symbol = fresh.symbol
	v.guardians = fresh.guardians
	v.admin = fresh.admin
	v.paused = fresh.paused
	v.approvals = fresh.approvals
	v.token = fresh.token
	v.vesting = fresh.vesting
	v.reserve = fresh.reserve
	v.wrapped = fresh.wrapped
	v.backed = fresh.backed
	v.custodied = fresh.custodied
	v.native = fresh.native
	v.foreign = fresh.foreign
	v.foreignRecovered = fresh.foreignRecovered
	return nil
}

// Validate checks the structural and accounting invariants of s.
func (s *State) Validate() error {
	if _, err := validateGuardians(s.Guardians); err != nil {
		return err
	}
	if s.Admin.IsZero() {
		return ErrInvalidAddress
	}
	if s.TranchesReleased < 0 || s.TranchesReleased > MaxTranches {
		return fmt.Errorf("tranches released %d out of range", s.TranchesReleased)
	}
	for name, n := range map[string]*big.Int{
		"reserve": s.Reserve, "wrapped": s.Wrapped, "custodied": s.Custodied,
		"locked reserve": s.LockedReserve, "total supply": s.TotalSupply,
	} {
		if n == nil || n.Sign() < 0 {
			return fmt.Errorf("%s must be a non-negative amount", name)
		}
	}
	backing := new(big.Int).Add(s.Reserve, s.Custodied)
	if backing.Cmp(s.Wrapped) != 0 {
		return fmt.Errorf("reserve %s + custodied %s != wrapped supply %s", s.Reserve, s.Custodied, s.Wrapped)
	}
	sum := new(big.Int)
	for _, bal := range s.Balances {
		if bal != nil {
			sum.Add(sum, bal)
		}
	}
	if sum.Cmp(s.TotalSupply) != 0 {
		return fmt.Errorf("balances sum %s != total supply %s", sum, s.TotalSupply)
	}
	backed := new(big.Int)
	for a, w := range s.WrappedBalances {
		if w == nil || w.Sign() < 0 {
			return fmt.Errorf("wrapped balance of %s must be a non-negative amount", a)
		}
		if w.Cmp(clone(s.Balances[a])) > 0 {
			return fmt.Errorf("wrapped balance %s of %s exceeds token balance", w, a)
		}
		backed.Add(backed, w)
	}
	if backed.Cmp(s.Wrapped) != 0 {
		return fmt.Errorf("wrapped balances sum %s != wrapped supply %s", backed, s.Wrapped)
	}
	for _, c := range s.Approvals {
		seen := make(map[Address]struct{}, len(c.Approvers))
		for _, a := range c.Approvers {
			if _, dup := seen[a]; dup {
				return fmt.Errorf("cycle %s: %w", c.Key.Kind, ErrAlreadyApproved)
			}
			seen[a] = struct{}{}
		}
	}
	return nil
}

// CheckInvariants validates the live vault. Tests call it after every step.
func (v *Vault) CheckInvariants() error {
	return v.Snapshot().Validate()
}

// Holders lists every address with a non-zero token balance, sorted.
func (s *State) Holders() []Address {
	out := make([]Address, 0, len(s.Balances))
	for a, bal := range s.Balances {
		if bal != nil && bal.Sign() > 0 {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func cloneBalances(m map[Address]*big.Int) map[Address]*big.Int {
	out := make(map[Address]*big.Int, len(m))
	for a, bal := range m {
		out[a] = clone(bal)
	}
	return out
}
