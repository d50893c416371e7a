package custody

import (
	"math/big"
	"sync"
	"time"
)

// GuardianCount is the fixed size of the guardian set.
const GuardianCount = 5

// DefaultSymbol is the ticker of the wrapped token.
const DefaultSymbol = "wTOMAX"

// Default genesis allocations.
var (
	DefaultInitialCirculating = Tokens(7_000_000)
	DefaultLockedReserve      = Tokens(63_000_000)
)

// Vault is the single aggregate that owns all custody state. Create one
// with New (fresh genesis) or Restore (from a persisted State).
type Vault struct {
	mu sync.Mutex

	clock  Clock
	symbol string

	guardians [GuardianCount]Address
	admin     Address
	paused    bool
	approvals approvalBook

	token   tokenLedger
	vesting schedule

	reserve   *big.Int             // native value held
	wrapped   *big.Int             // outstanding supply minted by Wrap
	backed    map[Address]*big.Int // per-holder share of wrapped, redeemable by Unwrap
	custodied *big.Int             // native value moved to the admin by ExecuteWithdrawal
	native    map[Address]*big.Int

	foreign          map[string]*big.Int
	foreignRecovered map[string]map[Address]*big.Int
}

type config struct {
	clock       Clock
	symbol      string
	circulating *big.Int
	locked      *big.Int
	start       time.Time
}

// Option configures a Vault at construction.
type Option func(*config)

// WithClock injects the time source used by the vesting scheduler.
func WithClock(c Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// WithSymbol overrides the token ticker.
func WithSymbol(symbol string) Option {
	return func(cfg *config) { cfg.symbol = symbol }
}

// WithInitialCirculating overrides the allocation minted to the admin at genesis.
func WithInitialCirculating(amount *big.Int) Option {
	return func(cfg *config) { cfg.circulating = clone(amount) }
}

// WithLockedReserve overrides the vesting reserve locked at genesis.
func WithLockedReserve(amount *big.Int) Option {
	return func(cfg *config) { cfg.locked = clone(amount) }
}

// WithVestingStart sets the time the first release interval counts from.
// Defaults to the clock reading at construction.
func WithVestingStart(t time.Time) Option {
	return func(cfg *config) { cfg.start = t }
}

func buildConfig(opts []Option) config {
	cfg := config{
		clock:       SystemClock{},
		symbol:      DefaultSymbol,
		circulating: clone(DefaultInitialCirculating),
		locked:      clone(DefaultLockedReserve),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// New validates the guardian set and admin and creates a vault at genesis.
// The initial circulating allocation is minted to admin; nothing else is minted.
func New(guardians []Address, admin Address, opts ...Option) (*Vault, error) {
	set, err := validateGuardians(guardians)
	if err != nil {
		return nil, err
	}
	if admin.IsZero() {
		return nil, ErrInvalidAddress
	}
	cfg := buildConfig(opts)
	if cfg.circulating.Sign() < 0 || cfg.locked.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	start := cfg.start
	if start.IsZero() {
		start = cfg.clock.Now()
	}

	v := &Vault{
		clock:            cfg.clock,
		symbol:           cfg.symbol,
		guardians:        set,
		admin:            admin,
		approvals:        newApprovalBook(),
		token:            newTokenLedger(),
		vesting:          newSchedule(cfg.locked, start),
		reserve:          new(big.Int),
		wrapped:          new(big.Int),
		backed:           make(map[Address]*big.Int),
		custodied:        new(big.Int),
		native:           make(map[Address]*big.Int),
		foreign:          make(map[string]*big.Int),
		foreignRecovered: make(map[string]map[Address]*big.Int),
	}
	if cfg.circulating.Sign() > 0 {
		v.token.mint(admin, cfg.circulating)
	}
	return v, nil
}

func validateGuardians(guardians []Address) ([GuardianCount]Address, error) {
	var set [GuardianCount]Address
	if len(guardians) != GuardianCount {
		return set, ErrInvalidComposition
	}
	seen := make(map[Address]struct{}, GuardianCount)
	for i, g := range guardians {
		if g.IsZero() {
			return set, ErrInvalidAddress
		}
		if _, dup := seen[g]; dup {
			return set, ErrDuplicateGuardian
		}
		seen[g] = struct{}{}
		set[i] = g
	}
	return set, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

// Symbol returns the token ticker.
func (v *Vault) Symbol() string { return v.symbol }

// Admin returns the current super administrator.
func (v *Vault) Admin() Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.admin
}

// Guardians returns the guardian set in slot order.
func (v *Vault) Guardians() []Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Address, GuardianCount)
	copy(out, v.guardians[:])
	return out
}

// IsGuardian reports whether a is currently a guardian.
func (v *Vault) IsGuardian(a Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isGuardian(a)
}

// Paused reports the gate state.
func (v *Vault) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// TotalSupply returns the circulating token supply: genesis allocation,
// released tranches and outstanding wrapped tokens.
func (v *Vault) TotalSupply() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.token.total)
}

// BalanceOf returns the token balance of a.
func (v *Vault) BalanceOf(a Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token.balanceOf(a)
}

// Reserve returns the native value currently held by the vault.
func (v *Vault) Reserve() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.reserve)
}

// WrappedSupply returns the outstanding supply issued against deposits.
func (v *Vault) WrappedSupply() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.wrapped)
}

// WrappedBalanceOf returns the part of a's token balance minted by Wrap and
// still redeemable through Unwrap.
func (v *Vault) WrappedBalanceOf(a Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.backed[a])
}

// Custodied returns the native value withdrawn to the admin under quorum.
func (v *Vault) Custodied() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.custodied)
}

// NativeBalance returns the native value paid out of the vault to a.
func (v *Vault) NativeBalance(a Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.native[a])
}

// LockedReserve returns the vesting reserve not yet released.
func (v *Vault) LockedReserve() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.vesting.locked)
}

// Approvals returns how many guardians approved the open cycle for key.
func (v *Vault) Approvals(key RequestKey) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.approvals.count(key)
}

// Approvers returns the guardians who approved the open cycle for key.
func (v *Vault) Approvers(key RequestKey) []Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.approvals.approvers(key)
}

// Schedule reports the vesting progress.
func (v *Vault) Schedule() ScheduleStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vesting.status()
}

// Now returns the vault's clock reading.
func (v *Vault) Now() time.Time { return v.clock.Now() }

// ── Role checks ──────────────────────────────────────────────────────────────

func (v *Vault) isGuardian(a Address) bool {
	if a.IsZero() {
		return false
	}
	for _, g := range v.guardians {
		if g == a {
			return true
		}
	}
	return false
}

func (v *Vault) requireGuardian(caller Address) error {
	if !v.isGuardian(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (v *Vault) requireAdmin(caller Address) error {
	if caller.IsZero() || caller != v.admin {
		return ErrUnauthorized
	}
	return nil
}

func (v *Vault) whenNotPaused() error {
	if v.paused {
		return ErrPaused
	}
	return nil
}
