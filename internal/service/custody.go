package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/jmerrifield20/wtomax/internal/audit"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/store"
	"go.uber.org/zap"
)

// ErrPersist is returned when a call succeeded against the vault but the
// resulting state could not be saved. The vault has been rolled back.
var ErrPersist = errors.New("vault state could not be persisted")

// Status is a point-in-time view of the vault.
type Status struct {
	Symbol        string                 `json:"symbol"`
	Admin         custody.Address        `json:"admin"`
	Guardians     []custody.Address      `json:"guardians"`
	Paused        bool                   `json:"paused"`
	TotalSupply   *big.Int               `json:"total_supply"`
	WrappedSupply *big.Int               `json:"wrapped_supply"`
	Reserve       *big.Int               `json:"reserve"`
	Custodied     *big.Int               `json:"custodied"`
	Schedule      custody.ScheduleStatus `json:"schedule"`
}

// Observer is notified after every mutating call. Implementations must not
// call back into the service.
type Observer interface {
	ActionCommitted(action string, status Status)
	ActionFailed(action string, err error)
}

// CustodyService serialises calls into the vault, persists the state after
// every committed call and records each one in the audit log.
type CustodyService struct {
	mu        sync.Mutex
	vault     *custody.Vault
	store     store.StateStore // nil = no persistence
	ledger    audit.Log        // nil = no audit writes
	observers []Observer
	logger    *zap.Logger
}

// NewCustodyService wraps vault. st and ledger may each be nil.
func NewCustodyService(vault *custody.Vault, st store.StateStore, ledger audit.Log, logger *zap.Logger) *CustodyService {
	return &CustodyService{vault: vault, store: st, ledger: ledger, logger: logger}
}

// AddObserver registers o for commit and failure notifications.
func (s *CustodyService) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Bootstrap restores the vault from st, or creates it with fresh and saves
// the genesis state when st is empty.
func Bootstrap(ctx context.Context, st store.StateStore, fresh func() (*custody.Vault, error), opts ...custody.Option) (*custody.Vault, bool, error) {
	state, err := st.Load(ctx)
	switch {
	case err == nil:
		v, err := custody.Restore(state, opts...)
		if err != nil {
			return nil, false, fmt.Errorf("restore saved state: %w", err)
		}
		return v, false, nil
	case errors.Is(err, store.ErrNoState):
		v, err := fresh()
		if err != nil {
			return nil, false, fmt.Errorf("create vault: %w", err)
		}
		if err := st.Save(ctx, v.Snapshot()); err != nil {
			return nil, false, fmt.Errorf("save genesis state: %w", err)
		}
		return v, true, nil
	default:
		return nil, false, err
	}
}

// ── Queries ──────────────────────────────────────────────────────────────────

// Status returns the current vault overview.
func (s *CustodyService) Status() Status {
	return Status{
		Symbol:        s.vault.Symbol(),
		Admin:         s.vault.Admin(),
		Guardians:     s.vault.Guardians(),
		Paused:        s.vault.Paused(),
		TotalSupply:   s.vault.TotalSupply(),
		WrappedSupply: s.vault.WrappedSupply(),
		Reserve:       s.vault.Reserve(),
		Custodied:     s.vault.Custodied(),
		Schedule:      s.vault.Schedule(),
	}
}

// Balance returns the token balance and native payouts of a.
func (s *CustodyService) Balance(a custody.Address) (token, native *big.Int) {
	return s.vault.BalanceOf(a), s.vault.NativeBalance(a)
}

// WrappedBalance returns the part of a's balance redeemable through unwrap.
func (s *CustodyService) WrappedBalance(a custody.Address) *big.Int {
	return s.vault.WrappedBalanceOf(a)
}

// IsGuardian reports whether a currently holds a guardian slot.
func (s *CustodyService) IsGuardian(a custody.Address) bool { return s.vault.IsGuardian(a) }

// Approvals returns the approvers of the open cycle for key.
func (s *CustodyService) Approvals(key custody.RequestKey) []custody.Address {
	return s.vault.Approvers(key)
}

// Foreign returns the vault's holding of asset and, when holder is non-zero,
// the amount already recovered to holder.
func (s *CustodyService) Foreign(asset string, holder custody.Address) (held, recovered *big.Int) {
	held = s.vault.ForeignHeld(asset)
	recovered = new(big.Int)
	if !holder.IsZero() {
		recovered = s.vault.ForeignBalance(asset, holder)
	}
	return held, recovered
}

// ── Health checks ────────────────────────────────────────────────────────────

// CheckInvariants re-validates the live vault's accounting.
func (s *CustodyService) CheckInvariants(context.Context) error {
	return s.vault.CheckInvariants()
}

// CheckStore loads the persisted state and compares it with the live vault.
// A mismatch means another writer touched the store. Services without a
// store always pass.
func (s *CustodyService) CheckStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoState) {
			return nil
		}
		return fmt.Errorf("load state: %w", err)
	}
	fields, err := diffStates(persisted, s.vault.Snapshot())
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		return fmt.Errorf("persisted state diverges from live vault: %s", strings.Join(fields, ", "))
	}
	return nil
}

// diffStates returns the JSON field names whose encodings differ.
func diffStates(a, b *custody.State) ([]string, error) {
	left, err := stateFields(a)
	if err != nil {
		return nil, err
	}
	right, err := stateFields(b)
	if err != nil {
		return nil, err
	}
	var out []string
	for name, l := range left {
		if !bytes.Equal(l, right[name]) {
			out = append(out, name)
		}
	}
	for name := range right {
		if _, ok := left[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func stateFields(st *custody.State) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return fields, nil
}

// ── Mutations ────────────────────────────────────────────────────────────────

// ApproveRequest records a guardian vote on a plain action cycle.
func (s *CustodyService) ApproveRequest(ctx context.Context, caller custody.Address, tag string) (int, error) {
	var n int
	err := s.commit(ctx, "approve", tag, caller, map[string]string{"tag": tag}, func() (err error) {
		n, err = s.vault.ApproveRequest(caller, tag)
		return err
	})
	return n, err
}

// ApproveWithdrawal records a guardian vote on withdrawing exactly amount.
func (s *CustodyService) ApproveWithdrawal(ctx context.Context, caller custody.Address, tag string, amount *big.Int) (int, error) {
	var n int
	payload := map[string]string{"tag": tag, "amount": amountString(amount)}
	err := s.commit(ctx, "approve", tag, caller, payload, func() (err error) {
		n, err = s.vault.ApproveWithdrawalRequest(caller, tag, amount)
		return err
	})
	return n, err
}

// ApproveOwnerChange records a guardian vote on replacing outgoing with incoming.
func (s *CustodyService) ApproveOwnerChange(ctx context.Context, caller custody.Address, tag string, outgoing, incoming custody.Address) (int, error) {
	var n int
	payload := map[string]string{"tag": tag, "outgoing": outgoing.String(), "incoming": incoming.String()}
	err := s.commit(ctx, "approve", tag, caller, payload, func() (err error) {
		n, err = s.vault.ApproveOwnerChange(caller, tag, outgoing, incoming)
		return err
	})
	return n, err
}

// Release mints the next vesting tranche to the admin.
func (s *CustodyService) Release(ctx context.Context, caller custody.Address) (*big.Int, error) {
	var tranche *big.Int
	err := s.commit(ctx, "release", custody.TagRelease, caller, nil, func() (err error) {
		tranche, err = s.vault.Release(caller)
		return err
	})
	return tranche, err
}

// ChangeAdmin replaces the super administrator.
func (s *CustodyService) ChangeAdmin(ctx context.Context, caller, newAdmin custody.Address) error {
	return s.commit(ctx, "change_admin", newAdmin.String(), caller, map[string]string{"new_admin": newAdmin.String()}, func() error {
		return s.vault.ChangeAdmin(caller, newAdmin)
	})
}

// ChangeOwner swaps one guardian for another.
func (s *CustodyService) ChangeOwner(ctx context.Context, caller, outgoing, incoming custody.Address) error {
	payload := map[string]string{"outgoing": outgoing.String(), "incoming": incoming.String()}
	return s.commit(ctx, "change_owner", incoming.String(), caller, payload, func() error {
		return s.vault.ChangeOwner(caller, outgoing, incoming)
	})
}

// Pause closes the gate.
func (s *CustodyService) Pause(ctx context.Context, caller custody.Address) error {
	return s.commit(ctx, "pause", custody.TagPause, caller, nil, func() error {
		return s.vault.Pause(caller)
	})
}

// Unpause reopens the gate.
func (s *CustodyService) Unpause(ctx context.Context, caller custody.Address) error {
	return s.commit(ctx, "unpause", custody.TagUnpause, caller, nil, func() error {
		return s.vault.Unpause(caller)
	})
}

// Wrap deposits native value and mints tokens to caller.
func (s *CustodyService) Wrap(ctx context.Context, caller custody.Address, amount *big.Int) error {
	return s.commit(ctx, "wrap", caller.String(), caller, map[string]string{"amount": amountString(amount)}, func() error {
		return s.vault.Wrap(caller, amount)
	})
}

// Unwrap burns caller's tokens and pays native value back.
func (s *CustodyService) Unwrap(ctx context.Context, caller custody.Address, amount *big.Int) error {
	return s.commit(ctx, "unwrap", caller.String(), caller, map[string]string{"amount": amountString(amount)}, func() error {
		return s.vault.Unwrap(caller, amount)
	})
}

// Withdraw executes a quorum-approved custodial withdrawal to the admin.
func (s *CustodyService) Withdraw(ctx context.Context, caller custody.Address, amount *big.Int) error {
	return s.commit(ctx, "withdraw", custody.TagWithdrawal, caller, map[string]string{"amount": amountString(amount)}, func() error {
		return s.vault.ExecuteWithdrawal(caller, amount)
	})
}

// RecoverForeign sends a foreign asset held by the vault to a recipient.
func (s *CustodyService) RecoverForeign(ctx context.Context, caller custody.Address, asset string, to custody.Address, amount *big.Int) error {
	payload := map[string]string{"asset": asset, "to": to.String(), "amount": amountString(amount)}
	return s.commit(ctx, "recover_foreign", asset, caller, payload, func() error {
		return s.vault.RecoverForeignAsset(caller, asset, to, amount)
	})
}

// DepositForeign records a foreign asset transfer into the vault.
func (s *CustodyService) DepositForeign(ctx context.Context, caller custody.Address, asset string, amount *big.Int) error {
	return s.commit(ctx, "deposit_foreign", asset, caller, map[string]string{"amount": amountString(amount)}, func() error {
		return s.vault.DepositForeign(asset, amount)
	})
}

// commit runs fn against the vault and makes its effect durable. A failed
// save rolls the vault back to the state before fn, so callers observe
// either the full effect or none of it.
func (s *CustodyService) commit(ctx context.Context, action, subject string, caller custody.Address, payload any, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var before *custody.State
	if s.store != nil {
		before = s.vault.Snapshot()
	}

	if err := fn(); err != nil {
		s.notifyFailed(action, err)
		return err
	}

	if s.store != nil {
		if err := s.store.Save(ctx, s.vault.Snapshot()); err != nil {
			s.logger.Error("persist vault state failed, rolling back",
				zap.String("action", action),
				zap.Error(err),
			)
			if rbErr := s.vault.RestoreFrom(before); rbErr != nil {
				s.logger.Error("rollback failed", zap.String("action", action), zap.Error(rbErr))
			}
			err = fmt.Errorf("%w: %v", ErrPersist, err)
			s.notifyFailed(action, err)
			return err
		}
	}

	s.appendAudit(ctx, action, subject, caller.String(), payload)
	s.logger.Info("vault action committed",
		zap.String("action", action),
		zap.String("subject", subject),
		zap.String("caller", caller.String()),
	)
	status := s.Status()
	for _, o := range s.observers {
		o.ActionCommitted(action, status)
	}
	return nil
}

func (s *CustodyService) notifyFailed(action string, err error) {
	s.logger.Debug("vault action rejected", zap.String("action", action), zap.Error(err))
	for _, o := range s.observers {
		o.ActionFailed(action, err)
	}
}

// appendAudit appends an audit entry in a non-fatal manner.
func (s *CustodyService) appendAudit(ctx context.Context, action, subject, actor string, payload any) {
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.Append(ctx, action, subject, actor, payload); err != nil {
		s.logger.Error("audit append failed (non-fatal)",
			zap.String("action", action),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

func amountString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
