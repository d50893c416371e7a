package custody

import "math/big"

// ApproveRequest records the caller's approval for a plain action cycle
// (releaseTokens, changeSuperAdmin, pause, unpause). It returns the number
// of approvals the cycle holds afterwards.
func (v *Vault) ApproveRequest(caller Address, tag string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	kind, ok := KindFromTag(tag)
	if !ok || kind == KindWithdrawal || kind == KindOwnerChange {
		return 0, ErrNotFound
	}
	return v.approve(caller, ActionKey(kind))
}

// ApproveWithdrawalRequest records the caller's approval for withdrawing
// exactly amount from the reserve.
func (v *Vault) ApproveWithdrawalRequest(caller Address, tag string, amount *big.Int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tag != TagWithdrawal {
		return 0, ErrNotFound
	}
	if !positive(amount) {
		return 0, ErrInvalidAmount
	}
	return v.approve(caller, WithdrawalKey(amount))
}

// ApproveOwnerChange records the caller's approval for replacing guardian
// outgoing with incoming.
func (v *Vault) ApproveOwnerChange(caller Address, tag string, outgoing, incoming Address) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tag != TagOwnerChange {
		return 0, ErrNotFound
	}
	return v.approve(caller, OwnerChangeKey(outgoing, incoming))
}

// approve is shared by the three approval entry points. While paused only
// the unpause cycle accepts votes.
func (v *Vault) approve(caller Address, key RequestKey) (int, error) {
	if key.Kind != KindUnpause {
		if err := v.whenNotPaused(); err != nil {
			return 0, err
		}
	}
	if err := v.requireGuardian(caller); err != nil {
		return 0, err
	}
	return v.approvals.approve(key, caller)
}

// ChangeAdmin replaces the super administrator. It is executed by a
// guardian, never by the admin being replaced.
func (v *Vault) ChangeAdmin(caller, newAdmin Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if err := v.requireGuardian(caller); err != nil {
		return err
	}
	if newAdmin.IsZero() {
		return ErrInvalidAddress
	}
	key := ActionKey(KindChangeAdmin)
	if !v.approvals.hasQuorum(key) {
		return ErrQuorumNotMet
	}

	v.admin = newAdmin
	v.approvals.reset(key)
	return nil
}

// ChangeOwner swaps guardian outgoing for incoming after the exact pair has
// reached quorum. Either a guardian or the admin may execute it.
func (v *Vault) ChangeOwner(caller, outgoing, incoming Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if !v.isGuardian(caller) && v.requireAdmin(caller) != nil {
		return ErrUnauthorized
	}
	if incoming.IsZero() {
		return ErrInvalidAddress
	}
	key := OwnerChangeKey(outgoing, incoming)
	if !v.approvals.hasQuorum(key) {
		return ErrQuorumNotMet
	}
	slot := v.slotOf(outgoing)
	if slot < 0 {
		return ErrNotFound
	}
	if v.isGuardian(incoming) {
		return ErrDuplicateGuardian
	}

	next := v.guardians
	next[slot] = incoming
	if _, err := validateGuardians(next[:]); err != nil {
		return err
	}
	v.guardians = next
	v.approvals.reset(key)
	v.approvals.forget(outgoing)
	return nil
}

func (v *Vault) slotOf(a Address) int {
	if a.IsZero() {
		return -1
	}
	for i, g := range v.guardians {
		if g == a {
			return i
		}
	}
	return -1
}

// Pause closes the gate.
func (v *Vault) Pause(caller Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	key := ActionKey(KindPause)
	if !v.approvals.hasQuorum(key) {
		return ErrQuorumNotMet
	}

	v.paused = true
	v.approvals.reset(key)
	return nil
}

// Unpause reopens the gate. It is the only execution path that works while
// the vault is paused.
func (v *Vault) Unpause(caller Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if !v.paused {
		return ErrNotPaused
	}
	key := ActionKey(KindUnpause)
	if !v.approvals.hasQuorum(key) {
		return ErrQuorumNotMet
	}

	v.paused = false
	v.approvals.reset(key)
	return nil
}
