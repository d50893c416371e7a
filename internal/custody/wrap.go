package custody

import "math/big"

// Wrap deposits amount of the native medium into the reserve and mints the
// same amount of wrapped tokens to the caller.
func (v *Vault) Wrap(caller Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if caller.IsZero() {
		return ErrInvalidAddress
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}

	amt := clone(amount)
	v.reserve.Add(v.reserve, amt)
	v.wrapped.Add(v.wrapped, amt)
	v.token.mint(caller, amt)
	credit(v.backed, caller, amt)
	return nil
}

// Unwrap burns amount of the caller's wrapped tokens and pays the same amount
// of the native medium back out of the reserve. Only tokens the caller minted
// through Wrap are redeemable; genesis and vesting tokens are not backed.
func (v *Vault) Unwrap(caller Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if clone(v.backed[caller]).Cmp(amount) < 0 || v.token.balanceOf(caller).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if v.reserve.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}

	amt := clone(amount)
	v.token.burn(caller, amt)
	debit(v.backed, caller, amt)
	v.wrapped.Sub(v.wrapped, amt)
	v.reserve.Sub(v.reserve, amt)
	credit(v.native, caller, amt)
	return nil
}

// ExecuteWithdrawal moves amount of native value out of the reserve to the
// admin once guardians have approved a withdrawal of exactly that amount.
// It is the only path that moves held value out other than Unwrap.
func (v *Vault) ExecuteWithdrawal(caller Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	key := WithdrawalKey(amount)
	if !v.approvals.hasQuorum(key) {
		return ErrQuorumNotMet
	}
	if v.reserve.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}

	amt := clone(amount)
	v.reserve.Sub(v.reserve, amt)
	v.custodied.Add(v.custodied, amt)
	credit(v.native, v.admin, amt)
	v.approvals.reset(key)
	return nil
}
