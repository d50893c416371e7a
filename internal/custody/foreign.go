package custody

import (
	"math/big"
	"strings"
)

// DepositForeign records amount of a foreign asset arriving at the vault.
// Foreign assets are not part of the reserve and back nothing.
func (v *Vault) DepositForeign(asset string, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	asset, err := v.foreignRef(asset)
	if err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	held, ok := v.foreign[asset]
	if !ok {
		held = new(big.Int)
		v.foreign[asset] = held
	}
	held.Add(held, amount)
	return nil
}

// RecoverForeignAsset sends amount of a foreign asset held by the vault to
// the recipient. Admin only.
func (v *Vault) RecoverForeignAsset(caller Address, asset string, to Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return err
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	asset, err := v.foreignRef(asset)
	if err != nil {
		return err
	}
	if to.IsZero() {
		return ErrInvalidAddress
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	held := v.foreign[asset]
	if held == nil || held.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	held.Sub(held, amount)
	if held.Sign() == 0 {
		delete(v.foreign, asset)
	}
	recipients, ok := v.foreignRecovered[asset]
	if !ok {
		recipients = make(map[Address]*big.Int)
		v.foreignRecovered[asset] = recipients
	}
	credit(recipients, to, clone(amount))
	return nil
}

// ForeignHeld returns the vault's holding of asset.
func (v *Vault) ForeignHeld(asset string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.foreign[strings.ToLower(strings.TrimSpace(asset))])
}

// ForeignBalance returns how much of asset has been recovered to holder.
func (v *Vault) ForeignBalance(asset string, holder Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.foreignRecovered[strings.ToLower(strings.TrimSpace(asset))][holder])
}

// foreignRef normalises an asset reference and rejects the vault's own token.
func (v *Vault) foreignRef(asset string) (string, error) {
	ref := strings.ToLower(strings.TrimSpace(asset))
	if ref == "" || ref == strings.ToLower(v.symbol) {
		return "", ErrInvalidAsset
	}
	return ref, nil
}
