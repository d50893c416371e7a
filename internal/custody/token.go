package custody

import "math/big"

// tokenLedger is the fungible balance book behind wTOMAX.
type tokenLedger struct {
	balances map[Address]*big.Int
	total    *big.Int
}

func newTokenLedger() tokenLedger {
	return tokenLedger{balances: make(map[Address]*big.Int), total: new(big.Int)}
}

func (t *tokenLedger) balanceOf(a Address) *big.Int {
	return clone(t.balances[a])
}

func (t *tokenLedger) mint(to Address, amount *big.Int) {
	bal, ok := t.balances[to]
	if !ok {
		bal = new(big.Int)
		t.balances[to] = bal
	}
	bal.Add(bal, amount)
	t.total.Add(t.total, amount)
}

// burn assumes the caller has already checked the balance.
func (t *tokenLedger) burn(from Address, amount *big.Int) {
	bal := t.balances[from]
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(t.balances, from)
	}
	t.total.Sub(t.total, amount)
}

// credit adds amount to a plain balance map, creating the entry if needed.
func credit(m map[Address]*big.Int, to Address, amount *big.Int) {
	bal, ok := m[to]
	if !ok {
		bal = new(big.Int)
		m[to] = bal
	}
	bal.Add(bal, amount)
}

// debit subtracts amount from a plain balance map, dropping emptied entries.
// The caller checks the balance first.
func debit(m map[Address]*big.Int, from Address, amount *big.Int) {
	bal := m[from]
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(m, from)
	}
}
