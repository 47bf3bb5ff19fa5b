package engine

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// Bank is the custody layer the engine settles against. Pull debits an
// external account into pool custody, Pay credits an external account out of
// it. Both are all-or-nothing; the engine never applies book mutations unless
// every transfer in the operation succeeded.
type Bank interface {
	Pull(from uuid.UUID, amount *big.Int) error
	Pay(to uuid.UUID, amount *big.Int) error
	// Balance reports total pool custody. Used only for conservation checks.
	Balance() *big.Int
}

// MemoryBank is an in-process Bank backed by a map of account balances. It is
// the reference custody implementation used by the daemon and by tests; a
// production deployment would substitute a Bank backed by real settlement.
type MemoryBank struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*big.Int
	custody  *big.Int
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		accounts: make(map[uuid.UUID]*big.Int),
		custody:  new(big.Int),
	}
}

// Credit seeds an external account with funds.
func (b *MemoryBank) Credit(to uuid.UUID, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.accounts[to]
	if !ok {
		bal = new(big.Int)
		b.accounts[to] = bal
	}
	bal.Add(bal, amount)
}

// AccountBalance reports an external account's balance.
func (b *MemoryBank) AccountBalance(of uuid.UUID) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.accounts[of]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

func (b *MemoryBank) Pull(from uuid.UUID, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative pull %s", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.accounts[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("bank: account %s has insufficient funds for pull of %s", from, amount)
	}
	bal.Sub(bal, amount)
	b.custody.Add(b.custody, amount)
	return nil
}

func (b *MemoryBank) Pay(to uuid.UUID, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative payout %s", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.custody.Cmp(amount) < 0 {
		return fmt.Errorf("bank: custody %s cannot cover payout of %s", b.custody, amount)
	}
	b.custody.Sub(b.custody, amount)
	bal, ok := b.accounts[to]
	if !ok {
		bal = new(big.Int)
		b.accounts[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

func (b *MemoryBank) Balance() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.custody)
}
