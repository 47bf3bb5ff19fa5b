package engine_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"PerpVault/internal/engine"
)

func TestMemoryBankPullAndPay(t *testing.T) {
	bank := engine.NewMemoryBank()
	alice := uuid.New()
	bob := uuid.New()
	bank.Credit(alice, big.NewInt(100))

	if err := bank.Pull(alice, big.NewInt(60)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	wantBig(t, "alice", bank.AccountBalance(alice), big.NewInt(40))
	wantBig(t, "custody", bank.Balance(), big.NewInt(60))

	if err := bank.Pull(alice, big.NewInt(41)); err == nil {
		t.Fatal("overdraft pull must fail")
	}
	if err := bank.Pay(bob, big.NewInt(61)); err == nil {
		t.Fatal("payout beyond custody must fail")
	}

	if err := bank.Pay(bob, big.NewInt(60)); err != nil {
		t.Fatalf("pay: %v", err)
	}
	wantBig(t, "bob", bank.AccountBalance(bob), big.NewInt(60))
	wantBig(t, "custody after payout", bank.Balance(), new(big.Int))
}
