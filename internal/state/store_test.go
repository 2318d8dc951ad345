package state

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/kv"
)

func newTestStore() *Store {
	store := kv.NewAdapter(dbm.NewMemDB())
	return New(store, field.NewMiMCHasher(), 8, 8, 8)
}

func TestStore_RegisterAndTransfer(t *testing.T) {
	s := newTestStore()

	if _, err := s.RegisterUser(1, 0, [4]uint64{1, 2, 3, 4}); err != nil {
		t.Fatalf("RegisterUser sender: %v", err)
	}
	if _, err := s.RegisterUser(1, 1, [4]uint64{5, 6, 7, 8}); err != nil {
		t.Fatalf("RegisterUser recipient: %v", err)
	}

	// credit the sender via a deposit claim so the transfer below has funds.
	txid := Hash256{}
	if _, _, err := s.AddDeposit(1, 0, 10*DepositFee, txid, [33]byte{}); err != nil {
		t.Fatalf("AddDeposit: %v", err)
	}
	if _, _, _, err := s.ClaimDeposit(1, 0, 0); err != nil {
		t.Fatalf("ClaimDeposit: %v", err)
	}

	sender, err := s.GetUser(1, 0)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if sender.Balance != 9*DepositFee {
		t.Fatalf("expected sender balance %d, got %d", 9*DepositFee, sender.Balance)
	}

	if _, _, err := s.Transfer(1, 0, 1, DepositFee, 0); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	senderAfter, err := s.GetUser(1, 0)
	if err != nil {
		t.Fatalf("GetUser sender: %v", err)
	}
	if senderAfter.Nonce != 1 {
		t.Fatalf("expected sender nonce 1, got %d", senderAfter.Nonce)
	}
	if senderAfter.Balance != 8*DepositFee {
		t.Fatalf("expected sender balance %d, got %d", 8*DepositFee, senderAfter.Balance)
	}

	recipient, err := s.GetUser(1, 1)
	if err != nil {
		t.Fatalf("GetUser recipient: %v", err)
	}
	if recipient.Balance != DepositFee {
		t.Fatalf("expected recipient balance %d, got %d", DepositFee, recipient.Balance)
	}

	// a stale nonce must be rejected without mutating balances.
	if _, _, err := s.Transfer(1, 0, 1, 1, 0); err != ErrNonceMismatch {
		t.Fatalf("expected ErrNonceMismatch, got %v", err)
	}
}

func TestStore_ClaimDepositTwiceFails(t *testing.T) {
	s := newTestStore()
	if _, err := s.RegisterUser(1, 0, [4]uint64{}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	txid := Hash256{1, 2, 3}
	if _, _, err := s.AddDeposit(1, 0, 10*DepositFee, txid, [33]byte{}); err != nil {
		t.Fatalf("AddDeposit: %v", err)
	}
	if _, _, _, err := s.ClaimDeposit(1, 0, 0); err != nil {
		t.Fatalf("first ClaimDeposit: %v", err)
	}
	if _, _, _, err := s.ClaimDeposit(1, 0, 0); err != ErrDepositAlreadyClaimed {
		t.Fatalf("expected ErrDepositAlreadyClaimed, got %v", err)
	}

	depositID, err := s.FindDepositByTxid(1, txid)
	if err != nil {
		t.Fatalf("FindDepositByTxid: %v", err)
	}
	if depositID != 0 {
		t.Fatalf("expected deposit id 0, got %d", depositID)
	}
}

func TestStore_DepositTooSmallRejected(t *testing.T) {
	s := newTestStore()
	if _, _, err := s.AddDeposit(1, 0, DepositFee, Hash256{}, [33]byte{}); err != ErrDepositTooSmall {
		t.Fatalf("expected ErrDepositTooSmall, got %v", err)
	}
}

func TestStore_AddAndProcessWithdrawal(t *testing.T) {
	s := newTestStore()
	if _, err := s.RegisterUser(1, 0, [4]uint64{}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, _, err := s.AddDeposit(1, 0, 10*DepositFee, Hash256{9}, [33]byte{}); err != nil {
		t.Fatalf("AddDeposit: %v", err)
	}
	if _, _, _, err := s.ClaimDeposit(1, 0, 0); err != nil {
		t.Fatalf("ClaimDeposit: %v", err)
	}

	addr := Hash160{1, 2, 3}
	_, _, debited, err := s.AddWithdrawal(1, 0, 0, 0, addr, AddressTypeP2PKH, DepositFee)
	if err != nil {
		t.Fatalf("AddWithdrawal: %v", err)
	}
	if debited != DepositFee+WithdrawalFee {
		t.Fatalf("expected debited %d, got %d", DepositFee+WithdrawalFee, debited)
	}

	w, err := s.GetWithdrawal(1, 0)
	if err != nil {
		t.Fatalf("GetWithdrawal: %v", err)
	}
	if w.Processed() {
		t.Fatalf("withdrawal should not be processed yet")
	}

	if _, err := s.ProcessWithdrawal(1, 0); err != nil {
		t.Fatalf("ProcessWithdrawal: %v", err)
	}
	if _, err := s.ProcessWithdrawal(1, 0); err != ErrWithdrawalAlreadyProcessed {
		t.Fatalf("expected ErrWithdrawalAlreadyProcessed, got %v", err)
	}
}

func TestStore_RootChangesAfterMutation(t *testing.T) {
	s := newTestStore()
	if err := s.SaveBlockState(1, BlockState{CheckpointID: 1}); err != nil {
		t.Fatalf("SaveBlockState: %v", err)
	}
	rootBefore, err := s.Root(1)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if _, err := s.RegisterUser(1, 0, [4]uint64{1}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	rootAfter, err := s.Root(1)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if rootAfter.Equal(rootBefore) {
		t.Fatalf("expected root to change after registering a user")
	}
}
