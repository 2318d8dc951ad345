package planner

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/state"
)

func newTestPlannerWithProofs() (*Planner, *state.Store, *proofstore.Store) {
	store := kv.NewAdapter(dbm.NewMemDB())
	s := state.New(store, field.NewMiMCHasher(), 8, 8, 8)
	proofs := proofstore.New(kv.NewAdapter(dbm.NewMemDB()))
	return New(s, proofs, nil), s, proofs
}

func newTestPlanner() (*Planner, *state.Store) {
	p, s, _ := newTestPlannerWithProofs()
	return p, s
}

// TestPlan_RegisterThenTransfer is scenario 1 of spec.md §8.
func TestPlan_RegisterThenTransfer(t *testing.T) {
	p, _ := newTestPlanner()
	bundle := RequestBundle{
		RegisterUser: []RegisterUserRequest{
			{PublicKey: [4]uint64{100, 100, 100, 100}},
			{PublicKey: [4]uint64{101, 101, 101, 101}},
		},
	}
	result, err := p.Plan(1, state.BlockState{}, bundle)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.FinalBlockState.NextUserID != 2 {
		t.Fatalf("expected next_user_id 2, got %d", result.FinalBlockState.NextUserID)
	}
	if len(result.Dropped) != 0 {
		t.Fatalf("expected no dropped actions, got %v", result.Dropped)
	}
	if len(result.ByKind[jobid.KindRegisterUser]) != 2 {
		t.Fatalf("expected 2 register-user circuit inputs, got %d", len(result.ByKind[jobid.KindRegisterUser]))
	}
}

// TestPlan_ClaimDeposit is scenario 2 of spec.md §8.
func TestPlan_ClaimDeposit(t *testing.T) {
	p, s := newTestPlanner()
	if _, err := s.RegisterUser(1, 0, [4]uint64{}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	txid := state.Hash256{0xAA}
	unit := state.DepositFee * 10
	if _, _, err := s.AddDeposit(1, 0, unit, txid, [33]byte{0xBB}); err != nil {
		t.Fatalf("AddDeposit: %v", err)
	}

	result, err := p.Plan(2, state.BlockState{NextUserID: 1, NextDepositID: 1}, RequestBundle{
		ClaimDeposit: []ClaimDepositRequest{{DepositID: 0, ClaimantUserID: 0}},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Dropped) != 0 {
		t.Fatalf("expected no dropped actions, got %v", result.Dropped)
	}
	user, err := s.GetUser(2, 0)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Balance != unit-state.DepositFee {
		t.Fatalf("expected balance %d, got %d", unit-state.DepositFee, user.Balance)
	}
	if user.Nonce != 0 {
		t.Fatalf("expected nonce 0 (deposits do not consume nonces), got %d", user.Nonce)
	}
	if result.FinalBlockState.TotalDepositsClaimedEpoch != 1 {
		t.Fatalf("expected total_deposits_claimed_epoch 1, got %d", result.FinalBlockState.TotalDepositsClaimedEpoch)
	}
}

// TestPlan_TransferNonceMismatchDropped is scenario 3 of spec.md §8: the
// action is dropped, not fatal for the whole block, and no state changes.
func TestPlan_TransferNonceMismatchDropped(t *testing.T) {
	p, s := newTestPlanner()
	if _, err := s.RegisterUser(1, 0, [4]uint64{}); err != nil {
		t.Fatalf("RegisterUser sender: %v", err)
	}
	if _, err := s.RegisterUser(1, 1, [4]uint64{}); err != nil {
		t.Fatalf("RegisterUser recipient: %v", err)
	}
	txid := state.Hash256{1}
	if _, _, err := s.AddDeposit(1, 0, state.DepositFee+2000, txid, [33]byte{}); err != nil {
		t.Fatalf("AddDeposit: %v", err)
	}
	if _, _, _, err := s.ClaimDeposit(1, 0, 0); err != nil {
		t.Fatalf("ClaimDeposit: %v", err)
	}

	before, err := s.GetUser(1, 0)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}

	result, err := p.Plan(2, state.BlockState{NextUserID: 2, NextDepositID: 1}, RequestBundle{
		Transfer: []TransferRequest{{SenderID: 0, RecipientID: 1, Value: 100, Nonce: 1}},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Dropped) != 1 {
		t.Fatalf("expected 1 dropped action, got %d", len(result.Dropped))
	}
	if result.Dropped[0].Err != state.ErrNonceMismatch {
		t.Fatalf("expected ErrNonceMismatch, got %v", result.Dropped[0].Err)
	}

	after, err := s.GetUser(2, 0)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if after.Balance != before.Balance || after.Nonce != before.Nonce {
		t.Fatalf("expected no state change for dropped action, before=%+v after=%+v", before, after)
	}
}

// TestPlan_AccountingInvariant checks spec.md §8's
// "end_balance(c) = end_balance(c-1) + block_total_deposited - block_total_withdrawn".
func TestPlan_AccountingInvariant(t *testing.T) {
	p, s := newTestPlanner()
	if _, err := s.RegisterUser(1, 0, [4]uint64{}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	txid := state.Hash256{2}
	depositValue := state.DepositFee + 5000
	if _, _, err := s.AddDeposit(1, 0, depositValue, txid, [33]byte{}); err != nil {
		t.Fatalf("seed AddDeposit: %v", err)
	}
	if _, _, _, err := s.ClaimDeposit(1, 0, 0); err != nil {
		t.Fatalf("seed ClaimDeposit: %v", err)
	}

	withdrawValue := uint64(1000)
	startingEndBalance := uint64(50_000)
	result, err := p.Plan(2, state.BlockState{NextUserID: 1, NextDepositID: 1, EndBalance: startingEndBalance}, RequestBundle{
		AddWithdrawal: []AddWithdrawalRequest{
			{UserID: 0, Nonce: 0, Address: state.Hash160{1}, AddressType: state.AddressTypeP2PKH, Value: withdrawValue},
		},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Dropped) != 0 {
		t.Fatalf("expected no dropped actions, got %v", result.Dropped)
	}
	expectedWithdrawn := withdrawValue + state.WithdrawalFee
	expectedEndBalance := startingEndBalance - expectedWithdrawn
	if result.FinalBlockState.EndBalance != expectedEndBalance {
		t.Fatalf("expected end_balance %d, got %d", expectedEndBalance, result.FinalBlockState.EndBalance)
	}
}

// TestPlan_WithdrawalCountersResetWhenEqual exercises the reset predicate
// of spec.md §4.2/§9: when next_add_withdrawal_id == next_process_withdrawal_id
// going in, both reset to 0 for the new block.
func TestPlan_WithdrawalCountersResetWhenEqual(t *testing.T) {
	p, _ := newTestPlanner()
	prev := state.BlockState{NextAddWithdrawalID: 5, NextProcessWithdrawalID: 5}
	result, err := p.Plan(1, prev, RequestBundle{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.FinalBlockState.NextAddWithdrawalID != 0 || result.FinalBlockState.NextProcessWithdrawalID != 0 {
		t.Fatalf("expected both withdrawal counters reset to 0, got add=%d process=%d",
			result.FinalBlockState.NextAddWithdrawalID, result.FinalBlockState.NextProcessWithdrawalID)
	}
}

// TestPlan_EmptyBlockStillAdvances is the zero-actions boundary case of
// spec.md §8: "Producing a block with zero actions must still advance
// checkpoint_id".
func TestPlan_EmptyBlockStillAdvances(t *testing.T) {
	p, _ := newTestPlanner()
	result, err := p.Plan(7, state.BlockState{}, RequestBundle{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.FinalBlockState.CheckpointID != 7 {
		t.Fatalf("expected checkpoint_id 7, got %d", result.FinalBlockState.CheckpointID)
	}
}

// TestPlan_PersistsCircuitInputForWorker checks that each emitted leaf's
// delta-merkle proof(s) are durably retrievable by JobId, the contract the
// worker pool (a separate process) relies on.
func TestPlan_PersistsCircuitInputForWorker(t *testing.T) {
	p, _, proofs := newTestPlannerWithProofs()
	bundle := RequestBundle{
		RegisterUser: []RegisterUserRequest{{PublicKey: [4]uint64{1, 2, 3, 4}}},
	}
	result, err := p.Plan(1, state.BlockState{}, bundle)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	inputs := result.ByKind[jobid.KindRegisterUser]
	if len(inputs) != 1 {
		t.Fatalf("expected 1 circuit input, got %d", len(inputs))
	}
	raw, err := proofs.GetBytes(InputJobID(inputs[0].JobID))
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	decoded, err := DecodeCircuitInput(inputs[0].JobID, raw)
	if err != nil {
		t.Fatalf("DecodeCircuitInput: %v", err)
	}
	if decoded.First == nil || !decoded.First.NewRoot.Equal(inputs[0].First.NewRoot) {
		t.Fatalf("decoded circuit input does not match emitted proof")
	}
}
