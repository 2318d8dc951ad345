// Copyright 2025 Certen Protocol

package l1tx

import (
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/certen/rollup-coordinator/internal/state"
)

func TestBuildBlockScript_FixedLength(t *testing.T) {
	script := BuildBlockScript([32]byte{1, 2, 3}, false)
	if len(script) != BlockScriptSize {
		t.Fatalf("expected script length %d, got %d", BlockScriptSize, len(script))
	}
	if script[0] != opPushBytes32 {
		t.Fatalf("expected leading byte 0x20, got 0x%x", script[0])
	}
	var stateHash [32]byte
	copy(stateHash[:], script[1:33])
	if stateHash != [32]byte{1, 2, 3} {
		t.Fatalf("expected state hash echoed at bytes 1..33")
	}
}

func TestBuildBlockScript_DevModeIgnoredInReleaseBuild(t *testing.T) {
	release := BuildBlockScript([32]byte{9}, false)
	requested := BuildBlockScript([32]byte{9}, true)
	if string(release) != string(requested) {
		t.Fatalf("expected requestDevMode to have no effect without the l1tx_devmode build tag")
	}
}

func TestBuildSettlement_InputOutputShape(t *testing.T) {
	blockUTXO := BlockUTXO{Txid: state.Hash256{1}, Vout: 0, Value: 1_000_000}
	deposits := []DepositUTXO{
		{Txid: state.Hash256{2}, Vout: 0, Value: 50_000, FundingTx: wire.NewMsgTx(2)},
		{Txid: state.Hash256{3}, Vout: 1, Value: 75_000, FundingTx: wire.NewMsgTx(2)},
	}
	withdrawals := []state.L1Withdrawal{
		{WithdrawalID: 0, Address: state.Hash160{4}, AddressType: state.AddressTypeP2PKH, Value: 20_000},
	}

	settlement, err := BuildSettlement(blockUTXO, deposits, withdrawals, []byte("current-script"), []byte("next-script"), state.Hash160{5})
	if err != nil {
		t.Fatalf("BuildSettlement: %v", err)
	}

	tx := settlement.Transaction
	if len(tx.TxIn) != 4 {
		t.Fatalf("expected 4 inputs (block utxo + dummy + 2 deposits), got %d", len(tx.TxIn))
	}
	if tx.TxIn[1].PreviousOutPoint != dummyOutPoint() {
		t.Fatalf("expected input 1 to be the dummy outpoint")
	}
	if len(tx.TxOut) != 2 {
		t.Fatalf("expected 2 outputs (change + 1 withdrawal), got %d", len(tx.TxOut))
	}

	wantChange := int64(1_000_000 + 50_000 + 75_000 - 20_000 - (state.WithdrawalFee + state.BlockScriptSpendBaseFee))
	if tx.TxOut[0].Value != wantChange {
		t.Fatalf("expected change output value %d, got %d", wantChange, tx.TxOut[0].Value)
	}
	if tx.TxOut[1].Value != 20_000 {
		t.Fatalf("expected withdrawal output value 20000, got %d", tx.TxOut[1].Value)
	}

	// block utxo hint + one hint per deposit input.
	if len(settlement.Hints) != 3 {
		t.Fatalf("expected 3 introspection hints, got %d", len(settlement.Hints))
	}
	if settlement.Hints[0].CurrentSpendIndex != 0 {
		t.Fatalf("expected first hint to spend index 0, got %d", settlement.Hints[0].CurrentSpendIndex)
	}
	if settlement.Hints[1].CurrentSpendIndex != 2 || settlement.Hints[2].CurrentSpendIndex != 3 {
		t.Fatalf("expected deposit hints to spend indices 2 and 3, got %d and %d",
			settlement.Hints[1].CurrentSpendIndex, settlement.Hints[2].CurrentSpendIndex)
	}
	for i, hint := range settlement.Hints {
		if len(hint.Transaction.TxIn[hint.CurrentSpendIndex].SignatureScript) == 0 {
			t.Fatalf("hint %d: expected current-spend input's script to be set", i)
		}
		for j, in := range hint.Transaction.TxIn {
			if j != hint.CurrentSpendIndex && len(in.SignatureScript) != 0 {
				t.Fatalf("hint %d: expected only input %d's script set, found input %d set", i, hint.CurrentSpendIndex, j)
			}
		}
	}
}

func TestBuildSettlement_FeesExceedInput(t *testing.T) {
	blockUTXO := BlockUTXO{Txid: state.Hash256{1}, Vout: 0, Value: 600}
	withdrawals := []state.L1Withdrawal{
		{WithdrawalID: 0, Address: state.Hash160{1}, AddressType: state.AddressTypeP2PKH, Value: 100},
		{WithdrawalID: 1, Address: state.Hash160{2}, AddressType: state.AddressTypeP2PKH, Value: 100},
	}
	// fees = WithdrawalFee*2 + BlockScriptSpendBaseFee; with the repo's
	// documented constants (1000, 2000) this already exceeds 600, matching
	// spec.md §8 scenario 4's shape (distinct numeric fee constants, same
	// "fees exceed available input" outcome).
	_, err := BuildSettlement(blockUTXO, nil, withdrawals, []byte("cur"), []byte("next"), state.Hash160{9})
	if err == nil {
		t.Fatalf("expected insufficient-fees error")
	}
}

func TestBuildGenesis(t *testing.T) {
	funder := BlockUTXO{Txid: state.Hash256{7}, Vout: 0, Value: 10_000_000}
	settlement, err := BuildGenesis(funder, []byte("funder-script"), 50_000, state.Hash160{1})
	if err != nil {
		t.Fatalf("BuildGenesis: %v", err)
	}
	if len(settlement.Transaction.TxIn) != 1 || len(settlement.Transaction.TxOut) != 1 {
		t.Fatalf("expected a single input and output, got %d in, %d out",
			len(settlement.Transaction.TxIn), len(settlement.Transaction.TxOut))
	}
	if settlement.Transaction.TxOut[0].Value != 10_000_000-50_000 {
		t.Fatalf("expected output value %d, got %d", 10_000_000-50_000, settlement.Transaction.TxOut[0].Value)
	}
}
