// Copyright 2025 Certen Protocol
//
// Builder constructs the settlement transaction and introspection hints of
// spec.md §4.6, grounded on original_source's create_hints_for_block
// (city_rollup_core_orchestrator::debug::scenario::actors::simple): input 0
// spends the prior block UTXO, a dummy input occupies slot 1 so the
// transaction shape is uniform whether or not any deposits were found,
// inputs 2..k are the discovered p2pkh deposit UTXOs, output 0 pays the
// next block script, and outputs 1..m pay the withdrawals in order.
package l1tx

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/certen/rollup-coordinator/internal/state"
)

// ErrInsufficientFees is returned when the computed total fee exceeds the
// transaction's total input value, per spec.md §4.6 "If total_fees >
// total_input, fail" and §7's InsufficientFees error kind.
var ErrInsufficientFees = errors.New("l1tx: total fees exceed total input value")

// BlockUTXO identifies the single unspent output at a block script address
// carrying the committed state hash (Glossary "Block UTXO").
type BlockUTXO struct {
	Txid  state.Hash256
	Vout  uint32
	Value uint64
}

// DepositUTXO is a p2pkh UTXO observed at the prior block's deposit
// address, along with the funding transaction the introspection hint must
// carry so the block circuit can verify its value and script without
// trusting an unauthenticated claim.
type DepositUTXO struct {
	Txid      state.Hash256
	Vout      uint32
	Value     uint64
	PkScript  []byte
	FundingTx *wire.MsgTx
}

// SigHashType mirrors the fixed SIGHASH_ALL introspection the block
// circuit always binds to; spec.md §4.6 never varies the sighash type, so
// this is not exposed as a builder parameter.
const SigHashType = txscript.SigHashAll

// IntrospectionHint is the bridge record spec.md §4.6 describes: it pairs
// one input's signing context with the on-chain data the block circuit
// needs to bind a state transition to the exact spend that carries it.
type IntrospectionHint struct {
	Transaction        *wire.MsgTx
	SigHashType        txscript.SigHashType
	CurrentSpendIndex  int
	BlockSpendIndex    int
	FundingTransactions []*wire.MsgTx
	NextBlockRedeemScript []byte
}

// Settlement is the result of building one checkpoint's L1 transaction:
// the transaction itself and one introspection hint per spendable input.
type Settlement struct {
	Transaction *wire.MsgTx
	Hints       []IntrospectionHint
}

func hashFromTxid(txid state.Hash256) chainhash.Hash {
	// state.Hash256 stores digests in the internal big-endian convention;
	// chainhash.Hash expects Bitcoin's little-endian wire order, the same
	// conversion state.Hash256.Reversed documents for txid display.
	return chainhash.Hash(txid.Reversed())
}

// p2shScript builds a standard OP_HASH160 <20-byte hash> OP_EQUAL output
// script, the script class every next-block output and p2sh withdrawal
// payout uses.
func p2shScript(hash state.Hash160) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash[:]).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// p2pkhScript builds a standard OP_DUP OP_HASH160 <20-byte hash>
// OP_EQUALVERIFY OP_CHECKSIG output script.
func p2pkhScript(hash state.Hash160) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// withdrawalScript dispatches on the withdrawal's recorded address type,
// the two kinds state.AddressType recognizes.
func withdrawalScript(w state.L1Withdrawal) ([]byte, error) {
	switch w.AddressType {
	case state.AddressTypeP2PKH:
		return p2pkhScript(w.Address)
	case state.AddressTypeP2SH:
		return p2shScript(w.Address)
	default:
		return nil, fmt.Errorf("l1tx: %w", state.ErrInvalidAddressType)
	}
}

// dummyOutPoint names the placeholder input slot 1 always occupies, an
// explicit well-known marker rather than omitting the slot.
func dummyOutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash{}, Index: ^uint32(0)}
}

// BuildSettlement constructs the checkpoint's settlement transaction: it
// spends blockUTXO and every discovered deposit UTXO, pays the next block
// script and every withdrawal, and returns one introspection hint per
// spendable input (block UTXO plus real deposits; the dummy input carries
// no hint since nothing signs for it).
//
// Fee rule (spec.md §4.6): total_fees = WITHDRAWAL_FEE×len(withdrawals) +
// BLOCK_SCRIPT_SPEND_BASE_FEE. currentScript is the script the block UTXO's
// previous output was locked with (needed to hint-script input 0 during
// signing); nextScriptHash is H160(next_script), the p2sh destination for
// the change output.
func BuildSettlement(
	blockUTXO BlockUTXO,
	deposits []DepositUTXO,
	withdrawals []state.L1Withdrawal,
	currentScript []byte,
	nextScript []byte,
	nextScriptHash state.Hash160,
) (*Settlement, error) {
	totalInput := blockUTXO.Value
	for _, d := range deposits {
		totalInput += d.Value
	}

	var totalWithdrawn uint64
	for _, w := range withdrawals {
		totalWithdrawn += w.Value
	}
	totalFees := state.WithdrawalFee*uint64(len(withdrawals)) + state.BlockScriptSpendBaseFee
	// spec.md §4.6's literal rule only compares fees against total input;
	// checking fees+withdrawn together is the same test plus the
	// underflow guard the change-value subtraction below needs, since
	// totalWithdrawn is never negative.
	if totalWithdrawn+totalFees > totalInput {
		return nil, fmt.Errorf("l1tx: withdrawals %d plus fees %d exceed input %d: %w", totalWithdrawn, totalFees, totalInput, ErrInsufficientFees)
	}
	changeValue := totalInput - totalWithdrawn - totalFees

	tx := wire.NewMsgTx(2)

	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: hashFromTxid(blockUTXO.Txid), Index: blockUTXO.Vout},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: dummyOutPoint(), Sequence: wire.MaxTxInSequenceNum})
	for _, d := range deposits {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: hashFromTxid(d.Txid), Index: d.Vout},
			Sequence:         wire.MaxTxInSequenceNum,
		})
	}

	changeScript, err := p2shScript(nextScriptHash)
	if err != nil {
		return nil, fmt.Errorf("l1tx: build change output script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(int64(changeValue), changeScript))
	for _, w := range withdrawals {
		script, err := withdrawalScript(w)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(w.Value), script))
	}

	fundingTxs := make([]*wire.MsgTx, 0, len(deposits))
	for _, d := range deposits {
		fundingTxs = append(fundingTxs, d.FundingTx)
	}

	// One hint per real spendable input: block UTXO at index 0, deposits
	// at indices 2..k (the dummy at index 1 is never signed for).
	hints := make([]IntrospectionHint, 0, 1+len(deposits))
	hints = append(hints, hintForInput(tx, 0, currentScript, fundingTxs, nextScript))
	for i := range deposits {
		hints = append(hints, hintForInput(tx, 2+i, currentScript, fundingTxs, nextScript))
	}

	return &Settlement{Transaction: tx, Hints: hints}, nil
}

// hintForInput copies tx, sets only spendIndex's input script to
// currentScript (spec.md §4.6: "input 0's script field is set to the
// current block redeem script during hinting; for inputs i > 0 only input
// i's script field is set"), and records the sighash coordinates for that
// input.
func hintForInput(tx *wire.MsgTx, spendIndex int, currentScript []byte, fundingTxs []*wire.MsgTx, nextScript []byte) IntrospectionHint {
	hinted := tx.Copy()
	hinted.TxIn[spendIndex].SignatureScript = currentScript
	return IntrospectionHint{
		Transaction:           hinted,
		SigHashType:           SigHashType,
		CurrentSpendIndex:     spendIndex,
		BlockSpendIndex:       0,
		FundingTransactions:   fundingTxs,
		NextBlockRedeemScript: nextScript,
	}
}

// BuildGenesis constructs the special-case first settlement transaction:
// there is no prior block UTXO to spend, so the single input is the
// funding UTXO an operator supplies out of band, and the only output is
// the p2sh genesis block script. Grounded on original_source's lib.rs
// run(), which funds the genesis block from "a random p2pkh address" with
// a flat setup fee rather than the withdrawal-driven fee rule of a
// standard settlement.
func BuildGenesis(funder BlockUTXO, funderScript []byte, setupFee uint64, genesisScriptHash state.Hash160) (*Settlement, error) {
	if setupFee > funder.Value {
		return nil, fmt.Errorf("l1tx: setup fee %d exceeds funding value %d: %w", setupFee, funder.Value, ErrInsufficientFees)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: hashFromTxid(funder.Txid), Index: funder.Vout},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	script, err := p2shScript(genesisScriptHash)
	if err != nil {
		return nil, fmt.Errorf("l1tx: build genesis output script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(int64(funder.Value-setupFee), script))

	hinted := tx.Copy()
	hinted.TxIn[0].SignatureScript = funderScript
	hint := IntrospectionHint{
		Transaction:       hinted,
		SigHashType:       SigHashType,
		CurrentSpendIndex: 0,
		BlockSpendIndex:   -1,
	}
	return &Settlement{Transaction: tx, Hints: []IntrospectionHint{hint}}, nil
}
