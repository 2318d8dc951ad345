// Copyright 2025 Certen Protocol
//
// L1Node is the only L1 surface spec.md §1 says this coordinator consumes:
// "only its get_utxos/get_raw_tx/send_raw_tx/mine interface is used" --
// everything else about the L1 node (mempool policy, peer management, the
// wallet that actually holds keys) is out of scope. This interface is this
// coordinator's own design, since spec.md names the four verbs but not a
// Go signature for them; it is shaped directly around internal/l1tx's
// existing BlockUTXO/DepositUTXO/Settlement types so the orchestrator can
// hand an L1Node's results straight to l1tx.BuildSettlement without any
// adapting layer.

package orchestrator

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/certen/rollup-coordinator/internal/l1tx"
	"github.com/certen/rollup-coordinator/internal/state"
)

// DepositCandidate pairs a discovered p2pkh UTXO with the depositor's
// public key. A real L1 node backing this interface recovers the public
// key from the scriptSig/witness of the transaction that funded the UTXO
// (standard p2pkh reveals the spender's pubkey only when it is later
// spent, but the deposit-observing node here is assumed to track the
// originating wallet's announced public key directly, the way
// original_source's deposit scanner does); this repository never connects
// to a real node, so the exact provenance is an implementation-defined
// property of whatever L1Node is wired in.
type DepositCandidate struct {
	UTXO      l1tx.DepositUTXO
	PublicKey [33]byte
}

// L1Node is the Bitcoin-like L1 node surface the orchestrator drives.
type L1Node interface {
	// GetUTXOs scans for spendable p2pkh deposit UTXOs locked to
	// watchScript, the "prior block address" spec.md §4.6 sweeps deposits
	// from.
	GetUTXOs(ctx context.Context, watchScript []byte) ([]DepositCandidate, error)
	// GetRawTx fetches the full funding transaction for txid, needed by
	// l1tx.BuildSettlement's introspection hints so the block circuit can
	// verify a deposit's value and script without trusting an
	// unauthenticated claim.
	GetRawTx(ctx context.Context, txid state.Hash256) (*wire.MsgTx, error)
	// SendRawTx broadcasts tx and returns its txid. The block-spend input
	// authenticates itself via the Groth16 proof baked into the witness
	// script (script.go's OP_CHECKGROTH16VERIFY), not an ECDSA signature,
	// so tx is submitted exactly as built -- signing wrapper circuits are
	// out of spec.md's scope (§1 Non-goals).
	SendRawTx(ctx context.Context, tx *wire.MsgTx) (state.Hash256, error)
	// Mine advances the L1 chain far enough to confirm the most recently
	// submitted transaction. On a production network this is a no-op that
	// waits for confirmations instead; it is named "mine" because every
	// retrieved example and test harness for this kind of rollup runs
	// against a regtest-style node that must be told to mine blocks.
	Mine(ctx context.Context) error
}
