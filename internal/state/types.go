// Copyright 2025 Certen Protocol
//
// Package state implements the concrete state tree set of spec.md §4.1/§3:
// users, L1 deposits, L1 withdrawals, and the per-checkpoint block-state
// record, each maintained atop a merkle.Tree or a raw checkpointed KV row.
// The byte layouts here are grounded on the original implementation's
// Hash256/Hash160 newtypes (city_crypto/src/hash/base_types) and its
// deposit key codecs (city_store/src/models/l1_deposits/data.rs), adapted
// from little-endian Rust arrays to explicit big-endian Go byte slices.

package state

import (
	"encoding/hex"
	"fmt"
)

// Hash256 is a 32-byte digest with Bitcoin's reversed-byte-order display
// convention, mirroring the original's Hash256 newtype.
type Hash256 [32]byte

// Hash160 is a 20-byte digest, e.g. a p2pkh/p2sh address payload.
type Hash160 [20]byte

// Hex returns the big-endian hex encoding of h.
func (h Hash256) Hex() string { return hex.EncodeToString(h[:]) }

// Reversed returns h with its bytes reversed, converting between the
// internal big-endian convention and Bitcoin's little-endian txid display.
func (h Hash256) Reversed() Hash256 {
	var out Hash256
	for i := range h {
		out[i] = h[31-i]
	}
	return out
}

// IsZero reports whether every byte of h is zero.
func (h Hash256) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hash256FromHex parses a hex string into a Hash256.
func Hash256FromHex(s string) (Hash256, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash256{}, err
	}
	if len(b) != 32 {
		return Hash256{}, fmt.Errorf("state: expected 32 bytes for Hash256, got %d", len(b))
	}
	var h Hash256
	copy(h[:], b)
	return h, nil
}

// Hex returns the hex encoding of h.
func (h Hash160) Hex() string { return hex.EncodeToString(h[:]) }

// Hash160FromHex parses a hex string into a Hash160.
func Hash160FromHex(s string) (Hash160, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash160{}, err
	}
	if len(b) != 20 {
		return Hash160{}, fmt.Errorf("state: expected 20 bytes for Hash160, got %d", len(b))
	}
	var h Hash160
	copy(h[:], b)
	return h, nil
}

// AddressType distinguishes the two withdrawal output scripts spec.md §3
// recognizes.
type AddressType uint8

const (
	AddressTypeP2SH  AddressType = 0
	AddressTypeP2PKH AddressType = 1
)

// Valid reports whether t is one of the two recognized address types.
func (t AddressType) Valid() bool {
	return t == AddressTypeP2SH || t == AddressTypeP2PKH
}

// DepositFee and WithdrawalFee are the flat satoshi fees spec.md §4.2
// subtracts from every claimed deposit and adds to every requested
// withdrawal. The distilled spec and the available original_source slice
// name these as DEPOSIT_FEE_AMOUNT/WITHDRAWAL_FEE_AMOUNT but never give
// their numeric value (the constants module that defines them was not
// part of the retrieved source); these values are a documented choice,
// not a derived one -- see DESIGN.md.
const (
	DepositFee    uint64 = 10_000
	WithdrawalFee uint64 = 1_000
	// BlockScriptSpendBaseFee is the flat per-block L1 fee spec.md §4.6
	// charges on top of WithdrawalFee×withdrawals.
	BlockScriptSpendBaseFee uint64 = 2_000
)

// User is the leaf record of the user state tree (spec.md §3 "User state").
type User struct {
	UserID    uint64
	Balance   uint64
	Nonce     uint64
	Alt0      uint64
	Alt1      uint64
	PublicKey [4]uint64 // the H-typed public key, stored as 4 raw field limbs
}

// L1Deposit is the leaf record of the deposit state tree (spec.md §3 "L1
// deposit"). ZERO (a deposit whose Value is 0) marks a claimed deposit.
type L1Deposit struct {
	DepositID    uint64
	CheckpointID uint64
	Value        uint64
	Txid         Hash256
	PublicKey    [33]byte // 33-byte compressed secp256k1 public key
}

// Claimed reports whether the deposit leaf has already been zeroed out.
func (d L1Deposit) Claimed() bool { return d.Value == 0 }

// L1Withdrawal is the leaf record of the withdrawal state tree (spec.md §3
// "L1 withdrawal"). ZERO (a withdrawal whose Value is 0) marks a processed
// withdrawal.
type L1Withdrawal struct {
	WithdrawalID uint64
	Address      Hash160
	AddressType  AddressType
	Value        uint64
}

// Processed reports whether the withdrawal leaf has already been zeroed out.
func (w L1Withdrawal) Processed() bool { return w.Value == 0 }

// BlockState is the per-checkpoint block-state record (spec.md §3 "Block
// state"), folded into the overall state root alongside the three trees.
type BlockState struct {
	CheckpointID             uint64
	NextAddWithdrawalID      uint64
	NextProcessWithdrawalID  uint64
	NextDepositID            uint64
	NextUserID               uint64
	TotalDepositsClaimedEpoch uint64
	EndBalance               uint64
}
