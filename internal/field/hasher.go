// Copyright 2025 Certen Protocol
//
// Hasher is the pluggable compression function used everywhere spec.md says
// "H(...)". internal/proofsystem's circuits recompute merkle roots
// in-circuit with gnark's std/hash/mimc, so every out-of-circuit consumer
// of H (the merkle and state trees, API responses, tests) must use MiMC's
// native counterpart -- gnark-crypto's ecc/bn254/fr/mimc, the same curve
// and permutation gnark's in-circuit gadget compiles against -- or the
// roots a worker witnesses against would never match what the circuit
// recomputes. Grounded on the IOTA rollup operator example's use of this
// exact native/in-circuit MiMC pairing to hash a merkle tree feeding a
// Groth16 circuit.

package field

import (
	bn254mimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hasher computes the digests the merkle tree, state trees, and block-state
// record need: a 2-to-1 node compression, a user-leaf hash over four u64
// fields plus a public key digest, and a single-limb-list absorb used for
// everything else (withdrawal leaves, block-state digests).
type Hasher interface {
	// Hash compresses two child digests into their parent, as used by every
	// internal merkle node. No event-hash folding uses it.
	Hash(left, right H) H
	// HashUser computes the user leaf hash H(balance‖nonce‖alt0‖alt1, public_key).
	HashUser(balance, nonce, alt0, alt1 uint64, publicKey H) H
	// HashSingle absorbs an arbitrary list of field elements into one digest,
	// used for withdrawal leaf packing and block-state digests.
	HashSingle(elems ...F) H
	// HashBytes absorbs an arbitrary-length byte blob into one digest, used
	// for records that don't pack cleanly into fixed field-element limbs
	// (e.g. a deposit record's txid and public key).
	HashBytes(data []byte) H
}

// mimcHasher is the default Hasher: every operand is packed into its
// big-endian BN254-scalar encoding (H.BytesBE, the same packing
// internal/worker's circuit-witness builder uses) and absorbed by
// gnark-crypto's native MiMC permutation, the exact companion of the
// in-circuit mimc.MiMC gadget internal/proofsystem's circuits verify
// against. A merkle/state-tree root computed here is therefore the same
// root the circuit recomputes from the same leaves and siblings.
type mimcHasher struct{}

// NewMiMCHasher returns the default Hasher implementation.
func NewMiMCHasher() Hasher {
	return mimcHasher{}
}

func sumBE(chunks ...[32]byte) H {
	h := bn254mimc.NewMiMC()
	for _, c := range chunks {
		h.Write(c[:])
	}
	sum := h.Sum(nil)
	var le [32]byte
	for i, b := range sum {
		le[len(sum)-1-i] = b
	}
	out, _ := HFromBytes(le[:])
	return out
}

func (mimcHasher) Hash(left, right H) H {
	return sumBE(left.BytesBE(), right.BytesBE())
}

func (h mimcHasher) HashUser(balance, nonce, alt0, alt1 uint64, publicKey H) H {
	limbHash := h.HashSingle(NewF(balance), NewF(nonce), NewF(alt0), NewF(alt1))
	return h.Hash(limbHash, publicKey)
}

func (mimcHasher) HashSingle(elems ...F) H {
	chunks := make([][32]byte, len(elems))
	for i, e := range elems {
		chunks[i] = H{e}.BytesBE()
	}
	return sumBE(chunks...)
}

func (mimcHasher) HashBytes(data []byte) H {
	h := bn254mimc.NewMiMC()
	for len(data) > 0 {
		var chunk [32]byte
		n := copy(chunk[:], data)
		h.Write(chunk[:])
		data = data[n:]
	}
	sum := h.Sum(nil)
	var le [32]byte
	for i, b := range sum {
		le[len(sum)-1-i] = b
	}
	out, _ := HFromBytes(le[:])
	return out
}
