// Copyright 2025 Certen Protocol
//
// Package field implements the Goldilocks prime field and the 4-limb hash
// digest type used throughout the rollup's merkleized state. The field
// matches Plonky2's GoldilocksField (modulus 2^64 - 2^32 + 1), the field the
// original proving circuits are defined over; this package only reduces and
// serializes elements of it, it does not implement any circuit arithmetic.

package field

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Modulus is the Goldilocks prime 2^64 - 2^32 + 1.
const Modulus uint64 = 0xFFFFFFFF00000001

// F is a single Goldilocks field element, held in canonical (reduced) form.
type F uint64

// NewF reduces an arbitrary uint64 into a canonical field element.
func NewF(v uint64) F {
	if v >= Modulus {
		v -= Modulus
	}
	return F(v)
}

// Add returns a+b mod Modulus.
func (a F) Add(b F) F {
	sum := uint64(a) + uint64(b)
	if sum < uint64(a) || sum >= Modulus {
		sum -= Modulus
	}
	return F(sum)
}

// Canonical reports whether the element's top 3 bits are zero, i.e. it is a
// legal Goldilocks encoding per the "canonical-u64" reduction spec.md
// describes for Hash serialization.
func (a F) Canonical() bool {
	return uint64(a)&0xE000000000000000 == 0 && uint64(a) < Modulus
}

// H is a 4-element Poseidon-style digest over F, matching spec.md's "Hash":
// a 4-element tuple of F serialized as 32 little-endian bytes with the top 3
// bits of each 8-byte word zeroed before interpretation.
type H [4]F

// Zero is the sparse-tree's implementation-defined zero hash: a
// never-written leaf or internal node reads as Zero at its level.
var Zero = H{}

// Bytes serializes H as 32 little-endian bytes, one 8-byte canonical word
// per limb, per spec.md §3 "State-hash encoding".
func (h H) Bytes() [32]byte {
	var out [32]byte
	for i, limb := range h {
		binary.LittleEndian.PutUint64(out[i*8:(i+1)*8], uint64(limb))
	}
	return out
}

// HFromBytes parses a 32-byte little-endian encoding back into H, reducing
// each limb to canonical form the way the on-wire codec does.
func HFromBytes(b []byte) (H, error) {
	if len(b) != 32 {
		return H{}, fmt.Errorf("field: hash must be 32 bytes, got %d", len(b))
	}
	var h H
	for i := range h {
		h[i] = NewF(binary.LittleEndian.Uint64(b[i*8 : (i+1)*8]))
	}
	return h, nil
}

// BytesBE returns h's canonical limb encoding reinterpreted big-endian: the
// packing both the MiMC Hasher and the circuit witness builder
// (internal/worker/witness.go's toVariable) use to fit a 4-limb digest into
// a single BN254 scalar field element.
func (h H) BytesBE() [32]byte {
	le := h.Bytes()
	var be [32]byte
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return be
}

// Hex returns the hex encoding of the 32-byte form.
func (h H) Hex() string {
	b := h.Bytes()
	return hex.EncodeToString(b[:])
}

// HFromHex is the inverse of Hex.
func HFromHex(s string) (H, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return H{}, fmt.Errorf("field: invalid hex hash %q: %w", s, err)
	}
	return HFromBytes(b)
}

// Equal reports whether two digests are identical.
func (h H) Equal(other H) bool {
	return h == other
}
