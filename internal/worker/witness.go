// Copyright 2025 Certen Protocol
//
// Witness construction bridges internal/field.H (the 4-limb Goldilocks
// digest every merkle and state-tree consumer shares) into
// internal/proofsystem's single-scalar BN254 frontend.Variable circuit
// fields. internal/field.Hasher packs an H's 32-byte big-endian encoding
// through gnark-crypto's native BN254 MiMC out of circuit; this package
// packs the same big-endian encoding into a frontend.Variable for the
// in-circuit gnark std/hash/mimc verifier, so a merkle path recomputed
// in-circuit lands on the same root value the planner already committed
// to out of circuit.

package worker

import (
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/merkle"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
)

// toVariable packs h's big-endian canonical encoding into a single BN254
// scalar, big enough to hold it without wraparound (32 bytes < the
// ~254-bit BN254 scalar field). This is the same packing
// internal/field.Hasher uses out of circuit, so a recomputed in-circuit
// root matches the root the planner committed to.
func toVariable(h field.H) frontend.Variable {
	be := h.BytesBE()
	return new(big.Int).SetBytes(be[:])
}

// inactiveSlot is the witness for a DeltaProofSlot that verify()s
// trivially (proofsystem.DeltaProofSlot.verify's Active=0 branch
// constrains the slot against itself), used for the three single-tree op
// kinds' unused Second slot, and as the base selfLoopSlot starts from.
func inactiveSlot() proofsystem.DeltaProofSlot {
	var slot proofsystem.DeltaProofSlot
	slot.Active = 0
	for i := range slot.IdxBits {
		slot.IdxBits[i] = 0
	}
	for i := range slot.Siblings {
		slot.Siblings[i] = 0
	}
	slot.OldValue = 0
	slot.NewValue = 0
	slot.OldRoot = 0
	slot.NewRoot = 0
	return slot
}

// selfLoopSlot is the witness for a DeltaProofSlot padding an aggregation
// tree position with a dummy whose state transition is a self-loop at
// root (internal/aggregation.Scheduler's BuildBlockTree): inactive, like
// inactiveSlot, but with both roots pinned to root rather than zero, so
// the proof the worker produces for this position actually attests to
// the running root the dummy was addressed against.
func selfLoopSlot(root field.H) proofsystem.DeltaProofSlot {
	slot := inactiveSlot()
	v := toVariable(root)
	slot.OldRoot = v
	slot.NewRoot = v
	return slot
}

// buildSlot converts proof into its DeltaProofSlot witness. A nil proof
// (the Second slot of a single-tree op) produces an inactiveSlot.
func buildSlot(proof *merkle.DeltaProof) (proofsystem.DeltaProofSlot, error) {
	if proof == nil {
		return inactiveSlot(), nil
	}
	if len(proof.Siblings) > proofsystem.TreeHeight {
		return proofsystem.DeltaProofSlot{}, ErrTreeTooDeep
	}

	var idxBits [proofsystem.TreeHeight]frontend.Variable
	for i := range idxBits {
		idxBits[i] = (proof.Index >> uint(i)) & 1
	}

	var siblings [proofsystem.TreeHeight]frontend.Variable
	for i := range siblings {
		if i < len(proof.Siblings) {
			siblings[i] = toVariable(proof.Siblings[i])
		} else {
			// Shorter sibling paths only arise from tests that compile
			// their merkle trees at a height below TreeHeight; padding
			// with zero siblings extends the path with no-op levels.
			siblings[i] = 0
		}
	}

	return proofsystem.DeltaProofSlot{
		Active:   1,
		IdxBits:  idxBits,
		OldValue: toVariable(proof.OldValue),
		NewValue: toVariable(proof.NewValue),
		Siblings: siblings,
		OldRoot:  toVariable(proof.OldRoot),
		NewRoot:  toVariable(proof.NewRoot),
	}, nil
}
