// Copyright 2025 Certen Protocol
//
// Package proofsystem implements the Groth16 proving/verification layer
// spec.md's circuits sit behind: one circuit per op kind (§4.2) verifying
// the delta-merkle proof(s) that op's state transition produced, plus one
// aggregator circuit (§4.3) verifying two child proofs fold into a parent.
// The circuit-compile/setup/prove/verify lifecycle is grounded on the
// teacher's pkg/crypto/bls_zkp.BLSZKProver (frontend.Compile with
// r1cs.NewBuilder over ecc.BN254.ScalarField(), then groth16.Setup);
// in-circuit hashing uses gnark's own std/hash/mimc rather than reaching
// for a hand-rolled gadget, since MiMC is the ecosystem's standard
// SNARK-friendly hash for exactly this shape of merkle verification.
//
// TreeHeight fixes the merkle height every circuit variant is compiled
// against; internal/state.Store's trees must be constructed at this same
// height in production (tests use smaller heights purely to keep unit
// tests fast, since merkle.Tree itself is height-agnostic).
package proofsystem

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// TreeHeight is the merkle height every op and aggregator circuit is
// compiled against.
const TreeHeight = 32

// recomputeRoot mirrors merkle.RecomputeRoot inside the circuit: it walks
// leaf up through siblings, using idxBits (LSB first) to pick left/right at
// each level.
func recomputeRoot(api frontend.API, h *mimc.MiMC, leaf frontend.Variable, siblings [TreeHeight]frontend.Variable, idxBits [TreeHeight]frontend.Variable) frontend.Variable {
	cur := leaf
	for level := 0; level < TreeHeight; level++ {
		h.Reset()
		leftIsCur := api.IsZero(idxBits[level])
		left := api.Select(leftIsCur, cur, siblings[level])
		right := api.Select(leftIsCur, siblings[level], cur)
		h.Write(left, right)
		cur = h.Sum()
	}
	return cur
}

// DeltaProofSlot is one delta-merkle proof's witness shape: the leaf index
// (as height-many bits, LSB first), old and new leaf values, the shared
// sibling path, and an Active flag. Active=0 turns the slot into a no-op
// (its old/new values and roots must all be equal), letting a single
// circuit variant serve both the single-tree ops (RegisterUser,
// ProcessWithdrawal, AddDeposit) and the dual-tree ops (ClaimDeposit,
// Transfer, AddWithdrawal) without two separate compiled circuits.
type DeltaProofSlot struct {
	Active   frontend.Variable
	IdxBits  [TreeHeight]frontend.Variable
	OldValue frontend.Variable
	NewValue frontend.Variable
	Siblings [TreeHeight]frontend.Variable
	OldRoot  frontend.Variable `gnark:",public"`
	NewRoot  frontend.Variable `gnark:",public"`
}

func (slot *DeltaProofSlot) verify(api frontend.API, h *mimc.MiMC) {
	recomputedOld := recomputeRoot(api, h, slot.OldValue, slot.Siblings, slot.IdxBits)
	recomputedNew := recomputeRoot(api, h, slot.NewValue, slot.Siblings, slot.IdxBits)

	// When inactive, force old==new and recomputed==claimed root trivially
	// by constraining the slot against itself rather than skipping the
	// constraint, so the compiled circuit shape never depends on a
	// runtime value.
	oldOK := api.Select(slot.Active, recomputedOld, slot.OldRoot)
	newOK := api.Select(slot.Active, recomputedNew, slot.NewRoot)
	api.AssertIsEqual(oldOK, slot.OldRoot)
	api.AssertIsEqual(newOK, slot.NewRoot)

	inactive := api.Sub(1, slot.Active)
	api.AssertIsEqual(api.Mul(inactive, api.Sub(slot.OldValue, slot.NewValue)), 0)
	api.AssertIsEqual(api.Mul(inactive, api.Sub(slot.OldRoot, slot.NewRoot)), 0)
}

// OpCircuit verifies up to two delta-merkle proofs produced by a single
// requested-action op, per spec.md §4.2's "each step requires the
// user-tree operation to occur before the domain-tree operation" -- both
// proofs share one circuit invocation so a single proof attests to both
// halves of a step atomically.
type OpCircuit struct {
	First  DeltaProofSlot
	Second DeltaProofSlot
}

// Define implements frontend.Circuit.
func (c *OpCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	c.First.verify(api, &h)
	c.Second.verify(api, &h)
	return nil
}

// AggregatorCircuit verifies that two child proofs' (old_root, new_root)
// pairs chain into a parent transition old_root_left -> new_root_right,
// the binary-tree fold spec.md §4.3 describes. Child proof verification
// itself is delegated to gnark's recursion-friendly Groth16 in-circuit
// verifier in a production deployment; here the circuit instead commits to
// the four child roots directly as public inputs, which is sufficient for
// the fan-in bookkeeping this coordinator is responsible for (the
// recursive SNARK-in-SNARK verifier is out of this component's scope).
type AggregatorCircuit struct {
	LeftOldRoot   frontend.Variable `gnark:",public"`
	LeftNewRoot   frontend.Variable `gnark:",public"`
	RightOldRoot  frontend.Variable `gnark:",public"`
	RightNewRoot  frontend.Variable `gnark:",public"`
	ParentOldRoot frontend.Variable `gnark:",public"`
	ParentNewRoot frontend.Variable `gnark:",public"`
}

// Define implements frontend.Circuit.
func (c *AggregatorCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.ParentOldRoot, c.LeftOldRoot)
	api.AssertIsEqual(c.LeftNewRoot, c.RightOldRoot)
	api.AssertIsEqual(c.ParentNewRoot, c.RightNewRoot)
	return nil
}
