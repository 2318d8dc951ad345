package merkle

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/kv"
)

func newTestTree(height uint8) *Tree {
	store := kv.NewAdapter(dbm.NewMemDB())
	return New(store, height, 0x0001, field.NewMiMCHasher())
}

func TestTree_EmptyLeafReadsZero(t *testing.T) {
	tr := newTestTree(4)

	leaf, err := tr.GetLeaf(0, 5)
	if err != nil {
		t.Fatalf("GetLeaf: %v", err)
	}
	if !leaf.Equal(field.Zero) {
		t.Fatalf("expected zero leaf, got %v", leaf)
	}
}

func TestTree_SetLeafProducesVerifiableDeltaProof(t *testing.T) {
	tr := newTestTree(4)
	hasher := field.NewMiMCHasher()

	newVal := hasher.HashSingle(field.NewF(1), field.NewF(2))
	proof, err := tr.SetLeaf(1, 3, newVal)
	if err != nil {
		t.Fatalf("SetLeaf: %v", err)
	}
	if !proof.Verify(hasher, 3) {
		t.Fatalf("delta proof failed to verify")
	}
	if proof.NewRoot.Equal(proof.OldRoot) {
		t.Fatalf("expected root to change after a leaf write")
	}

	leaf, err := tr.GetLeaf(1, 3)
	if err != nil {
		t.Fatalf("GetLeaf: %v", err)
	}
	if !leaf.Equal(newVal) {
		t.Fatalf("leaf not persisted: got %v want %v", leaf, newVal)
	}
}

func TestTree_OlderCheckpointsStayImmutable(t *testing.T) {
	tr := newTestTree(3)
	hasher := field.NewMiMCHasher()

	v1 := hasher.HashSingle(field.NewF(10))
	if _, err := tr.SetLeaf(1, 0, v1); err != nil {
		t.Fatalf("SetLeaf cp1: %v", err)
	}
	root1, err := tr.GetRoot(1)
	if err != nil {
		t.Fatalf("GetRoot cp1: %v", err)
	}

	v2 := hasher.HashSingle(field.NewF(20))
	if _, err := tr.SetLeaf(2, 0, v2); err != nil {
		t.Fatalf("SetLeaf cp2: %v", err)
	}

	rootAt1Again, err := tr.GetRoot(1)
	if err != nil {
		t.Fatalf("GetRoot cp1 again: %v", err)
	}
	if !rootAt1Again.Equal(root1) {
		t.Fatalf("checkpoint 1 root mutated after writing checkpoint 2")
	}

	leafAt0, err := tr.GetLeaf(0, 0)
	if err != nil {
		t.Fatalf("GetLeaf cp0: %v", err)
	}
	if !leafAt0.Equal(field.Zero) {
		t.Fatalf("checkpoint 0 should still read zero, got %v", leafAt0)
	}

	// Checkpoint 3 with no writes of its own falls back to checkpoint 2's
	// state via the greatest-key-less-or-equal probe.
	leafAt3, err := tr.GetLeaf(3, 0)
	if err != nil {
		t.Fatalf("GetLeaf cp3: %v", err)
	}
	if !leafAt3.Equal(v2) {
		t.Fatalf("checkpoint 3 did not fall back to checkpoint 2's value")
	}
}

func TestTree_IndexOutOfRange(t *testing.T) {
	tr := newTestTree(2)
	if _, err := tr.GetLeaf(0, 4); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	hasher := field.NewMiMCHasher()
	if _, err := tr.SetLeaf(0, 4, hasher.HashSingle(field.NewF(1))); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestTree_ProofMatchesIndependentRootComputation(t *testing.T) {
	tr := newTestTree(3)
	hasher := field.NewMiMCHasher()

	val := hasher.HashSingle(field.NewF(42))
	if _, err := tr.SetLeaf(5, 6, val); err != nil {
		t.Fatalf("SetLeaf: %v", err)
	}
	proof, err := tr.GetProof(5, 6)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	root, err := tr.GetRoot(5)
	if err != nil {
		t.Fatalf("GetRoot: %v", err)
	}
	recomputed := RecomputeRoot(hasher, 6, proof.Value, proof.Siblings)
	if !recomputed.Equal(root) {
		t.Fatalf("recomputed root does not match stored root")
	}
}
