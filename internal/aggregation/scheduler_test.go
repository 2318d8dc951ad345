package aggregation

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
)

func newTestScheduler() (*Scheduler, *proofstore.Store, *queue.Queue) {
	store := proofstore.New(kv.NewAdapter(dbm.NewMemDB()))
	q := queue.New()
	return New(store, q, nil), store, q
}

// rootAt builds a distinct, deterministic field.H for test fixtures; the
// actual value carries no meaning beyond being distinguishable from its
// neighbors.
func rootAt(n uint64) field.H {
	return field.H{field.NewF(n)}
}

// buildResult fabricates a planner.Result the way internal/planner.Plan
// would have: each kind's KindBoundary is the running root at the point
// its step began, and its leaves (if any) chain GlobalOldRoot/GlobalNewRoot
// starting from start and advancing by one synthetic root per leaf, in
// OpKindOrder.
func buildResult(cp uint64, start field.H, counts map[jobid.Kind]int) *planner.Result {
	result := &planner.Result{
		ByKind:       make(map[jobid.Kind][]planner.OpCircuitInput),
		KindBoundary: make(map[jobid.Kind]field.H),
	}
	running := start
	n := uint64(1)
	for _, kind := range OpKindOrder {
		result.KindBoundary[kind] = running
		count := counts[kind]
		if count == 0 {
			continue
		}
		leaves := make([]planner.OpCircuitInput, count)
		for i := 0; i < count; i++ {
			next := rootAt(n)
			n++
			leaves[i] = planner.OpCircuitInput{
				JobID:         jobid.Leaf(cp, kind, uint32(i), jobid.TagProof),
				Kind:          kind,
				GlobalOldRoot: running,
				GlobalNewRoot: next,
			}
			running = next
		}
		result.ByKind[kind] = leaves
	}
	return result
}

// drainToBlockProof simulates every downstream worker: pop whatever the
// scheduler queued, fabricate proof bytes for it, and report it written,
// until the checkpoint's block proof exists. This exercises the full
// fan-in/propagation chain (leaf and dummy proofs, kind-internal
// aggregation nodes, the cross-kind fold, and the final pass-through
// alias) the way a fleet of proof workers would drive it in production.
func drainToBlockProof(t *testing.T, s *Scheduler, proofs *proofstore.Store, q *queue.Queue, blockID jobid.ID) {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		if _, err := proofs.GetProof(blockID); err == nil {
			return
		}
		batch := q.DrainAll(queue.TopicStandardProof)
		if len(batch) == 0 {
			t.Fatalf("queue drained with no block proof yet")
		}
		for _, raw := range batch {
			id, err := jobid.Parse(string(raw))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if err := proofs.SetProof(id, []byte("proof-"+id.String())); err != nil {
				t.Fatalf("SetProof: %v", err)
			}
			if err := s.MarkProofWritten(id); err != nil {
				t.Fatalf("MarkProofWritten: %v", err)
			}
		}
	}
	t.Fatalf("did not converge to a block proof")
}

// TestBuildBlockTree_ThreeLeaves is scenario 5 of spec.md §8: 3
// register-user actions schedule 4 leaves (3 real + 1 self-loop dummy).
func TestBuildBlockTree_ThreeLeaves(t *testing.T) {
	s, proofs, q := newTestScheduler()
	result := buildResult(1, rootAt(0), map[jobid.Kind]int{jobid.KindRegisterUser: 3})

	blockID, err := s.BuildBlockTree(1, result, proofsystem.Fingerprint{0xAA})
	if err != nil {
		t.Fatalf("BuildBlockTree: %v", err)
	}
	if blockID != jobid.Block(1) {
		t.Fatalf("expected block id %v, got %v", jobid.Block(1), blockID)
	}
	if q.Len(queue.TopicStandardProof) < 3 {
		t.Fatalf("expected at least the 3 leaf jobs enqueued, got %d", q.Len(queue.TopicStandardProof))
	}

	// level 1 pairs (leaf0,leaf1) and (leaf2,dummy) -- the second pair's
	// right child must be a freshly addressed self-loop dummy at leaf2's
	// own end root, not some other kind's or checkpoint's position.
	level1Node1 := jobid.AggregateForKind(1, jobid.KindRegisterUser, 1, 1, jobid.TagProof)
	link, err := s.Link(level1Node1)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	dummyRoot, isDummy, err := s.DummyRoot(link.Right)
	if err != nil {
		t.Fatalf("DummyRoot: %v", err)
	}
	if !isDummy {
		t.Fatalf("expected right child %v to be addressed as a dummy", link.Right)
	}
	wantRoot := result.ByKind[jobid.KindRegisterUser][2].GlobalNewRoot
	if dummyRoot != wantRoot {
		t.Fatalf("expected dummy self-loop root %v, got %v", wantRoot, dummyRoot)
	}

	drainToBlockProof(t, s, proofs, q, blockID)
}

// TestBuildBlockTree_EmptyBundle is the zero-actions boundary case: every
// kind is empty, so every kind's root is a self-loop dummy at that kind's
// KindBoundary, and the final block proof must still become available
// once every dummy (and dummy-vs-dummy fold node) in the tree is proved.
func TestBuildBlockTree_EmptyBundle(t *testing.T) {
	s, proofs, q := newTestScheduler()
	result := buildResult(3, rootAt(100), map[jobid.Kind]int{})

	blockID, err := s.BuildBlockTree(3, result, proofsystem.Fingerprint{0xBB})
	if err != nil {
		t.Fatalf("BuildBlockTree: %v", err)
	}
	if blockID != jobid.Block(3) {
		t.Fatalf("expected block id %v, got %v", jobid.Block(3), blockID)
	}
	drainToBlockProof(t, s, proofs, q, blockID)
}

// TestMarkProofWritten_AliasPropagatesToBlock checks the pass-through
// alias chain: once the single top-of-tree node's proof is written, it
// must propagate straight through to jobid.Block(cp) without requiring a
// second child.
func TestMarkProofWritten_AliasPropagatesToBlock(t *testing.T) {
	s, proofs, q := newTestScheduler()
	result := buildResult(9, rootAt(0), map[jobid.Kind]int{jobid.KindRegisterUser: 1})
	leaf := result.ByKind[jobid.KindRegisterUser][0].JobID

	blockID, err := s.BuildBlockTree(9, result, proofsystem.Fingerprint{0xCC})
	if err != nil {
		t.Fatalf("BuildBlockTree: %v", err)
	}
	// this kind's tree is a single real leaf with no aggregation node, so
	// the cross-kind fold pairs it directly against the other five kinds'
	// own dummy roots; only the leaf itself still needs a worker to
	// produce and report its proof.
	if err := proofs.SetProof(leaf, []byte("leaf-proof")); err != nil {
		t.Fatalf("SetProof: %v", err)
	}
	if err := s.MarkProofWritten(leaf); err != nil {
		t.Fatalf("MarkProofWritten(leaf): %v", err)
	}

	drainToBlockProof(t, s, proofs, q, blockID)
	got, err := proofs.GetProof(blockID)
	if err != nil {
		t.Fatalf("expected block proof to be set: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected non-empty block proof")
	}
}

// TestBuildBlockTree_ResumeDoesNotDoubleRegisterDummies is scenario 6 of
// spec.md §8: the orchestrator crashes and restarts mid-checkpoint, which
// re-invokes BuildBlockTree for the same cp before anything it queued has
// been drained. Re-building an all-empty bundle's tree must not corrupt or
// re-derive a different self-loop root for a dummy already addressed by
// the first call.
func TestBuildBlockTree_ResumeDoesNotDoubleRegisterDummies(t *testing.T) {
	s, proofs, q := newTestScheduler()
	cp := uint64(7)
	result := buildResult(cp, rootAt(0), map[jobid.Kind]int{})

	blockID1, err := s.BuildBlockTree(cp, result, proofsystem.Fingerprint{0xDD})
	if err != nil {
		t.Fatalf("BuildBlockTree (first call): %v", err)
	}

	dummyLeaf := jobid.Leaf(cp, jobid.KindRegisterUser, 0, jobid.TagProof)
	root1, ok, err := s.DummyRoot(dummyLeaf)
	if err != nil {
		t.Fatalf("DummyRoot: %v", err)
	}
	if !ok {
		t.Fatalf("expected %v to be registered as a dummy", dummyLeaf)
	}

	blockID2, err := s.BuildBlockTree(cp, result, proofsystem.Fingerprint{0xDD})
	if err != nil {
		t.Fatalf("BuildBlockTree (second call, simulating post-crash retry): %v", err)
	}
	if blockID2 != blockID1 {
		t.Fatalf("expected a stable block id across repeated calls, got %v then %v", blockID1, blockID2)
	}

	root2, ok, err := s.DummyRoot(dummyLeaf)
	if err != nil {
		t.Fatalf("DummyRoot: %v", err)
	}
	if !ok || root2 != root1 {
		t.Fatalf("dummy root changed across repeated calls: %v -> %v", root1, root2)
	}

	drainToBlockProof(t, s, proofs, q, blockID1)
}

// TestBuildBlockTree_ResumeDoesNotRequeueProvenLeaves covers the other half
// of scenario 6: a leaf a worker already proved before the crash must not
// be pushed back onto the work queue when the orchestrator's retry
// re-invokes BuildBlockTree for the same checkpoint. Only the still-missing
// work is re-enqueued: the unproven leaf first, then the padding dummies
// (five empty kinds' dummies plus the cross-kind fold's one), none of which
// were proved before the crash.
func TestBuildBlockTree_ResumeDoesNotRequeueProvenLeaves(t *testing.T) {
	s, proofs, q := newTestScheduler()
	cp := uint64(11)
	result := buildResult(cp, rootAt(0), map[jobid.Kind]int{jobid.KindRegisterUser: 2})
	leaves := result.ByKind[jobid.KindRegisterUser]

	blockID, err := s.BuildBlockTree(cp, result, proofsystem.Fingerprint{0xEE})
	if err != nil {
		t.Fatalf("BuildBlockTree (first call): %v", err)
	}

	// A worker proves the first leaf and reports it, then the process
	// crashes before the second leaf is ever picked up.
	if err := proofs.SetProof(leaves[0].JobID, []byte("leaf-proof-0")); err != nil {
		t.Fatalf("SetProof: %v", err)
	}
	if err := s.MarkProofWritten(leaves[0].JobID); err != nil {
		t.Fatalf("MarkProofWritten: %v", err)
	}
	q.DrainAll(queue.TopicStandardProof)

	blockID2, err := s.BuildBlockTree(cp, result, proofsystem.Fingerprint{0xEE})
	if err != nil {
		t.Fatalf("BuildBlockTree (second call, simulating post-crash retry): %v", err)
	}
	if blockID2 != blockID {
		t.Fatalf("expected a stable block id across repeated calls")
	}

	requeued := q.DrainAll(queue.TopicStandardProof)
	if len(requeued) != 7 {
		t.Fatalf("expected the unproven leaf plus 6 unproven dummies re-enqueued, got %d entries", len(requeued))
	}
	for i, raw := range requeued {
		id, err := jobid.Parse(string(raw))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if i == 0 && id != leaves[1].JobID {
			t.Fatalf("expected the unproven leaf %v re-enqueued first, got %v", leaves[1].JobID, id)
		}
		if id == leaves[0].JobID {
			t.Fatalf("proven leaf %v was re-enqueued", id)
		}
		if err := proofs.SetProof(id, []byte("proof-"+id.String())); err != nil {
			t.Fatalf("SetProof: %v", err)
		}
		if err := s.MarkProofWritten(id); err != nil {
			t.Fatalf("MarkProofWritten: %v", err)
		}
	}
	drainToBlockProof(t, s, proofs, q, blockID)
}
