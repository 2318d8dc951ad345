// Copyright 2025 Certen Protocol
//
// Package aggregation implements the aggregation scheduler of spec.md
// §4.3: given the planner's per-kind leaf circuit inputs, it materializes
// the complete binary tree of aggregation jobs (arena-indexed by (level,
// index) per §9's design note, rather than pointer nodes), persists each
// non-leaf node's child links and required aggregator fingerprint, and
// tracks fan-in readiness through the proof store's per-JobId counter --
// "this encodes a fan-in barrier without any shared mutable planner-side
// state." Odd counts at any level are padded with a freshly addressed
// dummy node self-looping at its left sibling's own end root (spec.md
// §4.3's "dummy input whose state transition is a self-loop"): since a
// Groth16 proof is bound to the public inputs it was proved against, a
// dummy cannot be precomputed once and reused across checkpoints the way
// the rest of the aggregation tree's addressing is, so every padding
// position gets its own JobId (one a real node at that (level, index)
// could never occupy) and its self-loop root is persisted for the worker
// to witness against when it actually proves that position.
package aggregation

import (
	"fmt"
	"log"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
	"github.com/certen/rollup-coordinator/pkg/commitment"
)

// OpKindOrder is the fixed op-kind order the cross-kind fold (the final
// level of aggregation, above each kind's own tree) walks in, matching
// the planner's canonical order (spec.md §4.2) so the final block proof's
// shape is deterministic and replayable.
var OpKindOrder = []jobid.Kind{
	jobid.KindRegisterUser,
	jobid.KindClaimDeposit,
	jobid.KindL2Transfer,
	jobid.KindAddWithdrawal,
	jobid.KindProcessWithdrawal,
	jobid.KindAddDeposit,
}

// Scheduler builds and drives the aggregation tree for one checkpoint at
// a time.
type Scheduler struct {
	proofs *proofstore.Store
	queue  *queue.Queue
	logger *log.Logger
}

// New constructs a Scheduler over the given durable proof store and work
// queue.
func New(proofs *proofstore.Store, q *queue.Queue, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[Aggregation] ", log.LstdFlags)
	}
	return &Scheduler{proofs: proofs, queue: q, logger: logger}
}

// nodeRoot is a fully-addressed aggregation-tree node together with the
// global state-root transition its subtree proves, (OldRoot, NewRoot):
// either the root the circuit at ID actually proves (a real leaf or
// aggregation node), or, for a padding dummy, the self-loop value it must
// be proved against. Carrying the transition alongside the ID lets each
// fold level derive the next padding dummy's root without re-reading
// anything from the proof store.
type nodeRoot struct {
	ID      jobid.ID
	OldRoot field.H
	NewRoot field.H
}

// BuildBlockTree materializes the full aggregation tree for checkpoint cp:
// one binary tree per op kind (folding that kind's leaf JobIds, padding
// odd counts with a freshly addressed self-loop dummy), then one more
// binary fold across the six kinds' roots (same padding scheme), and
// finally aliases the single top node to jobid.Block(cp), the checkpoint's
// final block proof id. It enqueues every leaf and dummy JobId that does
// not already have a durable proof onto the work queue, and returns the
// block proof JobId the orchestrator should wait on.
//
// BuildBlockTree may be re-invoked for a checkpoint it has already built
// part or all of (the orchestrator retries its dispatch/proof/submit
// sequence against the same cp after a failed or interrupted tick). Every
// link it would write is only written the first time that exact node is
// seen, and a leaf or dummy already holding a durable proof is not
// re-pushed to the queue. Repeating a call for the same cp is therefore
// safe and resumes rather than double-counts.
func (s *Scheduler) BuildBlockTree(
	cp uint64,
	result *planner.Result,
	aggregatorFingerprint proofsystem.Fingerprint,
) (jobid.ID, error) {
	roots := make([]nodeRoot, 0, len(OpKindOrder))
	for _, kind := range OpKindOrder {
		leaves := result.ByKind[kind]
		for _, leaf := range leaves {
			if err := s.enqueueIfUnproven(leaf.JobID); err != nil {
				return jobid.ID{}, fmt.Errorf("aggregation: check leaf %s: %w", leaf.JobID.String(), err)
			}
		}
		root, err := s.buildKindTree(cp, kind, leaves, result.KindBoundary[kind], aggregatorFingerprint)
		if err != nil {
			return jobid.ID{}, fmt.Errorf("aggregation: build tree for kind %d: %w", kind, err)
		}
		roots = append(roots, root)
	}

	finalRoot, err := s.foldRoots(cp, roots, aggregatorFingerprint)
	if err != nil {
		return jobid.ID{}, fmt.Errorf("aggregation: fold cross-kind roots: %w", err)
	}

	blockID := jobid.Block(cp)
	aliased, err := s.linkExists(blockID)
	if err != nil {
		return jobid.ID{}, err
	}
	if !aliased {
		if err := s.alias(finalRoot.ID, blockID, aggregatorFingerprint); err != nil {
			return jobid.ID{}, fmt.Errorf("aggregation: alias final root to block proof: %w", err)
		}
	}
	return blockID, nil
}

// buildKindTree folds leaves (level 0, real op-circuit proofs, each
// carrying its own global root transition) up to a single root node. An
// empty leaf set degenerates to a single self-loop dummy at boundary (the
// combined root the planner recorded at the point this kind's step would
// have run), satisfying spec.md §8's "Producing a block with zero actions
// must still advance checkpoint_id and emit a valid dummy-aggregated
// proof."
func (s *Scheduler) buildKindTree(cp uint64, kind jobid.Kind, leaves []planner.OpCircuitInput, boundary field.H, aggFp proofsystem.Fingerprint) (nodeRoot, error) {
	if len(leaves) == 0 {
		id := jobid.Leaf(cp, kind, 0, jobid.TagProof)
		if err := s.markDummy(id, boundary); err != nil {
			return nodeRoot{}, err
		}
		if err := s.enqueueIfUnproven(id); err != nil {
			return nodeRoot{}, err
		}
		return nodeRoot{ID: id, OldRoot: boundary, NewRoot: boundary}, nil
	}

	current := make([]nodeRoot, len(leaves))
	for i, leaf := range leaves {
		current[i] = nodeRoot{ID: leaf.JobID, OldRoot: leaf.GlobalOldRoot, NewRoot: leaf.GlobalNewRoot}
	}

	level := uint8(1)
	for len(current) > 1 {
		next := make([]nodeRoot, 0, (len(current)+1)/2)
		for i := 0; i*2 < len(current); i++ {
			left := current[i*2]
			var right nodeRoot
			hasRight := i*2+1 < len(current)
			if hasRight {
				right = current[i*2+1]
			} else {
				var dummyID jobid.ID
				if level == 1 {
					// padding a leaf-level pair: the missing sibling is a
					// fresh position this kind's leaves never occupy.
					dummyID = jobid.Leaf(cp, kind, uint32(i*2+1), jobid.TagProof)
				} else {
					dummyID = jobid.AggregateForKind(cp, kind, level-1, uint64(i*2+1), jobid.TagProof)
				}
				if err := s.markDummy(dummyID, left.NewRoot); err != nil {
					return nodeRoot{}, err
				}
				if err := s.enqueueIfUnproven(dummyID); err != nil {
					return nodeRoot{}, err
				}
				right = nodeRoot{ID: dummyID, OldRoot: left.NewRoot, NewRoot: left.NewRoot}
			}
			parent := jobid.AggregateForKind(cp, kind, level, uint64(i), jobid.TagProof)
			exists, err := s.linkExists(parent)
			if err != nil {
				return nodeRoot{}, err
			}
			if !exists {
				if err := s.link(parent, Link{Left: left.ID, Right: right.ID, HasRight: true, Fingerprint: aggFp}); err != nil {
					return nodeRoot{}, err
				}
			}
			next = append(next, nodeRoot{ID: parent, OldRoot: left.OldRoot, NewRoot: right.NewRoot})
		}
		current = next
		level++
	}
	return current[0], nil
}

// foldRoots folds the six kinds' roots into a single node the same way
// buildKindTree folds leaves: every pairing here is an internal
// (aggregator-only) level, so odd-count padding always addresses its
// dummy under jobid.KindBlock rather than any of the six op kinds, a
// sub-namespace no real kind root or kind-level dummy ever occupies.
func (s *Scheduler) foldRoots(cp uint64, roots []nodeRoot, aggFp proofsystem.Fingerprint) (nodeRoot, error) {
	current := roots
	level := uint8(1)
	for len(current) > 1 {
		next := make([]nodeRoot, 0, (len(current)+1)/2)
		for i := 0; i*2 < len(current); i++ {
			left := current[i*2]
			var right nodeRoot
			hasRight := i*2+1 < len(current)
			if hasRight {
				right = current[i*2+1]
			} else {
				dummyID := jobid.AggregateForKind(cp, jobid.KindBlock, level-1, uint64(i*2+1), jobid.TagProof)
				if err := s.markDummy(dummyID, left.NewRoot); err != nil {
					return nodeRoot{}, err
				}
				if err := s.enqueueIfUnproven(dummyID); err != nil {
					return nodeRoot{}, err
				}
				right = nodeRoot{ID: dummyID, OldRoot: left.NewRoot, NewRoot: left.NewRoot}
			}
			parent := jobid.AggregateForKind(cp, jobid.KindBlock, level, uint64(i), jobid.TagProof)
			exists, err := s.linkExists(parent)
			if err != nil {
				return nodeRoot{}, err
			}
			if !exists {
				if err := s.link(parent, Link{Left: left.ID, Right: right.ID, HasRight: true, Fingerprint: aggFp}); err != nil {
					return nodeRoot{}, err
				}
			}
			next = append(next, nodeRoot{ID: parent, OldRoot: left.OldRoot, NewRoot: right.NewRoot})
		}
		current = next
		level++
	}
	return current[0], nil
}

// alias records a pass-through link from child to parent: a threshold-1
// node with no right sibling, used only to give the single top-of-tree
// proof a stable, checkpoint-addressed name (jobid.Block(cp)) regardless
// of how many internal levels it took to get there.
func (s *Scheduler) alias(child, parent jobid.ID, aggFp proofsystem.Fingerprint) error {
	return s.link(parent, Link{Left: child, HasRight: false, Fingerprint: aggFp})
}

// link persists parent's link record and a reverse parent-pointer from
// each of its children, so MarkProofWritten can walk from a freshly
// produced child proof up to its parent without any separate index.
func (s *Scheduler) link(parent jobid.ID, l Link) error {
	raw, err := encodeLink(l)
	if err != nil {
		return err
	}
	if err := s.proofs.SetBytes(linkKey(parent), raw); err != nil {
		return err
	}
	if err := s.proofs.SetBytes(parentPointerKey(l.Left), []byte(parent.String())); err != nil {
		return err
	}
	if l.HasRight {
		if err := s.proofs.SetBytes(parentPointerKey(l.Right), []byte(parent.String())); err != nil {
			return err
		}
	}
	return nil
}

// linkKey and parentPointerKey give the link record and the reverse
// parent pointer distinct proof-store bytes-namespace keys for the same
// underlying JobId, by tagging the id with TagAggregation and TagInput
// respectively (neither tag is used for the id's actual proof bytes).
func linkKey(id jobid.ID) jobid.ID {
	id.Tag = jobid.TagAggregation
	return id
}

func parentPointerKey(id jobid.ID) jobid.ID {
	id.Tag = jobid.TagInput
	// Leaf JobIds already use TagInput for their serialized circuit input
	// blob; flipping OpIndex's top bit carves out a private sub-namespace
	// for the parent pointer that can never collide with a real op index.
	id.OpIndex |= 0x80000000
	return id
}

// dummyRootKey gives a padding dummy's self-loop root value its own
// proof-store bytes-namespace key, distinct from both a real leaf's
// TagInput circuit-input blob and parentPointerKey's reserved top bit:
// only a dummy JobId (never a real leaf or aggregation node) is ever
// looked up under this key.
func dummyRootKey(id jobid.ID) jobid.ID {
	id.Tag = jobid.TagInput
	id.OpIndex |= 0x40000000
	return id
}

type dummyRootWire struct {
	Root field.H `json:"root"`
}

// markDummy durably records that id is a self-loop padding node proving
// root as both its old_root and new_root, if this is the first time id
// has been addressed this way. Idempotent so a repeated BuildBlockTree
// call for the same cp never overwrites an already-recorded dummy.
func (s *Scheduler) markDummy(id jobid.ID, root field.H) error {
	if _, err := s.proofs.GetBytes(dummyRootKey(id)); err == nil {
		return nil
	} else if err != proofstore.ErrNotFound {
		return err
	}
	raw, err := commitment.MarshalCanonical(dummyRootWire{Root: root})
	if err != nil {
		return err
	}
	return s.proofs.SetBytes(dummyRootKey(id), raw)
}

// DummyRoot reports whether id was addressed by BuildBlockTree as a
// self-loop padding node, and if so, the root its circuit must witness as
// both its old_root and new_root. The worker pool checks this before
// treating id as a real leaf or aggregation node.
func (s *Scheduler) DummyRoot(id jobid.ID) (field.H, bool, error) {
	raw, err := s.proofs.GetBytes(dummyRootKey(id))
	if err != nil {
		if err == proofstore.ErrNotFound {
			return field.H{}, false, nil
		}
		return field.H{}, false, err
	}
	var w dummyRootWire
	if err := commitment.CanonicalJSONUnmarshal(raw, &w); err != nil {
		return field.H{}, false, err
	}
	return w.Root, true, nil
}

// linkExists reports whether id already has a durable link record, i.e.
// whether some earlier call already built this node.
func (s *Scheduler) linkExists(id jobid.ID) (bool, error) {
	if _, err := s.proofs.GetBytes(linkKey(id)); err != nil {
		if err == proofstore.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// proofExists reports whether id's proof bytes have already been durably
// written, i.e. whether it still needs to be pushed onto the work queue.
func (s *Scheduler) proofExists(id jobid.ID) (bool, error) {
	if _, err := s.proofs.GetProof(id); err != nil {
		if err == proofstore.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// enqueueIfUnproven pushes id onto the work queue unless it already has a
// durable proof, so repeated BuildBlockTree calls for the same checkpoint
// never re-dispatch work a worker has already finished.
func (s *Scheduler) enqueueIfUnproven(id jobid.ID) error {
	proven, err := s.proofExists(id)
	if err != nil {
		return err
	}
	if !proven {
		s.queue.Push(queue.TopicStandardProof, []byte(id.String()))
	}
	return nil
}

// Link looks up the link record for a non-leaf JobId.
func (s *Scheduler) Link(parent jobid.ID) (Link, error) {
	raw, err := s.proofs.GetBytes(linkKey(parent))
	if err != nil {
		if err == proofstore.ErrNotFound {
			return Link{}, ErrNoSuchLink
		}
		return Link{}, err
	}
	return decodeLink(raw)
}

// MarkProofWritten is called once proof bytes have been durably written
// for id (by a worker producing a leaf or dummy proof, or by this function
// itself copying bytes through a pass-through alias). It walks up to id's
// parent, increments the parent's fan-in counter, and when the counter
// reaches the parent's threshold either enqueues the parent for
// aggregation (a real two-child fan-in) or copies the child's proof
// straight through (a threshold-1 alias) and recurses upward, per
// spec.md §4.3's ordering guarantee: "proofs across levels are
// total-ordered by dependency."
func (s *Scheduler) MarkProofWritten(id jobid.ID) error {
	parentRaw, err := s.proofs.GetBytes(parentPointerKey(id))
	if err != nil {
		if err == proofstore.ErrNotFound {
			// id has no parent: it is the checkpoint's final block proof.
			return nil
		}
		return err
	}
	parent, err := jobid.Parse(string(parentRaw))
	if err != nil {
		return fmt.Errorf("aggregation: parse parent pointer for %s: %w", id.String(), err)
	}

	link, err := s.Link(parent)
	if err != nil {
		return err
	}

	count, err := s.proofs.IncCounter(parent)
	if err != nil {
		return err
	}
	if count < link.Threshold() {
		return nil
	}

	if !link.HasRight {
		proof, err := s.proofs.GetProof(link.Left)
		if err != nil {
			return fmt.Errorf("aggregation: read pass-through child proof: %w", err)
		}
		if err := s.proofs.SetProof(parent, proof); err != nil {
			return err
		}
		s.logger.Printf("pass-through %s -> %s", link.Left.String(), parent.String())
		return s.MarkProofWritten(parent)
	}

	s.queue.Push(queue.TopicStandardProof, []byte(parent.String()))
	s.logger.Printf("enqueued aggregation job %s (level=%d)", parent.String(), parent.Level)
	return nil
}
