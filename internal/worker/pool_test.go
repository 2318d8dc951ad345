package worker

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/aggregation"
	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
	"github.com/certen/rollup-coordinator/internal/state"
)

// newTestSystems compiles one OpCircuit system, shared across every op
// kind, and one AggregatorCircuit system. Production wiring gives each
// kind its own Setup call; sharing one here only keeps this test's
// trusted setup cost down, since the compiled circuit shape does not
// depend on which kind it is registered under.
func newTestSystems(t *testing.T) Systems {
	t.Helper()
	opSys, err := proofsystem.Setup(&proofsystem.OpCircuit{})
	if err != nil {
		t.Fatalf("Setup(OpCircuit): %v", err)
	}
	aggSys, err := proofsystem.Setup(&proofsystem.AggregatorCircuit{})
	if err != nil {
		t.Fatalf("Setup(AggregatorCircuit): %v", err)
	}
	op := make(map[jobid.Kind]*proofsystem.System, len(aggregation.OpKindOrder))
	for _, kind := range aggregation.OpKindOrder {
		op[kind] = opSys
	}
	return Systems{Op: op, Agg: aggSys}
}

// drainAndProcess repeatedly drains work.standard_proof and processes
// every job popped off it, until the topic goes dry. It bounds the
// iteration count rather than looping forever, since a scheduler/worker
// bug that fails to converge should fail the test instead of hanging it.
func drainAndProcess(t *testing.T, p *Pool, q *queue.Queue) {
	t.Helper()
	for iter := 0; iter < 64; iter++ {
		items := q.DrainAll(queue.TopicStandardProof)
		if len(items) == 0 {
			return
		}
		for _, item := range items {
			id, err := jobid.Parse(string(item))
			if err != nil {
				t.Fatalf("parse job id %q: %v", item, err)
			}
			if err := p.process(id); err != nil {
				t.Fatalf("process %s: %v", id.String(), err)
			}
		}
	}
	t.Fatalf("work.standard_proof did not drain within the iteration bound")
}

// TestPool_RegisterUserBlockProducesBlockProof drives a single-action
// block (one RegisterUser) end to end: planner emits the leaf circuit
// input, the aggregation scheduler builds the tree (five empty kinds fall
// back to a self-loop dummy at their KindBoundary, the sixth is the one
// real leaf), and the worker pool proves every queued job -- leaves,
// dummies, and aggregation nodes alike -- until the checkpoint's block
// proof envelope is durably readable.
func TestPool_RegisterUserBlockProducesBlockProof(t *testing.T) {
	systems := newTestSystems(t)

	proofs := proofstore.New(kv.NewAdapter(dbm.NewMemDB()))

	s := state.New(kv.NewAdapter(dbm.NewMemDB()), field.NewMiMCHasher(), 8, 8, 8)
	p := planner.New(s, proofs, nil)

	bundle := planner.RequestBundle{
		RegisterUser: []planner.RegisterUserRequest{{PublicKey: [4]uint64{1, 2, 3, 4}}},
	}
	result, err := p.Plan(1, state.BlockState{}, bundle)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	q := queue.New()
	scheduler := aggregation.New(proofs, q, nil)
	blockID, err := scheduler.BuildBlockTree(1, result, systems.Agg.Fingerprint())
	if err != nil {
		t.Fatalf("BuildBlockTree: %v", err)
	}

	pool := New(proofs, q, scheduler, systems, nil)
	drainAndProcess(t, pool, q)

	raw, err := proofs.GetProof(blockID)
	if err != nil {
		t.Fatalf("GetProof(blockID): %v", err)
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if len(env.ProofBytes) == 0 {
		t.Fatalf("expected non-empty block proof bytes")
	}
}
