// Copyright 2025 Certen Protocol
//
// Package worker implements the proof-production pool of spec.md §5:
// "Workers are a pool of parallel threads that pull from the work
// topic [...] construct the witness for whatever job the JobId names,
// invoke the proof system, write the resulting proof, and signal the
// aggregation scheduler." It is the consumer side of
// internal/planner (leaf circuit inputs) and internal/aggregation
// (tree structure and fan-in bookkeeping); a worker shares no memory
// with either, trading only through the durable proof store and work
// queue, so this pool is meant to run in its own process
// (cmd/rollupworker).
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/certen/rollup-coordinator/internal/aggregation"
	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
)

// Systems bundles the compiled circuit systems a pool needs: one op
// circuit per requested-action kind, plus the single shared aggregator
// circuit every internal tree node (of any kind, any level) is proved
// against.
type Systems struct {
	Op  map[jobid.Kind]*proofsystem.System
	Agg *proofsystem.System
}

// Pool pulls JobIds off the work queue, produces their proofs, and
// signals the aggregation scheduler.
type Pool struct {
	proofs    *proofstore.Store
	queue     *queue.Queue
	scheduler *aggregation.Scheduler
	systems   Systems
	logger    *log.Logger
}

// New constructs a Pool. A nil logger falls back to a component-tagged
// default, matching the teacher's per-component logger construction.
func New(proofs *proofstore.Store, q *queue.Queue, scheduler *aggregation.Scheduler, systems Systems, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.New(log.Writer(), "[Worker] ", log.LstdFlags)
	}
	return &Pool{proofs: proofs, queue: q, scheduler: scheduler, systems: systems, logger: logger}
}

// Run starts n worker goroutines, each popping from work.standard_proof
// until ctx is canceled, and blocks until all of them have exited.
func (p *Pool) Run(ctx context.Context, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	for {
		payload, err := p.queue.Pop(ctx, queue.TopicStandardProof)
		if err != nil {
			// Context canceled: the pool is shutting down.
			return
		}
		id, err := jobid.Parse(string(payload))
		if err != nil {
			p.logger.Printf("worker %d: invalid job id %q: %v", workerID, payload, err)
			continue
		}
		if err := p.process(id); err != nil {
			p.logger.Printf("worker %d: process %s: %v", workerID, id.String(), err)
		}
	}
}

func (p *Pool) process(id jobid.ID) error {
	if root, dummy, err := p.scheduler.DummyRoot(id); err != nil {
		return fmt.Errorf("worker: check dummy root for %s: %w", id.String(), err)
	} else if dummy {
		return p.processDummy(id, root)
	}
	if id.Kind == jobid.KindAggregate {
		return p.processAggregate(id)
	}
	return p.processLeaf(id)
}

// processLeaf fetches id's circuit input (persisted by the planner under
// its TagInput slot), proves the op circuit for its kind, wraps the
// result in an Envelope, and signals the scheduler.
func (p *Pool) processLeaf(id jobid.ID) error {
	raw, err := p.proofs.GetBytes(planner.InputJobID(id))
	if err != nil {
		return fmt.Errorf("worker: fetch circuit input for %s: %w", id.String(), err)
	}
	in, err := planner.DecodeCircuitInput(id, raw)
	if err != nil {
		return fmt.Errorf("worker: decode circuit input for %s: %w", id.String(), err)
	}

	sys, ok := p.systems.Op[in.Kind]
	if !ok {
		return fmt.Errorf("worker: kind %d: %w", in.Kind, ErrNoOpSystem)
	}

	first, err := buildSlot(in.First)
	if err != nil {
		return fmt.Errorf("worker: build first slot for %s: %w", id.String(), err)
	}
	second, err := buildSlot(in.Second)
	if err != nil {
		return fmt.Errorf("worker: build second slot for %s: %w", id.String(), err)
	}

	proofBytes, err := sys.Prove(&proofsystem.OpCircuit{First: first, Second: second})
	if err != nil {
		return fmt.Errorf("worker: prove leaf %s: %w", id.String(), err)
	}

	envRaw, err := encodeEnvelope(Envelope{OldRoot: in.GlobalOldRoot, NewRoot: in.GlobalNewRoot, ProofBytes: proofBytes})
	if err != nil {
		return err
	}
	if err := p.proofs.SetProof(id, envRaw); err != nil {
		return fmt.Errorf("worker: persist leaf proof for %s: %w", id.String(), err)
	}
	return p.scheduler.MarkProofWritten(id)
}

// processDummy proves id as a self-loop at root: both endpoints of its
// transition are the same global state root, padding an odd-count fan-in
// position in the aggregation tree (internal/aggregation.Scheduler's
// BuildBlockTree). id.Kind tells us which circuit it was addressed
// against -- KindAggregate for an internal tree node, any op kind for a
// leaf-level (or whole-kind-empty) padding position -- since a Groth16
// proof is bound to the specific public-input values it was proved
// against and so cannot be reused across checkpoints the way a single
// globally shared dummy proof would require.
func (p *Pool) processDummy(id jobid.ID, root field.H) error {
	v := toVariable(root)
	var proofBytes []byte
	var err error
	if id.Kind == jobid.KindAggregate {
		proofBytes, err = p.systems.Agg.Prove(&proofsystem.AggregatorCircuit{
			LeftOldRoot:   v,
			LeftNewRoot:   v,
			RightOldRoot:  v,
			RightNewRoot:  v,
			ParentOldRoot: v,
			ParentNewRoot: v,
		})
	} else {
		sys, ok := p.systems.Op[id.Kind]
		if !ok {
			return fmt.Errorf("worker: dummy kind %d: %w", id.Kind, ErrNoOpSystem)
		}
		slot := selfLoopSlot(root)
		proofBytes, err = sys.Prove(&proofsystem.OpCircuit{First: slot, Second: slot})
	}
	if err != nil {
		return fmt.Errorf("worker: prove dummy %s: %w", id.String(), err)
	}

	envRaw, err := encodeEnvelope(Envelope{OldRoot: root, NewRoot: root, ProofBytes: proofBytes})
	if err != nil {
		return err
	}
	if err := p.proofs.SetProof(id, envRaw); err != nil {
		return fmt.Errorf("worker: persist dummy proof for %s: %w", id.String(), err)
	}
	return p.scheduler.MarkProofWritten(id)
}

// processAggregate fetches id's link record, reads both children's
// envelopes, proves the aggregator circuit chaining them, and signals
// the scheduler. A pass-through alias (HasRight=false) is resolved
// entirely by the scheduler itself and should never reach the queue.
func (p *Pool) processAggregate(id jobid.ID) error {
	link, err := p.scheduler.Link(id)
	if err != nil {
		return fmt.Errorf("worker: fetch link for %s: %w", id.String(), err)
	}
	if !link.HasRight {
		return fmt.Errorf("worker: %s: %w", id.String(), ErrNotQueueable)
	}
	if link.Fingerprint != p.systems.Agg.Fingerprint() {
		return fmt.Errorf("worker: %s: %w", id.String(), proofsystem.ErrFingerprintMismatch)
	}

	left, err := p.readEnvelope(link.Left)
	if err != nil {
		return fmt.Errorf("worker: read left child envelope for %s: %w", id.String(), err)
	}
	right, err := p.readEnvelope(link.Right)
	if err != nil {
		return fmt.Errorf("worker: read right child envelope for %s: %w", id.String(), err)
	}

	assignment := &proofsystem.AggregatorCircuit{
		LeftOldRoot:   toVariable(left.OldRoot),
		LeftNewRoot:   toVariable(left.NewRoot),
		RightOldRoot:  toVariable(right.OldRoot),
		RightNewRoot:  toVariable(right.NewRoot),
		ParentOldRoot: toVariable(left.OldRoot),
		ParentNewRoot: toVariable(right.NewRoot),
	}
	proofBytes, err := p.systems.Agg.Prove(assignment)
	if err != nil {
		return fmt.Errorf("worker: prove aggregate %s: %w", id.String(), err)
	}

	envRaw, err := encodeEnvelope(Envelope{OldRoot: left.OldRoot, NewRoot: right.NewRoot, ProofBytes: proofBytes})
	if err != nil {
		return err
	}
	if err := p.proofs.SetProof(id, envRaw); err != nil {
		return fmt.Errorf("worker: persist aggregate proof for %s: %w", id.String(), err)
	}
	return p.scheduler.MarkProofWritten(id)
}

func (p *Pool) readEnvelope(id jobid.ID) (Envelope, error) {
	raw, err := p.proofs.GetProof(id)
	if err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(raw)
}
