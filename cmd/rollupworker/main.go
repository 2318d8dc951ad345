// Copyright 2025 Certen Protocol
//
// cmd/rollupworker is the worker-pool binary of SPEC_FULL.md §2: it pulls
// work.standard_proof jobs, loads and proves against one Groth16 circuit per
// requested-action kind plus the shared aggregator circuit, writes proofs
// to the durable proof store, and increments parent fan-in counters
// (spec.md §4.3/§4.4). It shares no memory with cmd/rollupd -- both
// processes talk only through the KV-backed proof store and work queue --
// so in a real deployment the queue and proof store are wired to the same
// shared backend cmd/rollupd opens; this binary opens its own handle to
// the same KV path for that reason.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/aggregation"
	"github.com/certen/rollup-coordinator/internal/config"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
	"github.com/certen/rollup-coordinator/internal/worker"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "config.yaml", "path to the coordinator's YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("rollupworker: load config: %v", err)
	}

	db, err := dbm.NewGoLevelDB("rollup-state", cfg.KV.Path)
	if err != nil {
		log.Fatalf("rollupworker: open kv store at %s: %v", cfg.KV.Path, err)
	}
	defer db.Close()

	proofs := proofstore.New(kv.NewAdapter(db))
	q := queue.New()
	scheduler := aggregation.New(proofs, q, log.New(os.Stdout, "[Aggregation] ", log.LstdFlags))

	systems, err := loadCircuits(cfg.Prover.KeysDir)
	if err != nil {
		log.Fatalf("rollupworker: load circuits: %v", err)
	}

	pool := worker.New(proofs, q, scheduler, systems, log.New(os.Stdout, "[Worker] ", log.LstdFlags))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("rollupworker: starting %d workers", cfg.Prover.WorkerPoolSize)
	pool.Run(ctx, cfg.Prover.WorkerPoolSize)
	log.Printf("rollupworker: shut down")
}

// kindName maps a jobid.Kind to the filename stem cmd/rollupsetup saved its
// trusted-setup artifacts under; it must match that binary's kindName
// exactly or loadCircuits will fail to find the key files.
func kindName(kind jobid.Kind) string {
	switch kind {
	case jobid.KindRegisterUser:
		return "register_user"
	case jobid.KindClaimDeposit:
		return "claim_deposit"
	case jobid.KindL2Transfer:
		return "l2_transfer"
	case jobid.KindAddWithdrawal:
		return "add_withdrawal"
	case jobid.KindProcessWithdrawal:
		return "process_withdrawal"
	case jobid.KindAddDeposit:
		return "add_deposit"
	default:
		return fmt.Sprintf("kind_%d", kind)
	}
}

// loadCircuits loads the six op circuits (one per jobid.Kind in
// aggregation.OpKindOrder) plus the shared aggregator circuit from the
// trusted-setup artifacts cmd/rollupsetup wrote to keysDir. Every op kind
// shares the same OpCircuit shape (proofsystem.OpCircuit's doc comment: "a
// single circuit variant [to] serve both the single-tree ops ... and the
// dual-tree ops"), but each kind loads its own System and therefore carries
// its own fingerprint, per spec.md §4.2's "fingerprint table identifying
// each op circuit's allowed circuit hashes root" -- a proof from one kind's
// circuit must never verify as another kind's, even though their
// constraint systems are identical. Circuits are loaded, never compiled
// with a fresh groth16.Setup here, so this process's fingerprints agree
// with cmd/rollupd's.
func loadCircuits(keysDir string) (worker.Systems, error) {
	op := make(map[jobid.Kind]*proofsystem.System, len(aggregation.OpKindOrder))
	for _, kind := range aggregation.OpKindOrder {
		sys, err := proofsystem.Load(keysDir, kindName(kind))
		if err != nil {
			return worker.Systems{}, fmt.Errorf("load %s circuit (run cmd/rollupsetup first): %w", kindName(kind), err)
		}
		op[kind] = sys
	}

	aggSys, err := proofsystem.Load(keysDir, "aggregator")
	if err != nil {
		return worker.Systems{}, fmt.Errorf("load aggregator circuit (run cmd/rollupsetup first): %w", err)
	}

	return worker.Systems{Op: op, Agg: aggSys}, nil
}
