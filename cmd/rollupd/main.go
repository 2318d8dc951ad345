// Copyright 2025 Certen Protocol
//
// cmd/rollupd is the orchestrator binary of SPEC_FULL.md §2: it owns the
// KV write-transaction and drives one checkpoint's planning -> dispatch ->
// L1 submission -> checkpoint advance per tick (spec.md §4.7). It shares
// the teacher's single-main.go-wires-everything shape (flag.Parse, a
// signal-driven shutdown, a component-tagged logger per subsystem) but
// only wires the orchestrator seam; cmd/rollupworker and cmd/rollupapi own
// the other two seams spec.md's concurrency model calls out as separately
// schedulable (§5).
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/aggregation"
	"github.com/certen/rollup-coordinator/internal/config"
	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/metrics"
	"github.com/certen/rollup-coordinator/internal/orchestrator"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
	"github.com/certen/rollup-coordinator/internal/rpc"
	"github.com/certen/rollup-coordinator/internal/state"

	"github.com/prometheus/client_golang/prometheus"
)

// errNoL1NodeConfigured is returned by newConfiguredL1Node: spec.md §1
// keeps the concrete L1 node client out of scope, so this binary has
// nothing real to wire by default.
var errNoL1NodeConfigured = errors.New("rollupd: no L1 node client configured; wire one in newConfiguredL1Node")

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		configPath = flag.String("config", "config.yaml", "path to the coordinator's YAML configuration file")
		nodeID     = flag.Uint64("node-id", 1, "this RPC processor's node id, disambiguating signature JobIds across orchestrator instances")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("rollupd: load config: %v", err)
	}

	db, err := dbm.NewGoLevelDB("rollup-state", cfg.KV.Path)
	if err != nil {
		log.Fatalf("rollupd: open kv store at %s: %v", cfg.KV.Path, err)
	}
	defer db.Close()

	store := state.New(kv.NewAdapter(db), field.NewMiMCHasher(), proofsystem.TreeHeight, proofsystem.TreeHeight, proofsystem.TreeHeight)
	proofs := proofstore.New(kv.NewAdapter(db))
	q := queue.New()

	processor := rpc.NewProcessor(*nodeID, 1, proofs, log.New(os.Stdout, "[RPC] ", log.LstdFlags))
	plan := planner.New(store, proofs, log.New(os.Stdout, "[Planner] ", log.LstdFlags))
	scheduler := aggregation.New(proofs, q, log.New(os.Stdout, "[Aggregation] ", log.LstdFlags))

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("rollupd: register metrics: %v", err)
	}

	// Load (never re-run) the aggregator circuit's trusted setup: cmd/rollupd
	// and cmd/rollupworker must agree on the exact same fingerprint, which
	// only holds if both load the artifact cmd/rollupsetup produced rather
	// than each calling proofsystem.Setup (randomized) independently.
	aggSystem, err := proofsystem.Load(cfg.Prover.KeysDir, "aggregator")
	if err != nil {
		log.Fatalf("rollupd: load aggregator circuit from %s (run cmd/rollupsetup first): %v", cfg.Prover.KeysDir, err)
	}

	l1node, err := newConfiguredL1Node(cfg.L1)
	if err != nil {
		log.Fatalf("rollupd: configure l1 node: %v", err)
	}

	orch := orchestrator.New(
		q, processor, plan, scheduler, proofs, store, l1node,
		aggSystem.Fingerprint(), cfg.Orchestrator, cfg.Prover.DevMode, m,
		log.New(os.Stdout, "[Orchestrator] ", log.LstdFlags),
	)

	// Recover restores the checkpoint counter, bootstrapped flag, and block
	// UTXO/script from the durable cursor cmd/rollupd saved after its last
	// successful commit, so a restart resumes instead of replanning and
	// resubmitting already-finalized checkpoints (spec.md §8 scenario 6).
	if err := orch.Recover(); err != nil {
		log.Fatalf("rollupd: recover orchestrator cursor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("rollupd: starting orchestrator loop (checkpoint %d)", orch.Checkpoint())
	orch.Run(ctx)
	log.Printf("rollupd: shut down at checkpoint %d", orch.Checkpoint())
}

// newConfiguredL1Node is a seam for wiring a real Bitcoin-like L1 node
// client against cfg; spec.md §1 keeps "an L1 node client (only its
// get_utxos/get_raw_tx/send_raw_tx/mine interface is used)" out of scope,
// so no concrete client ships in this repository. Operators supply their
// own orchestrator.L1Node implementation here.
func newConfiguredL1Node(cfg config.L1Config) (orchestrator.L1Node, error) {
	return nil, errNoL1NodeConfigured
}
