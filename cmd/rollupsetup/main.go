// Copyright 2025 Certen Protocol
//
// cmd/rollupsetup is the one-time trusted-setup binary, grounded directly
// on the teacher's cmd/bls-zk-setup (bls_zkp.RunSetupCLI): it compiles
// every circuit this coordinator proves against -- one per requested-
// action kind plus the shared aggregator circuit -- runs Groth16.Setup
// once each, and writes the resulting constraint-system/proving-key/
// verifying-key triples to -keys-dir. cmd/rollupd and cmd/rollupworker
// both load from that directory rather than each running their own
// randomized setup, which would otherwise mint circuits with different
// keys (and therefore different fingerprints) in every process.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/certen/rollup-coordinator/internal/aggregation"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
)

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

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	keysDir := flag.String("keys-dir", "./keys", "directory to write the per-circuit trusted-setup artifacts to")
	flag.Parse()

	if err := os.MkdirAll(*keysDir, 0o755); err != nil {
		log.Fatalf("rollupsetup: create keys dir %s: %v", *keysDir, err)
	}

	for _, kind := range aggregation.OpKindOrder {
		name := kindName(kind)
		log.Printf("rollupsetup: running trusted setup for %s circuit", name)
		sys, err := proofsystem.Setup(&proofsystem.OpCircuit{})
		if err != nil {
			log.Fatalf("rollupsetup: setup %s circuit: %v", name, err)
		}
		if err := sys.Save(*keysDir, name); err != nil {
			log.Fatalf("rollupsetup: save %s circuit: %v", name, err)
		}
		log.Printf("rollupsetup: %s circuit fingerprint %x", name, sys.Fingerprint())
	}

	log.Printf("rollupsetup: running trusted setup for aggregator circuit")
	aggSys, err := proofsystem.Setup(&proofsystem.AggregatorCircuit{})
	if err != nil {
		log.Fatalf("rollupsetup: setup aggregator circuit: %v", err)
	}
	if err := aggSys.Save(*keysDir, "aggregator"); err != nil {
		log.Fatalf("rollupsetup: save aggregator circuit: %v", err)
	}
	log.Printf("rollupsetup: aggregator circuit fingerprint %x", aggSys.Fingerprint())

	log.Printf("rollupsetup: wrote trusted-setup artifacts to %s", *keysDir)
}
