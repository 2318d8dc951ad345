// Copyright 2025 Certen Protocol
//
// cmd/rollupapi is the read-only HTTP surface binary of SPEC_FULL.md §2: it
// opens the same KV path cmd/rollupd writes to and serves ledger state and
// (when api.expose_proof_store_api is set) proof-store introspection over
// plain net/http, mirroring the teacher's main.go http.ServeMux wiring and
// graceful-shutdown sequence. The RPC ingestion transport itself stays out
// of scope (spec.md §1); this binary is the read side only.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/rollup-coordinator/internal/api"
	"github.com/certen/rollup-coordinator/internal/config"
	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/state"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "config.yaml", "path to the coordinator's YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("rollupapi: load config: %v", err)
	}

	db, err := dbm.NewGoLevelDB("rollup-state", cfg.KV.Path)
	if err != nil {
		log.Fatalf("rollupapi: open kv store at %s: %v", cfg.KV.Path, err)
	}
	defer db.Close()

	adapter := kv.NewAdapter(db)
	store := state.New(adapter, field.NewMiMCHasher(), proofsystem.TreeHeight, proofsystem.TreeHeight, proofsystem.TreeHeight)
	proofs := proofstore.New(adapter)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	ledgerHandlers := api.NewLedgerHandlers(store, log.New(os.Stdout, "[LedgerAPI] ", log.LstdFlags))
	mux.HandleFunc("/api/ledger/root", ledgerHandlers.HandleRoot)
	mux.HandleFunc("/api/ledger/user/", ledgerHandlers.HandleUser)
	mux.HandleFunc("/api/ledger/deposit/", ledgerHandlers.HandleDeposit)
	mux.HandleFunc("/api/ledger/withdrawal/", ledgerHandlers.HandleWithdrawal)

	if cfg.API.ExposeProofStoreAPI {
		log.Printf("rollupapi: proof store introspection enabled")
		proofHandlers := api.NewProofHandlers(proofs, log.New(os.Stdout, "[ProofAPI] ", log.LstdFlags))
		mux.HandleFunc("/api/proofs/", func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Path) > len("/api/proofs/") && r.URL.Path[len(r.URL.Path)-len("/counter"):] == "/counter" {
				proofHandlers.HandleGetCounter(w, r)
				return
			}
			proofHandlers.HandleGetProof(w, r)
		})
	} else {
		log.Printf("rollupapi: proof store introspection disabled (api.expose_proof_store_api is false)")
	}

	httpServer := &http.Server{
		Addr:    cfg.API.BindAddress,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("rollupapi: listening on %s", cfg.API.BindAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("rollupapi: serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("rollupapi: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("rollupapi: shutdown error: %v", err)
	}
}
