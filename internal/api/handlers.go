// Copyright 2025 Certen Protocol
//
// Package api implements the read-only HTTP surface cmd/rollupapi exposes,
// grounded on the teacher's pkg/server handlers (ledger_handlers.go,
// proof_handlers.go): a plain net/http.ServeMux, one handler struct per
// resource wrapping the stores it reads from, JSON responses written
// through a shared writeJSON/writeError pair, and query-parameter parsing
// via strconv rather than a router framework.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/state"
)

// LedgerHandlers serves read-only queries over the state tree set: user,
// deposit, and withdrawal records plus the aggregate state root, all as of
// a caller-supplied checkpoint.
type LedgerHandlers struct {
	store  *state.Store
	logger *log.Logger
}

// NewLedgerHandlers constructs the ledger query handlers.
func NewLedgerHandlers(store *state.Store, logger *log.Logger) *LedgerHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[LedgerAPI] ", log.LstdFlags)
	}
	return &LedgerHandlers{store: store, logger: logger}
}

// HandleRoot handles GET /api/ledger/root?checkpoint=N.
func (h *LedgerHandlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	cp, ok := h.parseCheckpoint(w, r)
	if !ok {
		return
	}
	root, err := h.store.Root(cp)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "ROOT_UNAVAILABLE", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"checkpoint": cp,
		"root":       root.Hex(),
	})
}

// HandleUser handles GET /api/ledger/user/{id}?checkpoint=N.
func (h *LedgerHandlers) HandleUser(w http.ResponseWriter, r *http.Request) {
	cp, ok := h.parseCheckpoint(w, r)
	if !ok {
		return
	}
	userID, ok := h.parseTrailingID(w, r, "/api/ledger/user/")
	if !ok {
		return
	}
	u, err := h.store.GetUser(cp, userID)
	if errors.Is(err, state.ErrUserNotFound) {
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// HandleDeposit handles GET /api/ledger/deposit/{id}?checkpoint=N.
func (h *LedgerHandlers) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	cp, ok := h.parseCheckpoint(w, r)
	if !ok {
		return
	}
	depositID, ok := h.parseTrailingID(w, r, "/api/ledger/deposit/")
	if !ok {
		return
	}
	d, err := h.store.GetDeposit(cp, depositID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "DEPOSIT_NOT_FOUND", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// HandleWithdrawal handles GET /api/ledger/withdrawal/{id}?checkpoint=N.
func (h *LedgerHandlers) HandleWithdrawal(w http.ResponseWriter, r *http.Request) {
	cp, ok := h.parseCheckpoint(w, r)
	if !ok {
		return
	}
	withdrawalID, ok := h.parseTrailingID(w, r, "/api/ledger/withdrawal/")
	if !ok {
		return
	}
	wd, err := h.store.GetWithdrawal(cp, withdrawalID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "WITHDRAWAL_NOT_FOUND", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, wd)
}

func (h *LedgerHandlers) parseCheckpoint(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	param := r.URL.Query().Get("checkpoint")
	if param == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_CHECKPOINT", "checkpoint query parameter is required")
		return 0, false
	}
	cp, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_CHECKPOINT", "checkpoint must be a non-negative integer")
		return 0, false
	}
	return cp, true
}

func (h *LedgerHandlers) parseTrailingID(w http.ResponseWriter, r *http.Request, prefix string) (uint64, bool) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	rest = strings.SplitN(rest, "/", 2)[0]
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "path must end in a numeric id")
		return 0, false
	}
	return id, true
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("encode response: %v", err)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}

// ProofHandlers serves read-only introspection over the proof store:
// proof bytes and fan-in counters addressed by their JobId's hex encoding.
// This surface is gated behind api.expose_proof_store_api since it exposes
// internal pipeline state an external auditor would not otherwise need.
type ProofHandlers struct {
	proofs *proofstore.Store
	logger *log.Logger
}

// NewProofHandlers constructs the proof-store introspection handlers.
func NewProofHandlers(proofs *proofstore.Store, logger *log.Logger) *ProofHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ProofAPI] ", log.LstdFlags)
	}
	return &ProofHandlers{proofs: proofs, logger: logger}
}

// HandleGetProof handles GET /api/proofs/{job_id_hex}.
func (h *ProofHandlers) HandleGetProof(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseJobID(w, r, "/api/proofs/")
	if !ok {
		return
	}
	proof, err := h.proofs.GetProof(id)
	if errors.Is(err, proofstore.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "PROOF_NOT_FOUND", "no proof stored under that job id")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      id.String(),
		"proof_bytes": proof,
	})
}

// HandleGetCounter handles GET /api/proofs/{job_id_hex}/counter.
func (h *ProofHandlers) HandleGetCounter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/proofs/")
	path = strings.TrimSuffix(path, "/counter")
	id, err := jobid.Parse(path)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JOB_ID", err.Error())
		return
	}
	n, err := h.proofs.Counter(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  id.String(),
		"counter": n,
	})
}

func (h *ProofHandlers) parseJobID(w http.ResponseWriter, r *http.Request, prefix string) (jobid.ID, bool) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	rest = strings.SplitN(rest, "/", 2)[0]
	id, err := jobid.Parse(rest)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JOB_ID", err.Error())
		return jobid.ID{}, false
	}
	return id, true
}

func (h *ProofHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("encode response: %v", err)
	}
}

func (h *ProofHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
