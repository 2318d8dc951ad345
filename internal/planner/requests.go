// Copyright 2025 Certen Protocol
//
// Package planner implements the block planner of spec.md §4.2: the
// deterministic, order-sensitive process that folds a batch of requested
// actions into the L2 state tree and emits the leaf JobIds the
// aggregation scheduler builds its binary tree from. The fixed global
// order (register user, claim deposit, transfer, add withdrawal, process
// withdrawal, add deposit) is grounded on original_source's
// op_processor.rs dispatch sequence in
// city_rollup_core_orchestrator, carried forward unchanged since spec.md
// §4.2 states it as a literal invariant rather than an implementation
// detail.
package planner

import (
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/state"
)

// RegisterUserRequest is the normalized form of an RPC register-user
// action (spec.md §4.2 step 1).
type RegisterUserRequest struct {
	PublicKey [4]uint64
}

// ClaimDepositRequest is the normalized form of an RPC claim-deposit
// action (step 2). SignatureProofID names the raw signature blob the RPC
// processor persisted for this request (spec.md §4.5); the zero ID means
// no signature was attached.
type ClaimDepositRequest struct {
	DepositID        uint64
	ClaimantUserID   uint64
	SignatureProofID jobid.ID
}

// TransferRequest is the normalized form of an RPC L2-transfer action
// (step 3). The recipient never supplies a nonce, per spec.md §4.2.
type TransferRequest struct {
	SenderID         uint64
	RecipientID      uint64
	Value            uint64
	Nonce            uint64
	SignatureProofID jobid.ID
}

// AddWithdrawalRequest is the normalized form of an RPC add-withdrawal
// action (step 4). WithdrawalID is assigned by the planner from the
// block's next_add_withdrawal_id counter, not supplied by the caller.
type AddWithdrawalRequest struct {
	UserID           uint64
	Nonce            uint64
	Address          state.Hash160
	AddressType      state.AddressType
	Value            uint64
	SignatureProofID jobid.ID
}

// ProcessWithdrawalRequest is the normalized form of a process-withdrawal
// command (step 5): an operator or orchestrator-internal signal to
// process the next pending withdrawal in FIFO order, the withdrawal id
// coming from the block's next_process_withdrawal_id counter rather than
// from the request itself.
type ProcessWithdrawalRequest struct{}

// AddDepositRequest is the normalized form of an observed L1 deposit
// (step 6). DepositID is assigned by the planner from the block's
// next_deposit_id counter.
type AddDepositRequest struct {
	Value     uint64
	Txid      state.Hash256
	PublicKey [33]byte
}

// RequestBundle groups every requested action for one block by kind, in
// the order the RPC processor emitted them within each kind (spec.md
// §4.2 "Within a kind, the order is the order the RPC processor emitted
// them").
type RequestBundle struct {
	RegisterUser      []RegisterUserRequest
	ClaimDeposit      []ClaimDepositRequest
	Transfer          []TransferRequest
	AddWithdrawal     []AddWithdrawalRequest
	ProcessWithdrawal []ProcessWithdrawalRequest
	AddDeposit        []AddDepositRequest
}

// Len returns the total number of requested actions across every kind.
func (b RequestBundle) Len() int {
	return len(b.RegisterUser) + len(b.ClaimDeposit) + len(b.Transfer) +
		len(b.AddWithdrawal) + len(b.ProcessWithdrawal) + len(b.AddDeposit)
}
