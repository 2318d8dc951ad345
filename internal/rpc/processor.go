// Copyright 2025 Certen Protocol
//
// Package rpc implements the RPC processor of spec.md §4.5: it normalizes
// queued requests into the planner's request types, persisting any
// attached raw signature blob under a deterministic JobId keyed by
// (rpc-node-id, checkpoint_id, kind, index) so a retried request (the
// transport promises only at-least-once delivery) overwrites the same
// content-addressed slot rather than minting a new one. Actual duplicate
// rejection -- e.g. a replayed claim-deposit request naming an
// already-claimed deposit -- is enforced downstream by internal/state's
// invariant checks, not here; this package's only state-changing action
// is set_bytes.
package rpc

import (
	"fmt"
	"log"
	"sync"

	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/state"
)

// RegisterUserMessage is the wire shape of an rpc.register_user request.
type RegisterUserMessage struct {
	PublicKey [4]uint64
}

// ClaimDepositMessage is the wire shape of an rpc.claim_deposit request.
// RequestIndex is assigned by the caller (a per-client or per-session
// sequence number), not by the processor, so a retried delivery names the
// same coordinates as the original.
type ClaimDepositMessage struct {
	RequestIndex   uint32
	DepositID      uint64
	ClaimantUserID uint64
	PublicKey      [33]byte
	Signature      []byte
}

// TransferMessage is the wire shape of an rpc.token_transfer request.
type TransferMessage struct {
	RequestIndex uint32
	SenderID     uint64
	RecipientID  uint64
	Value        uint64
	Nonce        uint64
	PublicKey    [33]byte
	Signature    []byte
}

// AddWithdrawalMessage is the wire shape of an rpc.add_withdrawal request.
type AddWithdrawalMessage struct {
	RequestIndex uint32
	UserID       uint64
	Nonce        uint64
	Address      state.Hash160
	AddressType  state.AddressType
	Value        uint64
	PublicKey    [33]byte
	Signature    []byte
}

// ProcessWithdrawalMessage is the wire shape of a cmd.produce_block-scoped
// process-withdrawal signal. It carries no payload: the withdrawal id
// comes from the block's own counter at plan time.
type ProcessWithdrawalMessage struct{}

// AddDepositMessage is the wire shape of an observed L1 deposit, normally
// synthesized by the orchestrator from an L1 node's UTXO scan rather than
// submitted directly by an end user.
type AddDepositMessage struct {
	Value     uint64
	Txid      state.Hash256
	PublicKey [33]byte
}

// Processor accumulates one checkpoint's worth of normalized requests. It
// is not safe for concurrent Ingest* calls against Bundle/Reset without
// the caller serializing around a block boundary; Ingest* calls themselves
// are safe to call concurrently with each other.
type Processor struct {
	mu         sync.Mutex
	nodeID     uint64
	checkpoint uint64
	proofs     *proofstore.Store
	bundle     planner.RequestBundle
	logger     *log.Logger
}

// NewProcessor constructs a Processor. nodeID disambiguates this RPC
// processor instance's signature JobIds from any other instance's, per
// spec.md §4.5's (rpc-node-id, checkpoint_id, kind, index) key.
func NewProcessor(nodeID uint64, checkpoint uint64, proofs *proofstore.Store, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[RPC] ", log.LstdFlags)
	}
	return &Processor{nodeID: nodeID, checkpoint: checkpoint, proofs: proofs, logger: logger}
}

// Bundle returns the requests accumulated so far for the current
// checkpoint, in arrival order within each kind.
func (p *Processor) Bundle() planner.RequestBundle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bundle
}

// Reset clears the accumulated bundle and advances to the next
// checkpoint, called once the planner has consumed the current bundle.
func (p *Processor) Reset(checkpoint uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoint = checkpoint
	p.bundle = planner.RequestBundle{}
}

// IngestRegisterUser appends a normalized register-user request. Register
// requests carry no signature: a fresh user has no prior key to sign with.
func (p *Processor) IngestRegisterUser(msg RegisterUserMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bundle.RegisterUser = append(p.bundle.RegisterUser, planner.RegisterUserRequest{PublicKey: msg.PublicKey})
}

// IngestClaimDeposit normalizes a claim-deposit request: it verifies the
// attached signature against the claimed public key before persisting it
// under a deterministic JobId and appending the normalized request.
func (p *Processor) IngestClaimDeposit(msg ClaimDepositMessage) error {
	digest, err := signingDigest(struct {
		DepositID      uint64
		ClaimantUserID uint64
	}{msg.DepositID, msg.ClaimantUserID})
	if err != nil {
		return err
	}
	if !VerifySignature(msg.PublicKey, digest, msg.Signature) {
		return ErrInvalidSignature
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sigID, err := p.persistSignature(jobid.KindClaimDeposit, msg.RequestIndex, msg.Signature)
	if err != nil {
		return err
	}
	p.bundle.ClaimDeposit = append(p.bundle.ClaimDeposit, planner.ClaimDepositRequest{
		DepositID:        msg.DepositID,
		ClaimantUserID:   msg.ClaimantUserID,
		SignatureProofID: sigID,
	})
	return nil
}

// IngestTransfer normalizes an L2-transfer request, verifying its
// signature before persisting and appending it.
func (p *Processor) IngestTransfer(msg TransferMessage) error {
	digest, err := signingDigest(struct {
		SenderID    uint64
		RecipientID uint64
		Value       uint64
		Nonce       uint64
	}{msg.SenderID, msg.RecipientID, msg.Value, msg.Nonce})
	if err != nil {
		return err
	}
	if !VerifySignature(msg.PublicKey, digest, msg.Signature) {
		return ErrInvalidSignature
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sigID, err := p.persistSignature(jobid.KindL2Transfer, msg.RequestIndex, msg.Signature)
	if err != nil {
		return err
	}
	p.bundle.Transfer = append(p.bundle.Transfer, planner.TransferRequest{
		SenderID:         msg.SenderID,
		RecipientID:      msg.RecipientID,
		Value:            msg.Value,
		Nonce:            msg.Nonce,
		SignatureProofID: sigID,
	})
	return nil
}

// IngestAddWithdrawal normalizes an add-withdrawal request, verifying its
// signature before persisting and appending it.
func (p *Processor) IngestAddWithdrawal(msg AddWithdrawalMessage) error {
	digest, err := signingDigest(struct {
		UserID      uint64
		Nonce       uint64
		Address     state.Hash160
		AddressType state.AddressType
		Value       uint64
	}{msg.UserID, msg.Nonce, msg.Address, msg.AddressType, msg.Value})
	if err != nil {
		return err
	}
	if !VerifySignature(msg.PublicKey, digest, msg.Signature) {
		return ErrInvalidSignature
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sigID, err := p.persistSignature(jobid.KindAddWithdrawal, msg.RequestIndex, msg.Signature)
	if err != nil {
		return err
	}
	p.bundle.AddWithdrawal = append(p.bundle.AddWithdrawal, planner.AddWithdrawalRequest{
		UserID:           msg.UserID,
		Nonce:            msg.Nonce,
		Address:          msg.Address,
		AddressType:      msg.AddressType,
		Value:            msg.Value,
		SignatureProofID: sigID,
	})
	return nil
}

// IngestProcessWithdrawal appends a process-withdrawal signal.
func (p *Processor) IngestProcessWithdrawal(msg ProcessWithdrawalMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bundle.ProcessWithdrawal = append(p.bundle.ProcessWithdrawal, planner.ProcessWithdrawalRequest{})
}

// IngestAddDeposit appends an observed-L1-deposit request. Deposits carry
// no end-user signature: the fact that the corresponding p2pkh output
// exists and is spendable on L1 is the only authorization the op circuit
// checks.
func (p *Processor) IngestAddDeposit(msg AddDepositMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bundle.AddDeposit = append(p.bundle.AddDeposit, planner.AddDepositRequest{
		Value:     msg.Value,
		Txid:      msg.Txid,
		PublicKey: msg.PublicKey,
	})
}

// persistSignature mints the deterministic signature JobId for (kind,
// index) under this processor's node id and checkpoint, and durably
// stores sig under it if non-empty. Callers must hold p.mu.
func (p *Processor) persistSignature(kind jobid.Kind, index uint32, sig []byte) (jobid.ID, error) {
	id := jobid.Signature(p.checkpoint, kind, p.nodeID, index)
	if len(sig) == 0 {
		return id, nil
	}
	if err := p.proofs.SetBytes(id, sig); err != nil {
		return jobid.ID{}, fmt.Errorf("rpc: persist signature for kind %d index %d: %w", kind, index, err)
	}
	return id, nil
}
