package rpc

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/state"
)

func newTestProcessor(t *testing.T) (*Processor, *proofstore.Store) {
	t.Helper()
	store := proofstore.New(kv.NewAdapter(dbm.NewMemDB()))
	return NewProcessor(7, 1, store, nil), store
}

// TestIngestTransfer_ValidSignaturePersisted exercises the signature
// verification and deterministic JobId persistence path together.
func TestIngestTransfer_ValidSignaturePersisted(t *testing.T) {
	p, proofs := newTestProcessor(t)

	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var pub [33]byte
	copy(pub[:], gethcrypto.CompressPubkey(&key.PublicKey))

	msg := TransferMessage{RequestIndex: 0, SenderID: 1, RecipientID: 2, Value: 500, Nonce: 3, PublicKey: pub}
	digest, err := signingDigest(struct {
		SenderID    uint64
		RecipientID uint64
		Value       uint64
		Nonce       uint64
	}{msg.SenderID, msg.RecipientID, msg.Value, msg.Nonce})
	if err != nil {
		t.Fatalf("signingDigest: %v", err)
	}
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	msg.Signature = sig

	if err := p.IngestTransfer(msg); err != nil {
		t.Fatalf("IngestTransfer: %v", err)
	}

	bundle := p.Bundle()
	if len(bundle.Transfer) != 1 {
		t.Fatalf("expected 1 transfer request, got %d", len(bundle.Transfer))
	}
	sigID := bundle.Transfer[0].SignatureProofID
	wantID := jobid.Signature(1, jobid.KindL2Transfer, 7, 0)
	if sigID != wantID {
		t.Fatalf("expected signature job id %v, got %v", wantID, sigID)
	}
	stored, err := proofs.GetBytes(sigID)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if string(stored) != string(sig) {
		t.Fatalf("expected persisted signature to match, got %x want %x", stored, sig)
	}
}

// TestIngestTransfer_InvalidSignatureRejected ensures a tampered field
// invalidates the signature without mutating the processor's bundle.
func TestIngestTransfer_InvalidSignatureRejected(t *testing.T) {
	p, _ := newTestProcessor(t)

	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var pub [33]byte
	copy(pub[:], gethcrypto.CompressPubkey(&key.PublicKey))

	digest, err := signingDigest(struct {
		SenderID    uint64
		RecipientID uint64
		Value       uint64
		Nonce       uint64
	}{1, 2, 500, 3})
	if err != nil {
		t.Fatalf("signingDigest: %v", err)
	}
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	msg := TransferMessage{RequestIndex: 0, SenderID: 1, RecipientID: 2, Value: 999, Nonce: 3, PublicKey: pub, Signature: sig}
	if err := p.IngestTransfer(msg); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(p.Bundle().Transfer) != 0 {
		t.Fatalf("expected no transfer appended for an invalid signature")
	}
}

// TestIngestClaimDeposit_RetryOverwritesSameSlot is scenario 8 of
// SPEC_FULL.md: a retried claim-deposit RPC with the same coordinates
// overwrites the same signature-proof JobId rather than minting a new one.
func TestIngestClaimDeposit_RetryOverwritesSameSlot(t *testing.T) {
	p, proofs := newTestProcessor(t)

	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var pub [33]byte
	copy(pub[:], gethcrypto.CompressPubkey(&key.PublicKey))

	digest, err := signingDigest(struct {
		DepositID      uint64
		ClaimantUserID uint64
	}{4, 9})
	if err != nil {
		t.Fatalf("signingDigest: %v", err)
	}
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	msg := ClaimDepositMessage{RequestIndex: 2, DepositID: 4, ClaimantUserID: 9, PublicKey: pub, Signature: sig}

	if err := p.IngestClaimDeposit(msg); err != nil {
		t.Fatalf("first IngestClaimDeposit: %v", err)
	}
	if err := p.IngestClaimDeposit(msg); err != nil {
		t.Fatalf("retried IngestClaimDeposit: %v", err)
	}

	bundle := p.Bundle()
	if len(bundle.ClaimDeposit) != 2 {
		t.Fatalf("expected both deliveries appended (dedup happens at the state layer), got %d", len(bundle.ClaimDeposit))
	}
	if bundle.ClaimDeposit[0].SignatureProofID != bundle.ClaimDeposit[1].SignatureProofID {
		t.Fatalf("expected both deliveries to name the same signature job id")
	}
	if _, err := proofs.GetBytes(bundle.ClaimDeposit[0].SignatureProofID); err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
}

// TestReset clears the accumulated bundle and advances the checkpoint used
// for future signature JobIds.
func TestReset(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.IngestRegisterUser(RegisterUserMessage{PublicKey: [4]uint64{1, 2, 3, 4}})
	if len(p.Bundle().RegisterUser) != 1 {
		t.Fatalf("expected 1 register-user request before reset")
	}
	p.Reset(2)
	if len(p.Bundle().RegisterUser) != 0 {
		t.Fatalf("expected bundle cleared after reset")
	}
	p.IngestProcessWithdrawal(ProcessWithdrawalMessage{})
	p.IngestAddDeposit(AddDepositMessage{Value: 100, Txid: state.Hash256{1}, PublicKey: [33]byte{2}})
	bundle := p.Bundle()
	if len(bundle.ProcessWithdrawal) != 1 || len(bundle.AddDeposit) != 1 {
		t.Fatalf("expected process-withdrawal and add-deposit requests after reset, got %+v", bundle)
	}
}
