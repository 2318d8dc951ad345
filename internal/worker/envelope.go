// Copyright 2025 Certen Protocol
//
// Envelope is this package's addition to the proof store's TagProof slot:
// spec.md §6 fixes the slot's shape as "{JobId} -> bytes" but leaves the
// encoding of those bytes to the proof system. A bare Groth16 proof blob
// is sufficient to verify a leaf or aggregate node in isolation, but the
// next aggregation level also needs the (old_root, new_root) pair the
// proof attests to in order to build its own AggregatorCircuit witness
// (internal/proofsystem.AggregatorCircuit's Left/Right public inputs).
// Wrapping both together in one canonical-JSON envelope, stored under the
// same TagProof key, keeps the aggregation scheduler's pass-through alias
// (internal/aggregation.Scheduler.MarkProofWritten, which copies proof
// bytes verbatim from child to parent with no knowledge of their
// internal shape) working unmodified.

package worker

import (
	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/pkg/commitment"
)

// Envelope pairs a produced proof with the state-root transition it
// attests to.
type Envelope struct {
	OldRoot    field.H
	NewRoot    field.H
	ProofBytes []byte
}

type envelopeWire struct {
	OldRoot    field.H `json:"old_root"`
	NewRoot    field.H `json:"new_root"`
	ProofBytes []byte  `json:"proof_bytes"`
}

func encodeEnvelope(e Envelope) ([]byte, error) {
	return commitment.MarshalCanonical(envelopeWire{
		OldRoot:    e.OldRoot,
		NewRoot:    e.NewRoot,
		ProofBytes: e.ProofBytes,
	})
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var w envelopeWire
	if err := commitment.CanonicalJSONUnmarshal(raw, &w); err != nil {
		return Envelope{}, err
	}
	return Envelope{OldRoot: w.OldRoot, NewRoot: w.NewRoot, ProofBytes: w.ProofBytes}, nil
}
