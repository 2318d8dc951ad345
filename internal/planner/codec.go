// Copyright 2025 Certen Protocol
//
// Wire encoding for OpCircuitInput, the serialized form persisted under a
// leaf JobId's TagInput slot (jobid.Tag's doc comment: "TagInput names the
// serialized circuit input for a leaf op") so the worker pool -- a
// separate process pulling from work.standard_proof -- can fetch the
// delta-merkle proof(s) a leaf JobId's circuit must verify without sharing
// memory with the planner that produced them. Encoded with
// pkg/commitment's canonical-JSON codec, the same convention
// internal/aggregation uses for its link records.

package planner

import (
	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/merkle"
	"github.com/certen/rollup-coordinator/pkg/commitment"
)

type deltaProofWire struct {
	Index    uint64    `json:"index"`
	OldValue field.H   `json:"old_value"`
	NewValue field.H   `json:"new_value"`
	Siblings []field.H `json:"siblings"`
	OldRoot  field.H   `json:"old_root"`
	NewRoot  field.H   `json:"new_root"`
}

func toWire(p *merkle.DeltaProof) *deltaProofWire {
	if p == nil {
		return nil
	}
	return &deltaProofWire{
		Index:    p.Index,
		OldValue: p.OldValue,
		NewValue: p.NewValue,
		Siblings: p.Siblings,
		OldRoot:  p.OldRoot,
		NewRoot:  p.NewRoot,
	}
}

func fromWire(w *deltaProofWire) *merkle.DeltaProof {
	if w == nil {
		return nil
	}
	return &merkle.DeltaProof{
		Index:    w.Index,
		OldValue: w.OldValue,
		NewValue: w.NewValue,
		Siblings: w.Siblings,
		OldRoot:  w.OldRoot,
		NewRoot:  w.NewRoot,
	}
}

type opCircuitInputWire struct {
	Kind             jobid.Kind      `json:"kind"`
	First            *deltaProofWire `json:"first,omitempty"`
	Second           *deltaProofWire `json:"second,omitempty"`
	SignatureProofID string          `json:"signature_proof_id,omitempty"`
	GlobalOldRoot    field.H         `json:"global_old_root"`
	GlobalNewRoot    field.H         `json:"global_new_root"`
}

// EncodeCircuitInput serializes in's delta proof(s) into the bytes stored
// under its leaf JobId's TagInput slot. The JobId itself is not
// re-encoded: it is the key the worker looks the bytes up by.
func EncodeCircuitInput(in OpCircuitInput) ([]byte, error) {
	w := opCircuitInputWire{
		Kind:          in.Kind,
		First:         toWire(in.First),
		Second:        toWire(in.Second),
		GlobalOldRoot: in.GlobalOldRoot,
		GlobalNewRoot: in.GlobalNewRoot,
	}
	if (in.SignatureProofID != jobid.ID{}) {
		w.SignatureProofID = in.SignatureProofID.String()
	}
	return commitment.MarshalCanonical(w)
}

// DecodeCircuitInput is the inverse of EncodeCircuitInput. id is supplied
// by the caller (the JobId the bytes were fetched from) rather than
// recovered from the payload.
func DecodeCircuitInput(id jobid.ID, raw []byte) (OpCircuitInput, error) {
	var w opCircuitInputWire
	if err := commitment.CanonicalJSONUnmarshal(raw, &w); err != nil {
		return OpCircuitInput{}, err
	}
	in := OpCircuitInput{
		JobID: id, Kind: w.Kind, First: fromWire(w.First), Second: fromWire(w.Second),
		GlobalOldRoot: w.GlobalOldRoot, GlobalNewRoot: w.GlobalNewRoot,
	}
	if w.SignatureProofID != "" {
		sigID, err := jobid.Parse(w.SignatureProofID)
		if err != nil {
			return OpCircuitInput{}, err
		}
		in.SignatureProofID = sigID
	}
	return in, nil
}

// InputJobID returns the JobId naming id's serialized circuit input, the
// TagInput sibling of id's TagProof leaf JobId. This is distinct from the
// aggregation scheduler's parent-pointer use of TagInput (internal/
// aggregation.parentPointerKey), which always sets OpIndex's top bit; a
// real leaf's op index is always far below that range. Exported so the
// worker pool -- a separate process from the planner -- can look up a
// leaf JobId's circuit input by the same key the planner stored it under.
func InputJobID(id jobid.ID) jobid.ID {
	id.Tag = jobid.TagInput
	return id
}
