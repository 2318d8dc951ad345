// Copyright 2025 Certen Protocol
//
// Link records and their wire encoding: the aggregation scheduler (§4.3)
// "publishes the tree by inserting, for every non-leaf job, a record
// linking it to its two child JobIds and its required aggregator circuit
// fingerprint." Encoded with pkg/commitment's canonical-JSON codec, the
// same marshaling convention internal/state uses for its leaf records.

package aggregation

import (
	"encoding/hex"

	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/pkg/commitment"
)

// Link describes one non-leaf node of an aggregation tree: its left
// child, and either a right child (a normal binary fan-in, threshold 2)
// or none (a pass-through alias, threshold 1 -- used only to name the
// single top-of-tree node as the checkpoint's final block proof JobId).
type Link struct {
	Left        jobid.ID
	Right       jobid.ID
	HasRight    bool
	Fingerprint proofsystem.Fingerprint
}

// Threshold returns the fan-in count this link's parent becomes ready at.
func (l Link) Threshold() uint32 {
	if l.HasRight {
		return 2
	}
	return 1
}

type linkWire struct {
	Left        string `json:"left"`
	Right       string `json:"right,omitempty"`
	HasRight    bool   `json:"has_right"`
	Fingerprint string `json:"fingerprint"`
}

func encodeLink(l Link) ([]byte, error) {
	w := linkWire{
		Left:        l.Left.String(),
		HasRight:    l.HasRight,
		Fingerprint: hexFingerprint(l.Fingerprint),
	}
	if l.HasRight {
		w.Right = l.Right.String()
	}
	return commitment.MarshalCanonical(w)
}

func decodeLink(raw []byte) (Link, error) {
	var w linkWire
	if err := commitment.CanonicalJSONUnmarshal(raw, &w); err != nil {
		return Link{}, err
	}
	left, err := jobid.Parse(w.Left)
	if err != nil {
		return Link{}, err
	}
	l := Link{Left: left, HasRight: w.HasRight}
	if w.HasRight {
		right, err := jobid.Parse(w.Right)
		if err != nil {
			return Link{}, err
		}
		l.Right = right
	}
	fp, err := fingerprintFromHex(w.Fingerprint)
	if err != nil {
		return Link{}, err
	}
	l.Fingerprint = fp
	return l, nil
}

func hexFingerprint(fp proofsystem.Fingerprint) string {
	return hex.EncodeToString(fp[:])
}

func fingerprintFromHex(s string) (proofsystem.Fingerprint, error) {
	var fp proofsystem.Fingerprint
	if s == "" {
		return fp, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, ErrInvalidFingerprint
	}
	if len(b) != len(fp) {
		return fp, ErrInvalidFingerprint
	}
	copy(fp[:], b)
	return fp, nil
}
