// Copyright 2025 Certen Protocol
//
// Package aggregation provides sentinel errors for the aggregation
// scheduler.

package aggregation

import "errors"

var (
	// ErrInvalidFingerprint is returned when a stored link record's
	// fingerprint hex cannot be decoded -- a storage corruption symptom
	// per spec.md §7's "Serialization mismatch" error kind.
	ErrInvalidFingerprint = errors.New("aggregation: invalid fingerprint encoding")
	// ErrNoSuchLink is returned when a parent JobId has a recorded child
	// pointer but no link record, indicating a planner/scheduler bug
	// rather than a runtime condition.
	ErrNoSuchLink = errors.New("aggregation: no link record for parent job")
)
