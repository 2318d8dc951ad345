// Copyright 2025 Certen Protocol
//
// Package worker provides sentinel errors for the proof-production pool.

package worker

import "errors"

var (
	// ErrNoOpSystem is returned when a leaf job names an op kind this pool
	// has no compiled circuit system for.
	ErrNoOpSystem = errors.New("worker: no compiled circuit system registered for op kind")
	// ErrTreeTooDeep is returned when a delta-merkle proof's sibling path
	// is longer than proofsystem.TreeHeight, the fixed height every
	// compiled circuit variant assumes.
	ErrTreeTooDeep = errors.New("worker: sibling path deeper than the compiled circuit's tree height")
	// ErrNotQueueable is returned if a pass-through alias JobId (threshold
	// 1, no right child) is ever popped off the work queue: the
	// aggregation scheduler's MarkProofWritten resolves these by copying
	// bytes directly and never enqueues them, so seeing one here indicates
	// a scheduler/queue bug rather than a runtime condition.
	ErrNotQueueable = errors.New("worker: job id is a pass-through alias and should never reach the work queue")
)
