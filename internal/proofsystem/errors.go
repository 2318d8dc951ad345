// Copyright 2025 Certen Protocol
//
// Package proofsystem provides sentinel errors for the proving lifecycle.

package proofsystem

import "errors"

// ErrVerificationFailed is returned by System.Verify when the proof does
// not check out against the supplied public witness.
var ErrVerificationFailed = errors.New("proofsystem: verification failed")

// ErrFingerprintMismatch is returned by the worker pool when an aggregation
// node's link record carries a fingerprint different from the aggregator
// System's own, per spec.md Glossary "Aggregator fingerprint": "proofs
// carry their fingerprint so the scheduler can refuse to combine proofs
// whose fingerprints don't match".
var ErrFingerprintMismatch = errors.New("proofsystem: fingerprint mismatch")
