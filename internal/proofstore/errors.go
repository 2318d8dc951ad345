// Copyright 2025 Certen Protocol
//
// Package proofstore provides sentinel errors for proof-store operations.

package proofstore

import "errors"

// ErrNotFound is returned by GetProof/GetBytes when no value has ever been
// written under the requested id.
var ErrNotFound = errors.New("proofstore: not found")
