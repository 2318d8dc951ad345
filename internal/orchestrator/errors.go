// Copyright 2025 Certen Protocol
//
// Package orchestrator provides sentinel errors for the single-actor block
// production loop.

package orchestrator

import "errors"

var (
	// ErrNoBlockUTXO is returned when the orchestrator is asked to submit a
	// standard (non-genesis) settlement before Bootstrap has ever recorded
	// a block UTXO to spend.
	ErrNoBlockUTXO = errors.New("orchestrator: no block utxo recorded; call Bootstrap first")
	// ErrAlreadyBootstrapped is returned when Bootstrap is called more than
	// once against the same Orchestrator.
	ErrAlreadyBootstrapped = errors.New("orchestrator: already bootstrapped")
)
