// Copyright 2025 Certen Protocol
//
// DevGroth16VerifyDisabled gates the OP_NOP substitution of spec.md §4.6's
// "development mode replaces the verify opcode with OP_NOP for debugging;
// this must not be reachable in release configurations". original_source
// expresses this as a compile-time Rust const (GROTH16_DISABLED_DEV_MODE);
// the Go equivalent of a compile-time-only flag is a build tag, so the
// substitution is only ever compiled in when building with -tags l1tx_devmode.
// A default build of this package always has devMode unavailable:
// BuildBlockScript's requestDevMode parameter is honored only through
// DevGroth16VerifyDisabled, which this file pins to false.
//
//go:build !l1tx_devmode

package l1tx

const DevGroth16VerifyDisabled = false
