// Copyright 2025 Certen Protocol
//
// Built only with -tags l1tx_devmode: enables the OP_NOP verifier
// substitution for local circuit debugging. Never set this tag in a
// release build.
//
//go:build l1tx_devmode

package l1tx

const DevGroth16VerifyDisabled = true
