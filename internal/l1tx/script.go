// Copyright 2025 Certen Protocol
//
// Package l1tx implements the L1 transaction builder of spec.md §4.6: it
// constructs the block-spend transaction for a checkpoint from the prior
// block's UTXO, the discovered deposit UTXOs, and the planned withdrawals,
// and produces the sighash introspection hints the block circuit binds its
// committed state transition to. Grounded on original_source's
// city_rollup_common::block_template (the fixed 489-byte script layout)
// and city_rollup_core_orchestrator::debug::scenario::actors::simple's
// create_hints_for_block (the transaction and hint shape), translated from
// raw byte-slice concatenation into btcsuite/btcd's wire.MsgTx and
// txscript -- the idiomatic Go representation the rest of the ecosystem
// (and this corpus's other Bitcoin-adjacent repos) builds transactions
// with, rather than hand-rolled serialization.
package l1tx

import (
	"encoding/hex"
	"fmt"
)

// Fixed opcodes the block script template is built from. Named individually
// (rather than reused from txscript's OP_* constants) because the template
// is a literal fixed byte layout, not a script assembled instruction by
// instruction -- it is only coincidentally expressible in script opcodes.
const (
	opPushBytes32    byte = 0x20
	opPushData1      byte = 0x4c
	opSwap           byte = 0x7c
	opDup            byte = 0x76
	opSha256         byte = 0xa8
	opEqualVerify    byte = 0x88
	op1              byte = 0x51
	op2Drop          byte = 0x6d
	opNop            byte = 0x61
	op0NotEqual      byte = 0x92
	opCheckGroth16   byte = 0xb3
)

// BlockScriptSize is the fixed total length of the block spend script,
// per spec.md §4.6 and §8's testable property "Script template total
// length is exactly 489 bytes".
const BlockScriptSize = 3 + 1 + 32 + 1 + 5*(2+80) + 9 + 1 + 32

// verifierDataChunks are the fixed Groth16 verifying-key data chunks the
// script body pushes ahead of OP_CHECKGROTH16VERIFY. Carried over as a
// literal fixed blob from original_source's BLOCK_GROTH16_ENCODED_VERIFIER_DATA:
// the real verifying key material is produced by the out-of-scope proof
// system's trusted setup (internal/proofsystem.System.CommonData), but the
// on-chain script layout itself -- chunk count, chunk size, and the
// 32-byte hash constant below -- is a fixed protocol constant
// independent of which circuit instance is deployed, so it is reproduced
// here verbatim to keep the 489-byte shape exact.
var verifierDataChunks = [5][80]byte{
	mustHex80("9c06800675aa1e198ad2f2e07370338ad768918f786556e92955f09a82b3987cf138d978096f8ba1d7d309cb230b97afa01ae7e52cec6d4154bc82fb38b5418bc0847c7b309db151b70b294c904ca62d"),
	mustHex80("dd39aa59fdf20b2fd02903d1f3a8b08bb6eec58bc6fdfcf87d37441d3ae6ea8fc0c9949c6859905000a83aebe0aad9b550d672c9c3849a7ce5cad295939c11c96daaf36db518ff802ebb4b36e3715515"),
	mustHex80("6aa989ee7392f2b64aceed795188b47df2dbbf3863e56bd59b2f0bea2c8fe03777d9c28d55ac2e1ccf4c4618f5383e062fdae7da1e4a4d87532e44ee3ef62eaa80e5990ed959f97e20c5b7e00d1080e1"),
	mustHex80("1991e77d0f38c0e925c51a8db4ceda19085a90ec39cb7fd747e8becb6ae6fac36ebf56694349ec7513a2af85d2241ab7ec6d8f7d42de14067efa2160d3cb71059388044478c3b8ddcb64bc53f1fd0464"),
	mustHex80("7d8805b159f0333feff9a1d4b7c0d969dcec8f82d61b18cfe83b9a6175d17203b394331b26f61899d73efe55d5b5a2de21d44cdb0fe2829bba8a195aa8700981cdb45bb357f278903a047cbd37a63285"),
}

// leadingChunkHash is the 32-byte value the script body compares, via
// OP_SHA256/OP_EQUALVERIFY, against the sha256 of the stack item the
// spending witness supplies below the state hash, before the verifier
// chunks are pushed -- original_source's
// BLOCK_GROTH16_ENCODED_VERIFIER_DATA_0_SHA_256_HASH, carried over
// verbatim. It is not the sha256 of verifierDataChunks[0].
var leadingChunkHash = mustHex32("f6ca27dd0a90211176f366fa360f99dd27d1d25fc44e11eb663bfdce80967154")

// BuildBlockScript assembles the fixed block spend script for stateHash.
// requestDevMode asks for the OP_NOP verifier substitution, but it is only
// honored when this package was built with -tags l1tx_devmode
// (DevGroth16VerifyDisabled); a release build silently ignores the request
// rather than letting a stray config flag disable verification in
// production.
func BuildBlockScript(stateHash [32]byte, requestDevMode bool) []byte {
	verifyOp := opCheckGroth16
	if requestDevMode && DevGroth16VerifyDisabled {
		verifyOp = opNop
	}

	out := make([]byte, 0, BlockScriptSize)
	out = append(out, opPushBytes32)
	out = append(out, stateHash[:]...)

	out = append(out, opSwap, opDup, opSha256)
	out = append(out, opPushBytes32)
	out = append(out, leadingChunkHash[:]...)
	out = append(out, opEqualVerify)
	for _, chunk := range verifierDataChunks {
		out = append(out, opPushData1, byte(len(chunk)))
		out = append(out, chunk[:]...)
	}
	out = append(out, op1, verifyOp, op2Drop, op2Drop, op2Drop, op2Drop, op2Drop, op2Drop, op1)

	if len(out) != BlockScriptSize {
		panic(fmt.Sprintf("l1tx: built block script of length %d, want %d", len(out), BlockScriptSize))
	}
	return out
}

func mustHexBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("l1tx: invalid hex literal: %v", err))
	}
	return b
}

func mustHex80(s string) [80]byte {
	b := mustHexBytes(s)
	if len(b) != 80 {
		panic(fmt.Sprintf("l1tx: expected 80-byte verifier chunk, got %d", len(b)))
	}
	var out [80]byte
	copy(out[:], b)
	return out
}

func mustHex32(s string) [32]byte {
	b := mustHexBytes(s)
	if len(b) != 32 {
		panic(fmt.Sprintf("l1tx: expected 32-byte hash, got %d", len(b)))
	}
	var out [32]byte
	copy(out[:], b)
	return out
}
