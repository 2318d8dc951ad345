// Copyright 2025 Certen Protocol
//
// Signature verification for requests that carry a user-supplied
// secp256k1 signature (claim-deposit, transfer, add-withdrawal), grounded
// on the same go-ethereum crypto primitives the corpus uses for ENR
// record signing/verification: a 33-byte compressed public key and a
// 64-byte compact (r‖s, no recovery id) signature over a 32-byte digest.

package rpc

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/rollup-coordinator/pkg/commitment"
)

// ErrInvalidSignature is returned when a request's attached signature does
// not verify against its claimed public key and digest.
var ErrInvalidSignature = errors.New("rpc: invalid signature")

// Sign produces a 64-byte compact signature over digest using key,
// discarding the recovery id crypto.Sign appends -- VerifySignature below
// does not need it, since the public key is supplied out of band by the
// request itself rather than recovered from the signature.
func Sign(digest [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	return sig[:64], nil
}

// VerifySignature reports whether sig is a valid secp256k1 signature over
// digest under the compressed public key pubkey.
func VerifySignature(pubkey [33]byte, digest [32]byte, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	return crypto.VerifySignature(pubkey[:], digest[:], sig)
}

// signingDigest canonically encodes fields and hashes them, the same
// canonical-JSON-then-hash convention pkg/commitment uses for leaf
// records, so every signed request's digest is reproducible independent
// of struct field order or client language.
func signingDigest(fields any) ([32]byte, error) {
	raw, err := commitment.MarshalCanonical(fields)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}
