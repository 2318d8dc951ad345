// Copyright 2025 Certen Protocol
//
// System is the concrete realization behind the four verbs spec.md §1
// says the out-of-scope proof system exposes to the rest of this
// repository: "prove", "verify", "fingerprint", and "common data". It is
// grounded directly on the teacher's pkg/crypto/bls_zkp.BLSZKProver:
// frontend.Compile with r1cs.NewBuilder over ecc.BN254.ScalarField(),
// groth16.Setup for the one-time trusted setup, groth16.Prove/Verify for
// the proving lifecycle. Unlike the teacher (one fixed BLS circuit), this
// package compiles whichever frontend.Circuit the caller supplies, so the
// same System type backs every op circuit variant and the aggregator
// circuit.

package proofsystem

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Fingerprint is the 32-byte identity of a compiled circuit, embedded in
// every proof it produces so the aggregation scheduler can refuse to
// combine proofs whose fingerprints don't match spec.md §4.2's "fingerprint
// table identifying each op circuit's allowed circuit hashes root"
// (Glossary: "Aggregator fingerprint").
type Fingerprint [32]byte

// CommonData is the circuit-independent verifying material a System
// exposes once setup has run: the verifying key, serialized, plus the
// fingerprint it was derived from. "Common data" is spec.md's term
// (§1 "only prove, verify, fingerprint, and common data are used").
type CommonData struct {
	Fingerprint     Fingerprint
	VerifyingKeyRaw []byte
}

// System wraps one compiled circuit's constraint system and Groth16
// proving/verification keys, grounded on BLSZKProver's cs/pk/vk triple.
type System struct {
	mu sync.RWMutex

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey

	fingerprint Fingerprint
}

// Setup compiles circuit over the BN254 scalar field and runs the Groth16
// trusted setup, the same sequence as BLSZKProver.Initialize.
func Setup(circuit frontend.Circuit) (*System, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("proofsystem: compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("proofsystem: groth16 setup: %w", err)
	}

	s := &System{ccs: ccs, pk: pk, vk: vk}
	s.fingerprint, err = computeFingerprint(ccs, vk)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// computeFingerprint hashes the serialized constraint system and
// verifying key together: any change to either changes the fingerprint,
// so a stale worker can never present a proof from a different circuit
// revision as if it matched this System's expectations.
func computeFingerprint(ccs constraint.ConstraintSystem, vk groth16.VerifyingKey) (Fingerprint, error) {
	h := sha256.New()
	if _, err := ccs.WriteTo(h); err != nil {
		return Fingerprint{}, fmt.Errorf("proofsystem: hash constraint system: %w", err)
	}
	if _, err := vk.WriteTo(h); err != nil {
		return Fingerprint{}, fmt.Errorf("proofsystem: hash verifying key: %w", err)
	}
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// Fingerprint returns the identity of this compiled circuit.
func (s *System) Fingerprint() Fingerprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// CommonData returns the circuit-independent verifying material a remote
// verifier (or a later aggregation level) needs, without exposing the
// proving key.
func (s *System) CommonData() (CommonData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var buf bytes.Buffer
	if _, err := s.vk.WriteTo(&buf); err != nil {
		return CommonData{}, fmt.Errorf("proofsystem: serialize verifying key: %w", err)
	}
	return CommonData{Fingerprint: s.fingerprint, VerifyingKeyRaw: buf.Bytes()}, nil
}

// Prove generates a Groth16 proof for assignment, the circuit's fully
// populated witness (public and private inputs both set).
func (s *System) Prove(assignment frontend.Circuit) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("proofsystem: build witness: %w", err)
	}
	proof, err := groth16.Prove(s.ccs, s.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("proofsystem: prove: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proofsystem: serialize proof: %w", err)
	}
	return buf.Bytes(), nil
}

// keyFilenames returns the constraint-system/proving-key/verifying-key
// file paths Save/Load use for name within dir, mirroring BLSZKProver's
// three-file cs/pk/vk layout (pkg/crypto/bls_zkp.SaveKeys/
// InitializeFromKeys) rather than one combined blob, so an operator can
// distribute the verifying key alone without the proving key.
func keyFilenames(dir, name string) (cs, pk, vk string) {
	return filepath.Join(dir, name+".cs"),
		filepath.Join(dir, name+".pk"),
		filepath.Join(dir, name+".vk")
}

// Save persists s's constraint system, proving key, and verifying key to
// dir under name, the trusted-setup artifact cmd/rollupsetup produces so
// cmd/rollupd and cmd/rollupworker load an identical System (same
// fingerprint) instead of each running their own randomized Groth16
// setup, which would mint incompatible keys across processes.
func (s *System) Save(dir, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	csPath, pkPath, vkPath := keyFilenames(dir, name)
	if err := writeTo(csPath, s.ccs); err != nil {
		return fmt.Errorf("proofsystem: write constraint system: %w", err)
	}
	if err := writeTo(pkPath, s.pk); err != nil {
		return fmt.Errorf("proofsystem: write proving key: %w", err)
	}
	if err := writeTo(vkPath, s.vk); err != nil {
		return fmt.Errorf("proofsystem: write verifying key: %w", err)
	}
	return nil
}

// Load reconstructs a System from the cs/pk/vk triple Save wrote to dir
// under name.
func Load(dir, name string) (*System, error) {
	csPath, pkPath, vkPath := keyFilenames(dir, name)

	ccs := groth16.NewCS(ecc.BN254)
	if err := readFrom(csPath, ccs); err != nil {
		return nil, fmt.Errorf("proofsystem: read constraint system: %w", err)
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if err := readFrom(pkPath, pk); err != nil {
		return nil, fmt.Errorf("proofsystem: read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := readFrom(vkPath, vk); err != nil {
		return nil, fmt.Errorf("proofsystem: read verifying key: %w", err)
	}

	s := &System{ccs: ccs, pk: pk, vk: vk}
	fp, err := computeFingerprint(ccs, vk)
	if err != nil {
		return nil, err
	}
	s.fingerprint = fp
	return s, nil
}

type writerTo interface {
	WriteTo(w io.Writer) (int64, error)
}

type readerFrom interface {
	ReadFrom(r io.Reader) (int64, error)
}

func writeTo(path string, v writerTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = v.WriteTo(f)
	return err
}

func readFrom(path string, v readerFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = v.ReadFrom(f)
	return err
}

// Verify checks proofBytes against publicAssignment, a circuit value with
// only its public fields populated.
func (s *System) Verify(proofBytes []byte, publicAssignment frontend.Circuit) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("proofsystem: deserialize proof: %w", err)
	}
	publicWitness, err := frontend.NewWitness(publicAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("proofsystem: build public witness: %w", err)
	}
	if err := groth16.Verify(proof, s.vk, publicWitness); err != nil {
		return fmt.Errorf("proofsystem: %w", ErrVerificationFailed)
	}
	return nil
}
