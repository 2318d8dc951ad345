// Copyright 2025 Certen Protocol
//
// Byte-level codecs for the state tree set's leaf records, grounded on the
// original implementation's big-endian key codecs (city_store's
// L1DepositKeyByDepositIdCore/L1DepositKeyByTransactionIdCore) and spec.md
// §3's literal field orderings.

package state

import (
	"encoding/binary"
	"fmt"

	"github.com/certen/rollup-coordinator/internal/field"
)

// depositRecordSize is the 89-byte wire size of a serialized L1Deposit:
// checkpoint_id(8) ‖ deposit_id(8) ‖ value(8) ‖ txid(32) ‖ public_key(33).
const depositRecordSize = 8 + 8 + 8 + 32 + 33

// MarshalBinary serializes d per spec.md §3's literal field ordering.
func (d L1Deposit) MarshalBinary() ([]byte, error) {
	buf := make([]byte, depositRecordSize)
	binary.BigEndian.PutUint64(buf[0:8], d.CheckpointID)
	binary.BigEndian.PutUint64(buf[8:16], d.DepositID)
	binary.BigEndian.PutUint64(buf[16:24], d.Value)
	copy(buf[24:56], d.Txid[:])
	copy(buf[56:89], d.PublicKey[:])
	return buf, nil
}

// UnmarshalL1Deposit is the inverse of MarshalBinary.
func UnmarshalL1Deposit(b []byte) (L1Deposit, error) {
	if len(b) != depositRecordSize {
		return L1Deposit{}, fmt.Errorf("state: expected %d bytes for L1Deposit, got %d", depositRecordSize, len(b))
	}
	var d L1Deposit
	d.CheckpointID = binary.BigEndian.Uint64(b[0:8])
	d.DepositID = binary.BigEndian.Uint64(b[8:16])
	d.Value = binary.BigEndian.Uint64(b[16:24])
	copy(d.Txid[:], b[24:56])
	copy(d.PublicKey[:], b[56:89])
	return d, nil
}

// LeafHash computes the deposit leaf's digest: an absorb of its full
// serialized record. A 89-byte record with a 32-byte txid and 33-byte
// public key does not pack cleanly into fixed field-element limbs the way
// the user and withdrawal leaves do, so the deposit leaf is hashed as an
// opaque byte blob via Hasher.HashBytes.
func (d L1Deposit) LeafHash(hasher field.Hasher) field.H {
	b, _ := d.MarshalBinary()
	return hasher.HashBytes(b)
}

// LeafHash computes the user leaf's digest per spec.md §3: a two-limb
// construction H(balance‖nonce‖alt0‖alt1, public_key).
func (u User) LeafHash(hasher field.Hasher) field.H {
	var pk field.H
	for i, limb := range u.PublicKey {
		pk[i] = field.NewF(limb)
	}
	return hasher.HashUser(u.Balance, u.Nonce, u.Alt0, u.Alt1, pk)
}

// LeafHash computes the withdrawal leaf's digest per spec.md §3: value plus
// the 20-byte address plus the address-type tag packed into four field
// elements. Element 0 holds the raw value; elements 1-3 hold the address
// split 7+7+6 bytes, with the address-type tag folded into the top byte of
// the final (6-byte) group, matching the "7+7+6, top byte of final limb
// carries the type tag" packing spec.md §3 describes.
func (w L1Withdrawal) LeafHash(hasher field.Hasher) field.H {
	var a, b, c [8]byte
	copy(a[:7], w.Address[0:7])
	copy(b[:7], w.Address[7:14])
	c[0] = byte(w.AddressType)
	copy(c[1:7], w.Address[14:20])

	elems := [4]field.F{
		field.NewF(w.Value),
		field.NewF(binary.BigEndian.Uint64(append([]byte{0}, a[:7]...))),
		field.NewF(binary.BigEndian.Uint64(append([]byte{0}, b[:7]...))),
		field.NewF(binary.BigEndian.Uint64(append([]byte{0}, c[:7]...))),
	}
	return hasher.HashSingle(elems[0], elems[1], elems[2], elems[3])
}

// Digest folds the block-state record into a single H, per spec.md §8's
// overall root equation's fourth operand, block_state(c).digest().
func (bs BlockState) Digest(hasher field.Hasher) field.H {
	return hasher.HashSingle(
		field.NewF(bs.CheckpointID),
		field.NewF(bs.NextAddWithdrawalID),
		field.NewF(bs.NextProcessWithdrawalID),
		field.NewF(bs.NextDepositID),
		field.NewF(bs.NextUserID),
		field.NewF(bs.TotalDepositsClaimedEpoch),
		field.NewF(bs.EndBalance),
	)
}
