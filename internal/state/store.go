// Copyright 2025 Certen Protocol
//
// Store wires together the three merkleized trees (users, deposits,
// withdrawals) and the raw per-checkpoint block-state record into the
// concrete state tree set of spec.md §3/§4.1/§4.2, grounded on the
// original's city_store layer: CityL1Deposit's checkpoint-scoped storage
// and its by-txid secondary index (city_store/src/store/city/deposit.rs),
// reimplemented here atop the generic kv.CheckpointGet/Set helpers instead
// of a bespoke KVQ store trait.

package state

import (
	"encoding/binary"
	"fmt"

	"github.com/certen/rollup-coordinator/internal/field"
	"github.com/certen/rollup-coordinator/internal/kv"
	"github.com/certen/rollup-coordinator/internal/merkle"
	"github.com/certen/rollup-coordinator/pkg/commitment"
)

// Table tags partition the shared KV store, matching the "table-type tag"
// parameter spec.md §4.1 assigns each merkle tree plus one tag per raw
// record table and secondary index this package owns.
const (
	tableUsers             uint16 = 1
	tableDeposits          uint16 = 2
	tableWithdrawals       uint16 = 3
	tableUserRecords       uint16 = 4
	tableDepositRecords    uint16 = 5
	tableWithdrawalRecords uint16 = 6
	tableBlockState        uint16 = 7
	tableDepositByTxid     uint16 = 8
	tableCursor            uint16 = 9
)

// cursorKey is the fixed key the durable orchestrator cursor lives under.
// Unlike every other table here, it is not checkpoint-scoped: it records
// which checkpoint the orchestrator process last durably committed, a
// process-resumption fact rather than a member of the state tree set
// itself, so a plain Get/Set suffices.
var cursorKey = append(tablePrefix(tableCursor), []byte("latest")...)

// Store is the concrete state tree set spec.md §3 "State tree set" names:
// three merkle trees plus the per-checkpoint block-state record, all
// sharing one underlying KV store.
type Store struct {
	kv     kv.Store
	hasher field.Hasher

	users       *merkle.Tree
	deposits    *merkle.Tree
	withdrawals *merkle.Tree
}

// New constructs a Store over store, with the three trees sized to
// userTreeHeight/depositTreeHeight/withdrawalTreeHeight leaves.
func New(store kv.Store, hasher field.Hasher, userTreeHeight, depositTreeHeight, withdrawalTreeHeight uint8) *Store {
	return &Store{
		kv:          store,
		hasher:      hasher,
		users:       merkle.New(store, userTreeHeight, tableUsers, hasher),
		deposits:    merkle.New(store, depositTreeHeight, tableDeposits, hasher),
		withdrawals: merkle.New(store, withdrawalTreeHeight, tableWithdrawals, hasher),
	}
}

func userRecordKey(userID uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, userID)
	return b
}

func depositRecordKey(depositID uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, depositID)
	return b
}

func withdrawalRecordKey(withdrawalID uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, withdrawalID)
	return b
}

func tablePrefix(tag uint16) []byte {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, tag)
	return p
}

// GetUser returns the user record as of checkpoint cp.
func (s *Store) GetUser(cp uint64, userID uint64) (User, error) {
	raw, ok, err := kv.CheckpointGet(s.kv, tablePrefix(tableUserRecords), cp, userRecordKey(userID))
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrUserNotFound
	}
	var u User
	if err := commitment.CanonicalJSONUnmarshal(raw, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) putUser(cp uint64, u User) (*merkle.DeltaProof, error) {
	raw, err := commitment.MarshalCanonical(u)
	if err != nil {
		return nil, err
	}
	if err := kv.CheckpointSet(s.kv, tablePrefix(tableUserRecords), cp, userRecordKey(u.UserID), raw); err != nil {
		return nil, err
	}
	return s.users.SetLeaf(cp, u.UserID, u.LeafHash(s.hasher))
}

// GetDeposit returns the deposit record as of checkpoint cp.
func (s *Store) GetDeposit(cp uint64, depositID uint64) (L1Deposit, error) {
	raw, ok, err := kv.CheckpointGet(s.kv, tablePrefix(tableDepositRecords), cp, depositRecordKey(depositID))
	if err != nil {
		return L1Deposit{}, err
	}
	if !ok {
		return L1Deposit{}, fmt.Errorf("state: no deposit %d at or before checkpoint %d", depositID, cp)
	}
	return UnmarshalL1Deposit(raw)
}

func (s *Store) putDeposit(cp uint64, d L1Deposit) (*merkle.DeltaProof, error) {
	raw, err := d.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := kv.CheckpointSet(s.kv, tablePrefix(tableDepositRecords), cp, depositRecordKey(d.DepositID), raw); err != nil {
		return nil, err
	}
	if err := kv.CheckpointSet(s.kv, tablePrefix(tableDepositByTxid), cp, d.Txid[:], depositRecordKey(d.DepositID)); err != nil {
		return nil, err
	}
	return s.deposits.SetLeaf(cp, d.DepositID, d.LeafHash(s.hasher))
}

// FindDepositByTxid resolves the most recent deposit_id registered under
// txid as of checkpoint cp, per the deposit-by-txid secondary index spec.md
// §3 "Ownership" names as a derived view.
func (s *Store) FindDepositByTxid(cp uint64, txid Hash256) (uint64, error) {
	raw, ok, err := kv.CheckpointGet(s.kv, tablePrefix(tableDepositByTxid), cp, txid[:])
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("state: no deposit indexed under txid %x at or before checkpoint %d", txid, cp)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// GetWithdrawal returns the withdrawal record as of checkpoint cp.
func (s *Store) GetWithdrawal(cp uint64, withdrawalID uint64) (L1Withdrawal, error) {
	raw, ok, err := kv.CheckpointGet(s.kv, tablePrefix(tableWithdrawalRecords), cp, withdrawalRecordKey(withdrawalID))
	if err != nil {
		return L1Withdrawal{}, err
	}
	if !ok {
		return L1Withdrawal{}, fmt.Errorf("state: no withdrawal %d at or before checkpoint %d", withdrawalID, cp)
	}
	var w L1Withdrawal
	if err := commitment.CanonicalJSONUnmarshal(raw, &w); err != nil {
		return L1Withdrawal{}, err
	}
	return w, nil
}

func (s *Store) putWithdrawal(cp uint64, w L1Withdrawal) (*merkle.DeltaProof, error) {
	raw, err := commitment.MarshalCanonical(w)
	if err != nil {
		return nil, err
	}
	if err := kv.CheckpointSet(s.kv, tablePrefix(tableWithdrawalRecords), cp, withdrawalRecordKey(w.WithdrawalID), raw); err != nil {
		return nil, err
	}
	return s.withdrawals.SetLeaf(cp, w.WithdrawalID, w.LeafHash(s.hasher))
}

// LoadBlockState returns the block-state record as of checkpoint cp.
func (s *Store) LoadBlockState(cp uint64) (BlockState, error) {
	raw, ok, err := kv.CheckpointGet(s.kv, tablePrefix(tableBlockState), cp, nil)
	if err != nil {
		return BlockState{}, err
	}
	if !ok {
		return BlockState{}, ErrBlockMetaNotFound
	}
	var bs BlockState
	if err := commitment.CanonicalJSONUnmarshal(raw, &bs); err != nil {
		return BlockState{}, err
	}
	return bs, nil
}

// SaveBlockState persists bs at checkpoint cp.
func (s *Store) SaveBlockState(cp uint64, bs BlockState) error {
	raw, err := commitment.MarshalCanonical(bs)
	if err != nil {
		return err
	}
	return kv.CheckpointSet(s.kv, tablePrefix(tableBlockState), cp, nil, raw)
}

// SaveCursor durably persists an opaque cursor blob under the fixed cursor
// key. internal/orchestrator owns the encoding; this package only stores
// and retrieves bytes on its behalf so a restarted orchestrator can resume
// rather than replanning from checkpoint 1.
func (s *Store) SaveCursor(data []byte) error {
	return s.kv.Set(cursorKey, data)
}

// LoadCursor returns the most recently saved cursor blob, or ok=false if
// none has ever been saved.
func (s *Store) LoadCursor() (data []byte, ok bool, err error) {
	v, err := s.kv.Get(cursorKey)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// UserRoot returns the user tree's root at checkpoint cp.
func (s *Store) UserRoot(cp uint64) (field.H, error) {
	return s.users.GetRoot(cp)
}

// DepositRoot returns the deposit tree's root at checkpoint cp.
func (s *Store) DepositRoot(cp uint64) (field.H, error) {
	return s.deposits.GetRoot(cp)
}

// WithdrawalRoot returns the withdrawal tree's root at checkpoint cp.
func (s *Store) WithdrawalRoot(cp uint64) (field.H, error) {
	return s.withdrawals.GetRoot(cp)
}

// CombineRoot folds the three tree roots and a block-state record into the
// overall state root spec.md §8 defines: hash(root(user_tree, c),
// root(deposit_tree, c), root(withdrawal_tree, c), block_state(c).digest()).
// It takes bs directly (rather than loading it from cp) so callers
// mid-block -- the planner, chaining a running root action by action before
// the block's final state has been saved -- can fold against a block-state
// snapshot that has not been persisted yet.
func (s *Store) CombineRoot(userRoot, depositRoot, withdrawalRoot field.H, bs BlockState) field.H {
	left := s.hasher.Hash(userRoot, depositRoot)
	right := s.hasher.Hash(withdrawalRoot, bs.Digest(s.hasher))
	return s.hasher.Hash(left, right)
}

// Root computes the overall state root at checkpoint cp per spec.md §8:
// hash(root(user_tree, c), root(deposit_tree, c), root(withdrawal_tree, c),
// block_state(c).digest()).
func (s *Store) Root(cp uint64) (field.H, error) {
	ur, err := s.UserRoot(cp)
	if err != nil {
		return field.H{}, err
	}
	dr, err := s.DepositRoot(cp)
	if err != nil {
		return field.H{}, err
	}
	wr, err := s.WithdrawalRoot(cp)
	if err != nil {
		return field.H{}, err
	}
	bs, err := s.LoadBlockState(cp)
	if err != nil {
		return field.H{}, err
	}
	return s.CombineRoot(ur, dr, wr, bs), nil
}
