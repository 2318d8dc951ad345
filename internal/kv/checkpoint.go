// Copyright 2025 Certen Protocol
//
// Checkpoint helpers implement the "greatest-key-less-or-equal" read pattern
// spec.md §4.1/§9 describes for every per-checkpoint copy-on-write table in
// this repository: merkle tree nodes, the raw user/deposit/withdrawal
// records behind them, and their secondary indexes. Every such table shares
// one key shape, prefix ‖ checkpoint_id(8 BE) ‖ suffix, with the checkpoint
// id sitting between a fixed prefix (a table tag) and a per-row suffix (a
// tree address or record index) -- so a single helper can serve them all.

package kv

import (
	"bytes"
	"encoding/binary"
)

// BuildCheckpointKey assembles prefix ‖ checkpoint_id(8 BE) ‖ suffix.
func BuildCheckpointKey(prefix []byte, cp uint64, suffix []byte) []byte {
	key := make([]byte, len(prefix)+8+len(suffix))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):len(prefix)+8], cp)
	copy(key[len(prefix)+8:], suffix)
	return key
}

// CheckpointGet returns the value written under (prefix, suffix) at the
// greatest checkpoint <= cp, falling back through cp-1, cp-2, … as spec.md
// §4.1 describes. The second return value is false if no such row exists
// at any checkpoint <= cp.
func CheckpointGet(store Store, prefix []byte, cp uint64, suffix []byte) ([]byte, bool, error) {
	upper := BuildCheckpointKey(prefix, cp, suffix)
	var found []byte
	hasFound := false
	err := store.IterateReverse(prefix, upper, func(key, value []byte) (bool, error) {
		if len(key) != len(upper) {
			return true, nil
		}
		if !bytes.Equal(key[len(key)-len(suffix):], suffix) {
			return true, nil
		}
		found = append([]byte{}, value...)
		hasFound = true
		return false, nil
	})
	return found, hasFound, err
}

// CheckpointSet writes value under (prefix, suffix) at checkpoint cp. Per
// the append-structured model, this never mutates any earlier checkpoint's
// row for the same suffix.
func CheckpointSet(store Store, prefix []byte, cp uint64, suffix, value []byte) error {
	return store.Set(BuildCheckpointKey(prefix, cp, suffix), value)
}
