// Copyright 2025 Certen Protocol
//
// Package kv is the ordered binary KV abstraction every tree and index in
// this repository is built on. It wraps CometBFT's dbm.DB exactly the way
// the teacher's pkg/kvdb.KVAdapter wraps it for ledger.KV, extended with the
// descending range iteration the checkpointed merkle tree needs for its
// "greatest-key-less-or-equal" checkpoint fallback (§4.1, §9 "per-checkpoint
// copy-on-write trees").

package kv

import (
	dbm "github.com/cometbft/cometbft-db"
)

// Store is the ordered byte-keyed interface every tree and index in this
// repository is built against: point get, point put, and a bounded
// descending iteration used to implement checkpoint fallback reads.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	// IterateReverse walks keys in the closed range [lowerBound, upperBound]
	// in descending order, calling fn for each. fn returns false to stop
	// early. Keys are compared lexicographically, matching the big-endian
	// field ordering spec.md §4.1/§6 rely on for checkpoint scans.
	IterateReverse(lowerBound, upperBound []byte, fn func(key, value []byte) (bool, error)) error
}

// Adapter wraps a CometBFT dbm.DB and exposes the Store interface. This
// allows every tree and index in this repository to use CometBFT's
// persistent storage directly, the same pattern the teacher's
// pkg/kvdb.KVAdapter uses for ledger.KV.
type Adapter struct {
	db dbm.DB
}

// NewAdapter creates a new Adapter for the given underlying DB.
func NewAdapter(db dbm.DB) *Adapter {
	return &Adapter{db: db}
}

// Get implements Store.Get.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	// v may be nil if key not found -- callers treat nil as "not present".
	return v, nil
}

// Set implements Store.Set using SetSync for durable writes.
func (a *Adapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.SetSync(key, value)
}

// IterateReverse implements Store.IterateReverse via dbm's ReverseIterator.
// dbm excludes its end bound, so the scan includes upperBound by probing one
// byte past it.
func (a *Adapter) IterateReverse(lowerBound, upperBound []byte, fn func(key, value []byte) (bool, error)) error {
	if a.db == nil {
		return nil
	}
	end := append(append([]byte{}, upperBound...), 0x00)
	it, err := a.db.ReverseIterator(lowerBound, end)
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		cont, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
