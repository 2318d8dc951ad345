// Copyright 2025 Certen Protocol
//
// Package proofstore implements the durable JobId-addressed proof store of
// spec.md §4.4/§6: {JobId} -> bytes and {JobId}.counter -> u32, backed by
// the same KV abstraction as the state trees so every write is durable
// before its caller's Set call returns (kv.Adapter uses SetSync, grounded
// on the teacher's pkg/kvdb.KVAdapter). inc_counter is linearized with a
// mutex since workers share one process's worker pool (§5 "Workers are a
// pool of parallel threads that pull from the work topic").

package proofstore

import (
	"encoding/binary"
	"sync"

	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/kv"
)

// Store is the durable proof store: one bytes value and one u32 counter per
// JobId.
type Store struct {
	kv kv.Store
	mu sync.Mutex
}

// New constructs a Store over the given KV backend.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func proofKey(id jobid.ID) []byte {
	b := id.Bytes()
	return append([]byte("proof:"), b[:]...)
}

func counterKey(id jobid.ID) []byte {
	return []byte("counter:" + id.CounterKey())
}

func bytesKey(id jobid.ID) []byte {
	b := id.Bytes()
	return append([]byte("bytes:"), b[:]...)
}

// GetProof returns the proof bytes stored under id.
func (s *Store) GetProof(id jobid.ID) ([]byte, error) {
	v, err := s.kv.Get(proofKey(id))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// SetProof durably stores proof bytes under id. Each id has exactly one
// producer (§5), so this never races with another writer for the same id.
func (s *Store) SetProof(id jobid.ID, proof []byte) error {
	return s.kv.Set(proofKey(id), proof)
}

// GetBytes returns the auxiliary blob (e.g. a raw signature) stored under
// id.
func (s *Store) GetBytes(id jobid.ID) ([]byte, error) {
	v, err := s.kv.Get(bytesKey(id))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// SetBytes durably stores an auxiliary blob under id. The RPC processor's
// idempotent ingest (§4.5) relies on this being safe to call more than once
// with the same (id, bytes) pair under at-least-once delivery.
func (s *Store) SetBytes(id jobid.ID, data []byte) error {
	return s.kv.Set(bytesKey(id), data)
}

// IncCounter atomically increments id's readiness counter and returns the
// post-increment value. The aggregation scheduler (§4.3) enqueues a parent
// job once this reaches 2, so callers must observe the return value, not a
// separately issued Get.
func (s *Store) IncCounter(id jobid.ID) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(id)
	cur, err := s.kv.Get(key)
	if err != nil {
		return 0, err
	}
	var n uint32
	if cur != nil {
		n = binary.BigEndian.Uint32(cur)
	}
	n++
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	if err := s.kv.Set(key, buf); err != nil {
		return 0, err
	}
	return n, nil
}

// Counter returns id's current readiness counter without incrementing it.
func (s *Store) Counter(id jobid.ID) (uint32, error) {
	v, err := s.kv.Get(counterKey(id))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return binary.BigEndian.Uint32(v), nil
}
