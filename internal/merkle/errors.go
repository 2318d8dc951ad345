// Copyright 2025 Certen Protocol
//
// Package merkle provides sentinel errors for tree operations.

package merkle

import "errors"

var (
	// ErrIndexOutOfRange is returned when idx >= 2^h for the tree's height.
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
	// ErrNoSuchCheckpoint names the case of a checkpoint at or before which
	// the tree has never been written. The Tree's reads do not return it:
	// such a checkpoint reads as the empty tree (zero-hash nodes).
	ErrNoSuchCheckpoint = errors.New("merkle: no version at or before requested checkpoint")
)
