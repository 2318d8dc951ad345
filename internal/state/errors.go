// Copyright 2025 Certen Protocol
//
// Package state provides sentinel errors for state-tree operations.

package state

import "errors"

var (
	// ErrUserNotFound is returned when a referenced user_id has never been registered.
	ErrUserNotFound = errors.New("state: user not found")
	// ErrNonceMismatch is returned when a supplied nonce does not match the stored nonce.
	ErrNonceMismatch = errors.New("state: nonce mismatch")
	// ErrInsufficientBalance is returned when a decrement would underflow balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrDepositAlreadyClaimed is returned when a deposit leaf has already been zeroed.
	ErrDepositAlreadyClaimed = errors.New("state: deposit already claimed")
	// ErrWithdrawalAlreadyProcessed is returned when a withdrawal leaf has already been zeroed.
	ErrWithdrawalAlreadyProcessed = errors.New("state: withdrawal already processed")
	// ErrDepositTooSmall is returned when a deposit's value does not exceed DepositFee.
	ErrDepositTooSmall = errors.New("state: deposit value does not exceed deposit fee")
	// ErrInvalidAddressType is returned when a withdrawal's address type is not p2sh/p2pkh.
	ErrInvalidAddressType = errors.New("state: invalid withdrawal address type")
	// ErrBlockMetaNotFound is returned when no block state has been committed yet for a checkpoint.
	ErrBlockMetaNotFound = errors.New("state: block meta not found")
)
