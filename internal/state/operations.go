// Copyright 2025 Certen Protocol
//
// Operations implements the six state-mutating primitives spec.md §4.2
// names as the block planner's fixed global action order. Each primitive
// performs the user-tree operation before the domain-tree operation the
// step describes, so a failed precondition check aborts before any domain
// tree write, mirroring the op_processor.rs dispatch in
// original_source/city_rollup_core_orchestrator (RequestRegisterUser,
// RequestClaimDeposit, RequestL2Transfer, RequestL1Withdrawal,
// RequestL1WithdrawalProcessing, RequestL1Deposit).

package state

import "github.com/certen/rollup-coordinator/internal/merkle"

// RegisterUser appends a fresh user at userID with zero balance and nonce,
// step 1 of spec.md §4.2.
func (s *Store) RegisterUser(cp uint64, userID uint64, publicKey [4]uint64) (*merkle.DeltaProof, error) {
	u := User{UserID: userID, Balance: 0, Nonce: 0, Alt0: 0, Alt1: 0, PublicKey: publicKey}
	return s.putUser(cp, u)
}

// ClaimDeposit marks depositID's leaf ZERO and credits claimantUserID's
// balance by value-DepositFee, step 2 of spec.md §4.2. Returns the credited
// amount for the caller's total_deposits_claimed_epoch bookkeeping.
func (s *Store) ClaimDeposit(cp uint64, depositID uint64, claimantUserID uint64) (userProof, depositProof *merkle.DeltaProof, credited uint64, err error) {
	deposit, err := s.GetDeposit(cp, depositID)
	if err != nil {
		return nil, nil, 0, err
	}
	if deposit.Claimed() {
		return nil, nil, 0, ErrDepositAlreadyClaimed
	}
	if deposit.Value <= DepositFee {
		return nil, nil, 0, ErrDepositTooSmall
	}
	credited = deposit.Value - DepositFee

	user, err := s.GetUser(cp, claimantUserID)
	if err != nil {
		return nil, nil, 0, err
	}
	user.Balance += credited
	userProof, err = s.putUser(cp, user)
	if err != nil {
		return nil, nil, 0, err
	}

	zeroed := deposit
	zeroed.Value = 0
	depositProof, err = s.putDeposit(cp, zeroed)
	if err != nil {
		return nil, nil, 0, err
	}
	return userProof, depositProof, credited, nil
}

// Transfer decrements senderID by value at nonce and credits recipientID,
// step 3 of spec.md §4.2. The recipient never supplies a nonce.
func (s *Store) Transfer(cp uint64, senderID, recipientID uint64, value, nonce uint64) (senderProof, recipientProof *merkle.DeltaProof, err error) {
	sender, err := s.GetUser(cp, senderID)
	if err != nil {
		return nil, nil, err
	}
	if sender.Nonce != nonce {
		return nil, nil, ErrNonceMismatch
	}
	if sender.Balance < value {
		return nil, nil, ErrInsufficientBalance
	}
	sender.Balance -= value
	sender.Nonce++
	senderProof, err = s.putUser(cp, sender)
	if err != nil {
		return nil, nil, err
	}

	recipient, err := s.GetUser(cp, recipientID)
	if err != nil {
		return nil, nil, err
	}
	recipient.Balance += value
	recipientProof, err = s.putUser(cp, recipient)
	if err != nil {
		return nil, nil, err
	}
	return senderProof, recipientProof, nil
}

// AddWithdrawal decrements userID by value+WithdrawalFee at nonce and
// appends a withdrawal leaf at withdrawalID, step 4 of spec.md §4.2. Returns
// the total debited (value+WithdrawalFee) for block_total_withdrawn.
func (s *Store) AddWithdrawal(cp uint64, userID uint64, nonce uint64, withdrawalID uint64, addr Hash160, addrType AddressType, value uint64) (userProof, withdrawalProof *merkle.DeltaProof, debited uint64, err error) {
	if !addrType.Valid() {
		return nil, nil, 0, ErrInvalidAddressType
	}
	debited = value + WithdrawalFee

	user, err := s.GetUser(cp, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	if user.Nonce != nonce {
		return nil, nil, 0, ErrNonceMismatch
	}
	if user.Balance < debited {
		return nil, nil, 0, ErrInsufficientBalance
	}
	user.Balance -= debited
	user.Nonce++
	userProof, err = s.putUser(cp, user)
	if err != nil {
		return nil, nil, 0, err
	}

	w := L1Withdrawal{WithdrawalID: withdrawalID, Address: addr, AddressType: addrType, Value: value}
	withdrawalProof, err = s.putWithdrawal(cp, w)
	if err != nil {
		return nil, nil, 0, err
	}
	return userProof, withdrawalProof, debited, nil
}

// ProcessWithdrawal marks withdrawalID's leaf ZERO, step 5 of spec.md §4.2.
func (s *Store) ProcessWithdrawal(cp uint64, withdrawalID uint64) (*merkle.DeltaProof, error) {
	w, err := s.GetWithdrawal(cp, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.Processed() {
		return nil, ErrWithdrawalAlreadyProcessed
	}
	w.Value = 0
	return s.putWithdrawal(cp, w)
}

// AddDeposit appends a new deposit leaf at depositID, step 6 of spec.md
// §4.2. Returns the fee-adjusted amount for block_total_deposited.
func (s *Store) AddDeposit(cp uint64, depositID uint64, value uint64, txid Hash256, publicKey [33]byte) (*merkle.DeltaProof, uint64, error) {
	if value <= DepositFee {
		return nil, 0, ErrDepositTooSmall
	}
	d := L1Deposit{DepositID: depositID, CheckpointID: cp, Value: value, Txid: txid, PublicKey: publicKey}
	proof, err := s.putDeposit(cp, d)
	if err != nil {
		return nil, 0, err
	}
	return proof, value - DepositFee, nil
}
