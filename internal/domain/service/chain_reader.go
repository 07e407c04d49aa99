package service

import (
	"context"
	"math/big"

	"referral-network-indexer/internal/domain/entity"
)

// ReadKind identifies one read accessor of the staking contract
type ReadKind int

const (
	ReadTotalStaked ReadKind = iota
	ReadStakeCount
	ReadReferrerOf
	ReadReferredUsers
	ReadStakeRecord
	ReadStakeTokenAmount
	ReadReferralEarnings
)

// String returns the accessor name used in logs
func (k ReadKind) String() string {
	switch k {
	case ReadTotalStaked:
		return "total_staked"
	case ReadStakeCount:
		return "stake_count"
	case ReadReferrerOf:
		return "referrer_of"
	case ReadReferredUsers:
		return "referred_users"
	case ReadStakeRecord:
		return "stake_record"
	case ReadStakeTokenAmount:
		return "stake_token_amount"
	case ReadReferralEarnings:
		return "referral_earnings"
	}
	return "unknown"
}

// ReadCall is one independent request inside a batch
type ReadCall struct {
	Kind       ReadKind
	User       entity.Address
	StakeIndex uint64
	SlotIndex  uint64
	Token      entity.Address
}

// ReadResult is the outcome of the ReadCall at the same position.
// Exactly one of the value fields matching the call kind is set when Err is nil.
type ReadResult struct {
	Amount      *big.Int
	Address     entity.Address
	Addresses   []entity.Address
	Stake       *entity.StakeRecord
	TokenAmount *entity.TokenAmount
	Err         error
}

// AmountOrZero returns the amount, or zero for failed or empty reads
func (r ReadResult) AmountOrZero() *big.Int {
	if r.Err != nil || r.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.Amount)
}

// ChainReader is the read-only view of the staking contract the aggregator depends on
type ChainReader interface {
	// BatchRead executes independent reads and returns results aligned with calls.
	// A failure of one call never aborts the others.
	BatchRead(ctx context.Context, calls []ReadCall) []ReadResult

	// QueryReferralLogs returns ReferralAssigned records whose referrer matches,
	// from fromBlock up to the latest block
	QueryReferralLogs(ctx context.Context, referrer entity.Address, fromBlock uint64) ([]entity.ReferralEdge, error)
}

// TotalStakedCall builds a total-staked counter read
func TotalStakedCall(user entity.Address) ReadCall {
	return ReadCall{Kind: ReadTotalStaked, User: user}
}

// StakeCountCall builds a stake-count counter read
func StakeCountCall(user entity.Address) ReadCall {
	return ReadCall{Kind: ReadStakeCount, User: user}
}

// ReferrerOfCall builds a referrer lookup
func ReferrerOfCall(user entity.Address) ReadCall {
	return ReadCall{Kind: ReadReferrerOf, User: user}
}

// ReferredUsersCall builds the per-address referee list read
func ReferredUsersCall(user entity.Address) ReadCall {
	return ReadCall{Kind: ReadReferredUsers, User: user}
}

// StakeRecordCall builds a per-stake record read
func StakeRecordCall(user entity.Address, stakeIndex uint64) ReadCall {
	return ReadCall{Kind: ReadStakeRecord, User: user, StakeIndex: stakeIndex}
}

// StakeTokenAmountCall builds a per-stake, per-slot (token, amount) read
func StakeTokenAmountCall(user entity.Address, stakeIndex, slotIndex uint64) ReadCall {
	return ReadCall{Kind: ReadStakeTokenAmount, User: user, StakeIndex: stakeIndex, SlotIndex: slotIndex}
}

// ReferralEarningsCall builds a claimable referral earnings read for one token
func ReferralEarningsCall(user, token entity.Address) ReadCall {
	return ReadCall{Kind: ReadReferralEarnings, User: user, Token: token}
}
