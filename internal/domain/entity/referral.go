package entity

import (
	"math/big"
	"time"
)

// ReferralEdge represents one referrer -> referee assignment observed on chain
type ReferralEdge struct {
	Referrer    Address    `json:"referrer"`
	Referee     Address    `json:"referee"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	BlockNumber uint64     `json:"block_number,omitempty"`
}

// StakeRecord represents one stake position opened by an address
type StakeRecord struct {
	Index           uint64   `json:"index"`
	Principal       *big.Int `json:"principal"`
	StartTime       uint64   `json:"start_time"`
	IsFullyUnstaked bool     `json:"is_fully_unstaked"`
}

// TokenAmount is one (token, amount) slot of a stake
type TokenAmount struct {
	Token  Address  `json:"token"`
	Amount *big.Int `json:"amount"`
}

// NodeAggregate holds one address's metrics at the point of traversal
type NodeAggregate struct {
	Address     Address     `json:"address"`
	Referrer    Address     `json:"referrer,omitempty"`
	Depth       int         `json:"depth"`
	StakeCount  uint64      `json:"stake_count"`
	TotalStaked *big.Int    `json:"total_staked"`
	TokenSplit  *TokenSplit `json:"token_split,omitempty"`
}

// Reconcile keeps TotalStaked at or above the split sum. A zero counter with a
// positive split (partial data) is the usual case where the split wins.
func (n *NodeAggregate) Reconcile() {
	if n.TotalStaked == nil {
		n.TotalStaked = new(big.Int)
	}
	if n.TokenSplit == nil {
		return
	}
	splitTotal := n.TokenSplit.Sum()
	if splitTotal.Sign() > 0 && n.TotalStaked.Cmp(splitTotal) < 0 {
		n.TotalStaked = splitTotal
	}
}

// LevelInfo groups the nodes found at one distance from the root
type LevelInfo struct {
	Level       int             `json:"level"`
	TotalStaked *big.Int        `json:"total_staked"`
	Rows        []NodeAggregate `json:"rows"`
}

// NewLevelInfo builds a level and sums its rows
func NewLevelInfo(level int, rows []NodeAggregate) LevelInfo {
	total := new(big.Int)
	for _, row := range rows {
		if row.TotalStaked != nil {
			total.Add(total, row.TotalStaked)
		}
	}
	return LevelInfo{Level: level, TotalStaked: total, Rows: rows}
}

// RootMetrics are the root address's own direct figures
type RootMetrics struct {
	TotalStaked *big.Int          `json:"total_staked"`
	StakeCount  uint64            `json:"stake_count"`
	Referrer    *Address          `json:"referrer,omitempty"`
	Claimable   ClaimableBalances `json:"claimable"`
}
