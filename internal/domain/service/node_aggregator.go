package service

import (
	"context"
	"math/big"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// maxStakesScanned bounds the per-stake expansion of one address
const maxStakesScanned = 10000

// NodeAggregator computes stake metrics for referral network nodes.
//
// Every node gets the two direct counters (total staked, stake count). Only
// depth-1 nodes get the per-stake, per-slot token split: expanding deeper
// levels would multiply remote reads by stakes x slots for rows the dashboard
// only shows as level totals. Depth >= 2 rows therefore carry no TokenSplit.
type NodeAggregator struct {
	reader ChainReader
	tokens entity.TokenSet
	logger *logger.Logger
}

// NewNodeAggregator creates an aggregator over one chain reader
func NewNodeAggregator(reader ChainReader, tokens entity.TokenSet, logger *logger.Logger) *NodeAggregator {
	return &NodeAggregator{
		reader: reader,
		tokens: tokens,
		logger: logger.WithComponent("node-aggregator"),
	}
}

// AggregateNode computes the metrics of a single address
func (a *NodeAggregator) AggregateNode(ctx context.Context, address entity.Address, depth int, cfg entity.TraversalConfig) entity.NodeAggregate {
	return a.AggregateLevel(ctx, []entity.Address{address}, depth, cfg)[0]
}

// AggregateLevel computes metrics for every address of one level using batched
// reads. Rows keep the order of addresses. Failed reads count as zero.
func (a *NodeAggregator) AggregateLevel(ctx context.Context, addresses []entity.Address, depth int, cfg entity.TraversalConfig) []entity.NodeAggregate {
	rows := make([]entity.NodeAggregate, len(addresses))
	if len(addresses) == 0 {
		return rows
	}

	calls := make([]ReadCall, 0, len(addresses)*2)
	for _, addr := range addresses {
		calls = append(calls, TotalStakedCall(addr), StakeCountCall(addr))
	}
	results := batchReadChunked(ctx, a.reader, calls, cfg.BatchSize)

	failed := 0
	for i, addr := range addresses {
		total, count := results[2*i], results[2*i+1]
		if total.Err != nil || count.Err != nil {
			failed++
		}
		rows[i] = entity.NodeAggregate{
			Address:     addr,
			Depth:       depth,
			StakeCount:  a.stakeCount(addr, count),
			TotalStaked: total.AmountOrZero(),
		}
	}

	if failed > 0 {
		a.logger.Debug("Some counter reads failed, using zero",
			zap.Int("depth", depth),
			zap.Int("nodes", len(addresses)),
			zap.Int("failed_nodes", failed))
	}

	if depth == 1 {
		a.expandTokenSplits(ctx, rows, cfg)
	}

	return rows
}

// stakeCount converts a counter read into a bounded stake count
func (a *NodeAggregator) stakeCount(addr entity.Address, result ReadResult) uint64 {
	count := result.AmountOrZero()
	if !count.IsUint64() {
		a.logger.Warn("Stake count out of range, treating as zero",
			zap.String("address", addr.String()),
			zap.String("stake_count", count.String()))
		return 0
	}
	return count.Uint64()
}

// stakeRef points at one stake of one row
type stakeRef struct {
	row   int
	index uint64
}

// expandTokenSplits reads stake records then token slots for every row and
// fills TokenSplit, reconciling TotalStaked against the split sum
func (a *NodeAggregator) expandTokenSplits(ctx context.Context, rows []entity.NodeAggregate, cfg entity.TraversalConfig) {
	var stakes []stakeRef
	var recordCalls []ReadCall
	for i := range rows {
		rows[i].TokenSplit = entity.NewTokenSplit()

		count := rows[i].StakeCount
		if count > maxStakesScanned {
			a.logger.Warn("Stake count exceeds scan bound, expanding first stakes only",
				zap.String("address", rows[i].Address.String()),
				zap.Uint64("stake_count", count),
				zap.Int("bound", maxStakesScanned))
			count = maxStakesScanned
		}
		for idx := uint64(0); idx < count; idx++ {
			stakes = append(stakes, stakeRef{row: i, index: idx})
			recordCalls = append(recordCalls, StakeRecordCall(rows[i].Address, idx))
		}
	}

	if len(stakes) > 0 && cfg.SlotsPerStake > 0 {
		records := batchReadChunked(ctx, a.reader, recordCalls, cfg.BatchSize)

		var slotRows []int
		var slotCalls []ReadCall
		for i, ref := range stakes {
			record := records[i]
			// A failed record read cannot prove the stake is closed, so its slots are still read
			if record.Err == nil && record.Stake != nil && record.Stake.IsFullyUnstaked {
				continue
			}
			for slot := 0; slot < cfg.SlotsPerStake; slot++ {
				slotRows = append(slotRows, ref.row)
				slotCalls = append(slotCalls, StakeTokenAmountCall(rows[ref.row].Address, ref.index, uint64(slot)))
			}
		}

		slots := batchReadChunked(ctx, a.reader, slotCalls, cfg.BatchSize)
		for i, slot := range slots {
			if slot.Err != nil || slot.TokenAmount == nil {
				continue
			}
			category, ok := a.tokens.Categorize(slot.TokenAmount.Token)
			if !ok {
				continue
			}
			rows[slotRows[i]].TokenSplit.Add(category, slot.TokenAmount.Amount)
		}
	}

	for i := range rows {
		before := new(big.Int).Set(rows[i].TotalStaked)
		rows[i].Reconcile()
		if before.Cmp(rows[i].TotalStaked) != 0 {
			a.logger.Debug("Reconciled total staked from token split",
				zap.String("address", rows[i].Address.String()),
				zap.String("counter", before.String()),
				zap.String("split_total", rows[i].TotalStaked.String()))
		}
	}
}
