package service_test

import (
	"context"
	"math/big"
	"testing"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/blockchain"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(chain *blockchain.MemoryChain) *service.NodeAggregator {
	return service.NewNodeAggregator(chain, testTokens, logger.NewNopLogger())
}

func TestAggregateNodeReconcilesZeroCounter(t *testing.T) {
	user := addr(10)
	chain := blockchain.NewMemoryChain().
		AddStake(user, false, slot(tokenYY, 40), slot(tokenPY, 2))

	row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

	require.NotNil(t, row.TokenSplit)
	assert.Equal(t, "40", row.TokenSplit.YY.String())
	assert.Equal(t, "0", row.TokenSplit.SY.String())
	assert.Equal(t, "2", row.TokenSplit.PY.String())
	assert.Equal(t, "42", row.TotalStaked.String())
	assert.Equal(t, uint64(1), row.StakeCount)
	assert.Equal(t, 1, row.Depth)
}

func TestAggregateNodeKeepsLargerCounter(t *testing.T) {
	user := addr(10)
	chain := blockchain.NewMemoryChain().
		SetTotalStaked(user, big.NewInt(500)).
		AddStake(user, false, slot(tokenSY, 100))

	row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

	assert.Equal(t, "500", row.TotalStaked.String())
	assert.Equal(t, "100", row.TokenSplit.SY.String())
}

func TestAggregateNodeSkipsSplitBelowDepthOne(t *testing.T) {
	user := addr(10)
	chain := blockchain.NewMemoryChain().
		SetTotalStaked(user, big.NewInt(7)).
		AddStake(user, false, slot(tokenYY, 40))

	row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 2, testConfig())

	assert.Nil(t, row.TokenSplit)
	assert.Equal(t, "7", row.TotalStaked.String())
	assert.Equal(t, 0, chain.Reads(service.ReadStakeRecord))
	assert.Equal(t, 0, chain.Reads(service.ReadStakeTokenAmount))
}

func TestAggregateNodeSkipsFullyUnstaked(t *testing.T) {
	user := addr(10)
	chain := blockchain.NewMemoryChain().
		AddStake(user, true, slot(tokenYY, 100)).
		AddStake(user, false, slot(tokenSY, 5))

	row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

	assert.Equal(t, "0", row.TokenSplit.YY.String())
	assert.Equal(t, "5", row.TokenSplit.SY.String())
	assert.Equal(t, "5", row.TotalStaked.String())
	assert.Equal(t, 3, chain.Reads(service.ReadStakeTokenAmount), "only the open stake's slots are read")
}

func TestAggregateNodeIgnoresUnknownTokens(t *testing.T) {
	user := addr(10)
	chain := blockchain.NewMemoryChain().
		AddStake(user, false, slot(addr(0xdead), 1000), slot(tokenPY, 3))

	row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

	assert.Equal(t, "3", row.TokenSplit.Sum().String())
	assert.Equal(t, "3", row.TotalStaked.String())
}

func TestAggregateNodeFailedReadsCountAsZero(t *testing.T) {
	user := addr(10)

	t.Run("counters", func(t *testing.T) {
		chain := blockchain.NewMemoryChain().
			SetTotalStaked(user, big.NewInt(99)).
			AddStake(user, false, slot(tokenYY, 1)).
			FailReads(service.ReadTotalStaked, user).
			FailReads(service.ReadStakeCount, user)

		row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

		assert.Equal(t, "0", row.TotalStaked.String())
		assert.Equal(t, uint64(0), row.StakeCount)
		assert.Equal(t, "0", row.TokenSplit.Sum().String())
	})

	t.Run("stake record still reads slots", func(t *testing.T) {
		chain := blockchain.NewMemoryChain().
			AddStake(user, false, slot(tokenYY, 7)).
			FailReads(service.ReadStakeRecord, user)

		row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

		assert.Equal(t, "7", row.TokenSplit.YY.String())
	})

	t.Run("slots", func(t *testing.T) {
		chain := blockchain.NewMemoryChain().
			SetTotalStaked(user, big.NewInt(4)).
			AddStake(user, false, slot(tokenYY, 7)).
			FailReads(service.ReadStakeTokenAmount, user)

		row := newAggregator(chain).AggregateNode(context.Background(), entity.Address(user), 1, testConfig())

		assert.Equal(t, "0", row.TokenSplit.Sum().String())
		assert.Equal(t, "4", row.TotalStaked.String())
	})
}

func TestAggregateLevelPreservesOrderAndChunks(t *testing.T) {
	chain := blockchain.NewMemoryChain()
	addresses := make([]entity.Address, 5)
	for i := range addresses {
		a := addr(100 + i)
		chain.SetTotalStaked(a, big.NewInt(int64(i+1)))
		addresses[i] = entity.Address(a)
	}

	cfg := testConfig()
	cfg.BatchSize = 2
	rows := newAggregator(chain).AggregateLevel(context.Background(), addresses, 3, cfg)

	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, addresses[i], row.Address)
		assert.Equal(t, big.NewInt(int64(i+1)).String(), row.TotalStaked.String())
		assert.Equal(t, 3, row.Depth)
	}
	// 10 counter reads in chunks of 2
	assert.Equal(t, 5, chain.BatchCalls())
}

func TestAggregateLevelEmpty(t *testing.T) {
	chain := blockchain.NewMemoryChain()
	rows := newAggregator(chain).AggregateLevel(context.Background(), nil, 1, testConfig())

	assert.Empty(t, rows)
	assert.Equal(t, 0, chain.BatchCalls())
}

type shortReader struct {
	service.ChainReader
}

func (shortReader) BatchRead(ctx context.Context, calls []service.ReadCall) []service.ReadResult {
	return []service.ReadResult{{Amount: big.NewInt(1)}}
}

func TestAggregateLevelMisalignedBatchCountsAsZero(t *testing.T) {
	aggregator := service.NewNodeAggregator(shortReader{}, testTokens, logger.NewNopLogger())

	rows := aggregator.AggregateLevel(context.Background(), []entity.Address{entity.Address(addr(1))}, 2, testConfig())

	require.Len(t, rows, 1)
	assert.Equal(t, "0", rows[0].TotalStaked.String())
}
