package blockchain

import (
	"testing"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralLogDecoderEventID(t *testing.T) {
	decoder, err := NewReferralLogDecoder(logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, crypto.Keccak256Hash([]byte("ReferralAssigned(address,address)")), decoder.EventID())
}

func TestDecodeReferralLog(t *testing.T) {
	decoder, err := NewReferralLogDecoder(logger.NewNopLogger())
	require.NoError(t, err)

	edge, err := decoder.DecodeReferralLog(referralLog(t, testAddr(1), testAddr(2), 42))

	require.NoError(t, err)
	assert.Equal(t, entity.Address(testAddr(1)), edge.Referrer)
	assert.Equal(t, entity.Address(testAddr(2)), edge.Referee)
	assert.Equal(t, uint64(42), edge.BlockNumber)
	assert.Nil(t, edge.AssignedAt)
}

func TestDecodeReferralLogRejectsOtherLogs(t *testing.T) {
	decoder, err := NewReferralLogDecoder(logger.NewNopLogger())
	require.NoError(t, err)

	wrongTopic := referralLog(t, testAddr(1), testAddr(2), 1)
	wrongTopic.Topics[0] = common.HexToHash("0x01")
	_, err = decoder.DecodeReferralLog(wrongTopic)
	assert.ErrorIs(t, err, ErrNotReferralLog)

	short := referralLog(t, testAddr(1), testAddr(2), 1)
	short.Topics = short.Topics[:2]
	_, err = decoder.DecodeReferralLog(short)
	assert.ErrorIs(t, err, ErrNotReferralLog)
}

func TestDecodeReferralLogsSkipsRemovedAndForeign(t *testing.T) {
	decoder, err := NewReferralLogDecoder(logger.NewNopLogger())
	require.NoError(t, err)

	removed := referralLog(t, testAddr(1), testAddr(3), 2)
	removed.Removed = true
	foreign := types.Log{Topics: []common.Hash{common.HexToHash("0x02")}}

	edges := decoder.DecodeReferralLogs([]types.Log{
		referralLog(t, testAddr(1), testAddr(2), 1),
		removed,
		foreign,
		referralLog(t, testAddr(1), testAddr(4), 3),
	})

	require.Len(t, edges, 2)
	assert.Equal(t, entity.Address(testAddr(2)), edges[0].Referee)
	assert.Equal(t, entity.Address(testAddr(4)), edges[1].Referee)
}
