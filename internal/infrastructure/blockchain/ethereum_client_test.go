package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x00000000000000000000000000000000000000c0"

func testAddr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

type filterArgs struct {
	FromBlock string           `json:"fromBlock"`
	Addresses []common.Address `json:"address"`
	Topics    [][]common.Hash  `json:"topics"`
}

// fakeEth answers eth_call and eth_getLogs from a MemoryChain
type fakeEth struct {
	abi   abi.ABI
	chain *MemoryChain
	logs  []types.Log
	code  []byte
}

func (f *fakeEth) Call(ctx context.Context, args callArgs, block string) (hexutil.Bytes, error) {
	data := args.Input
	if len(data) == 0 {
		data = args.Data
	}
	if len(data) < 4 {
		return nil, errors.New("missing call data")
	}
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	inputs, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}

	user := entity.NormalizeAddress(inputs[0].(common.Address).Hex())
	var call service.ReadCall
	switch method.Name {
	case methodUserTotalStaked:
		call = service.TotalStakedCall(user)
	case methodGetUserStakeCount:
		call = service.StakeCountCall(user)
	case methodReferrerOf:
		call = service.ReferrerOfCall(user)
	case methodGetReferredUsers:
		call = service.ReferredUsersCall(user)
	case methodGetStake:
		call = service.StakeRecordCall(user, inputs[1].(*big.Int).Uint64())
	case methodGetStakeTokenAmount:
		call = service.StakeTokenAmountCall(user, inputs[1].(*big.Int).Uint64(), inputs[2].(*big.Int).Uint64())
	case methodReferralEarnings:
		call = service.ReferralEarningsCall(user, entity.NormalizeAddress(inputs[1].(common.Address).Hex()))
	}

	result := f.chain.BatchRead(ctx, []service.ReadCall{call})[0]
	if result.Err != nil {
		return nil, errors.New("execution reverted")
	}

	var out []byte
	switch method.Name {
	case methodReferrerOf:
		out, err = method.Outputs.Pack(common.HexToAddress(result.Address.String()))
	case methodGetReferredUsers:
		addrs := make([]common.Address, len(result.Addresses))
		for i, a := range result.Addresses {
			addrs[i] = common.HexToAddress(a.String())
		}
		out, err = method.Outputs.Pack(addrs)
	case methodGetStake:
		out, err = method.Outputs.Pack(result.Stake.Principal, new(big.Int).SetUint64(result.Stake.StartTime), result.Stake.IsFullyUnstaked)
	case methodGetStakeTokenAmount:
		out, err = method.Outputs.Pack(common.HexToAddress(result.TokenAmount.Token.String()), result.TokenAmount.Amount)
	default:
		out, err = method.Outputs.Pack(result.Amount)
	}
	return out, err
}

func (f *fakeEth) GetLogs(ctx context.Context, crit filterArgs) ([]types.Log, error) {
	var matched []types.Log
	for _, log := range f.logs {
		if len(crit.Topics) > 2 && len(crit.Topics[2]) > 0 && log.Topics[2] != crit.Topics[2][0] {
			continue
		}
		matched = append(matched, log)
	}
	return matched, nil
}

func (f *fakeEth) GetCode(ctx context.Context, account common.Address, block string) (hexutil.Bytes, error) {
	return f.code, nil
}

func newTestReader(t *testing.T, chain *MemoryChain, logs ...types.Log) (*EthereumChainReader, *rpc.Client) {
	t.Helper()

	parsed, err := ParseStakingABI()
	require.NoError(t, err)

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &fakeEth{abi: parsed, chain: chain, logs: logs}))
	t.Cleanup(server.Stop)

	client := rpc.DialInProc(server)
	reader, err := NewEthereumChainReader(client, testContract, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(reader.Close)
	return reader, client
}

func referralLog(t *testing.T, referrer, referee string, block uint64) types.Log {
	t.Helper()
	decoder, err := NewReferralLogDecoder(logger.NewNopLogger())
	require.NoError(t, err)
	return types.Log{
		Address: common.HexToAddress(testContract),
		Topics: []common.Hash{
			decoder.EventID(),
			common.BytesToHash(common.HexToAddress(referee).Bytes()),
			common.BytesToHash(common.HexToAddress(referrer).Bytes()),
		},
		Data:        []byte{},
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func TestNewEthereumChainReaderRejectsBadContract(t *testing.T) {
	server := rpc.NewServer()
	defer server.Stop()
	client := rpc.DialInProc(server)
	defer client.Close()

	_, err := NewEthereumChainReader(client, "0x1234", logger.NewNopLogger())
	assert.ErrorIs(t, err, ErrInvalidContractAddress)

	_, err = NewEthereumChainReader(client, entity.ZeroAddress.String(), logger.NewNopLogger())
	assert.ErrorIs(t, err, ErrInvalidContractAddress)
}

func TestEthereumChainReaderBatchRead(t *testing.T) {
	user, referrer := testAddr(1), testAddr(2)
	token := testAddr(0xa1)
	chain := NewMemoryChain().
		Refer(referrer, user).
		ReferInList(user, testAddr(3), testAddr(4)).
		SetTotalStaked(user, big.NewInt(1500)).
		AddStake(user, true, entity.TokenAmount{Token: entity.Address(token), Amount: big.NewInt(70)}).
		SetReferralEarnings(user, token, big.NewInt(9))

	reader, _ := newTestReader(t, chain)
	u := entity.Address(user)
	results := reader.BatchRead(context.Background(), []service.ReadCall{
		service.TotalStakedCall(u),
		service.StakeCountCall(u),
		service.ReferrerOfCall(u),
		service.ReferredUsersCall(u),
		service.StakeRecordCall(u, 0),
		service.StakeTokenAmountCall(u, 0, 0),
		service.ReferralEarningsCall(u, entity.Address(token)),
	})

	require.Len(t, results, 7)
	for i, result := range results {
		require.NoError(t, result.Err, "call %d", i)
	}
	assert.Equal(t, "1500", results[0].Amount.String())
	assert.Equal(t, "1", results[1].Amount.String())
	assert.Equal(t, entity.Address(referrer), results[2].Address)
	assert.Equal(t, []entity.Address{entity.Address(testAddr(3)), entity.Address(testAddr(4))}, results[3].Addresses)
	require.NotNil(t, results[4].Stake)
	assert.Equal(t, "70", results[4].Stake.Principal.String())
	assert.True(t, results[4].Stake.IsFullyUnstaked)
	require.NotNil(t, results[5].TokenAmount)
	assert.Equal(t, entity.Address(token), results[5].TokenAmount.Token)
	assert.Equal(t, "70", results[5].TokenAmount.Amount.String())
	assert.Equal(t, "9", results[6].Amount.String())
}

func TestEthereumChainReaderPerCallFailures(t *testing.T) {
	ok, failing := testAddr(1), testAddr(2)
	chain := NewMemoryChain().
		SetTotalStaked(ok, big.NewInt(5)).
		FailReads(service.ReadTotalStaked, failing)

	reader, _ := newTestReader(t, chain)
	results := reader.BatchRead(context.Background(), []service.ReadCall{
		service.TotalStakedCall(entity.Address(failing)),
		service.TotalStakedCall(entity.Address(ok)),
		{Kind: service.ReadKind(99), User: entity.Address(ok)},
	})

	require.Len(t, results, 3)
	assert.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, "5", results[1].Amount.String())
	assert.Error(t, results[2].Err)
}

func TestEthereumChainReaderTransportFailure(t *testing.T) {
	reader, client := newTestReader(t, NewMemoryChain())
	client.Close()

	results := reader.BatchRead(context.Background(), []service.ReadCall{
		service.TotalStakedCall(entity.Address(testAddr(1))),
		service.StakeCountCall(entity.Address(testAddr(1))),
	})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestEthereumChainReaderEmptyBatch(t *testing.T) {
	reader, _ := newTestReader(t, NewMemoryChain())
	assert.Empty(t, reader.BatchRead(context.Background(), nil))
}

func TestEthereumChainReaderQueryReferralLogs(t *testing.T) {
	referrer, other := testAddr(1), testAddr(9)
	removed := referralLog(t, referrer, testAddr(5), 12)
	removed.Removed = true

	reader, _ := newTestReader(t, NewMemoryChain(),
		referralLog(t, referrer, testAddr(2), 10),
		referralLog(t, other, testAddr(3), 11),
		referralLog(t, referrer, testAddr(4), 13),
		removed,
	)

	edges, err := reader.QueryReferralLogs(context.Background(), entity.Address(referrer), 0)

	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, entity.Address(testAddr(2)), edges[0].Referee)
	assert.Equal(t, entity.Address(referrer), edges[0].Referrer)
	assert.Equal(t, uint64(10), edges[0].BlockNumber)
	assert.Equal(t, entity.Address(testAddr(4)), edges[1].Referee)
}
