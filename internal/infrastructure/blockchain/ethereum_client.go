package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

var (
	// ErrInvalidContractAddress is returned when the staking contract address is not a usable address
	ErrInvalidContractAddress = errors.New("invalid staking contract address")
	// ErrUnexpectedOutput is returned when a call result does not match the ABI output shape
	ErrUnexpectedOutput = errors.New("unexpected contract output")
)

// EthereumChainReader reads the staking contract over JSON-RPC. Every BatchRead
// is sent as a single JSON-RPC batch of eth_call requests.
type EthereumChainReader struct {
	rpc      *rpc.Client
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	decoder  *ReferralLogDecoder
	logger   *logger.Logger
}

// DialEthereumChainReader connects to rpcURL and creates a reader for contract
func DialEthereumChainReader(ctx context.Context, rpcURL, contract string, logger *logger.Logger) (*EthereumChainReader, error) {
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum rpc: %w", err)
	}
	reader, err := NewEthereumChainReader(client, contract, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return reader, nil
}

// NewEthereumChainReader creates a reader over an existing RPC client
func NewEthereumChainReader(client *rpc.Client, contract string, logger *logger.Logger) (*EthereumChainReader, error) {
	addr := entity.NormalizeAddress(contract)
	if !addr.IsValid() || addr.IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContractAddress, contract)
	}

	parsed, err := ParseStakingABI()
	if err != nil {
		return nil, err
	}
	decoder, err := NewReferralLogDecoder(logger)
	if err != nil {
		return nil, err
	}

	return &EthereumChainReader{
		rpc:      client,
		eth:      ethclient.NewClient(client),
		contract: common.HexToAddress(addr.String()),
		abi:      parsed,
		decoder:  decoder,
		logger:   logger.WithComponent("ethereum-chain-reader"),
	}, nil
}

// Close closes the underlying RPC connection
func (r *EthereumChainReader) Close() {
	r.rpc.Close()
}

// BatchRead implements service.ChainReader
func (r *EthereumChainReader) BatchRead(ctx context.Context, calls []service.ReadCall) []service.ReadResult {
	results := make([]service.ReadResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	elems := make([]rpc.BatchElem, 0, len(calls))
	positions := make([]int, 0, len(calls))
	outputs := make([]hexutil.Bytes, len(calls))
	methods := make([]string, len(calls))

	for i, call := range calls {
		method, input, err := r.pack(call)
		if err != nil {
			results[i].Err = err
			continue
		}
		methods[i] = method
		elems = append(elems, rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":    r.contract,
					"data":  hexutil.Bytes(input),
					"input": hexutil.Bytes(input),
				},
				"latest",
			},
			Result: &outputs[i],
		})
		positions = append(positions, i)
	}

	if len(elems) == 0 {
		return results
	}

	if err := r.rpc.BatchCallContext(ctx, elems); err != nil {
		r.logger.Debug("Batch read failed",
			zap.Int("calls", len(elems)),
			zap.Error(err))
		for _, pos := range positions {
			results[pos].Err = fmt.Errorf("failed to send batch: %w", err)
		}
		return results
	}

	for j, elem := range elems {
		pos := positions[j]
		if elem.Error != nil {
			results[pos].Err = fmt.Errorf("%s failed: %w", methods[pos], elem.Error)
			continue
		}
		results[pos] = r.unpack(calls[pos], methods[pos], outputs[pos])
	}

	return results
}

// pack encodes a read call into contract call data
func (r *EthereumChainReader) pack(call service.ReadCall) (string, []byte, error) {
	method, err := methodFor(call.Kind)
	if err != nil {
		return "", nil, err
	}

	user := common.HexToAddress(call.User.String())
	var args []interface{}
	switch call.Kind {
	case service.ReadStakeRecord:
		args = []interface{}{user, new(big.Int).SetUint64(call.StakeIndex)}
	case service.ReadStakeTokenAmount:
		args = []interface{}{user, new(big.Int).SetUint64(call.StakeIndex), new(big.Int).SetUint64(call.SlotIndex)}
	case service.ReadReferralEarnings:
		args = []interface{}{user, common.HexToAddress(call.Token.String())}
	default:
		args = []interface{}{user}
	}

	input, err := r.abi.Pack(method, args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return method, input, nil
}

// unpack decodes the output of one call into a ReadResult
func (r *EthereumChainReader) unpack(call service.ReadCall, method string, output []byte) service.ReadResult {
	values, err := r.abi.Unpack(method, output)
	if err != nil {
		return service.ReadResult{Err: fmt.Errorf("failed to unpack %s: %w", method, err)}
	}

	switch call.Kind {
	case service.ReadTotalStaked, service.ReadStakeCount, service.ReadReferralEarnings:
		amount, ok := valueAt[*big.Int](values, 0)
		if !ok {
			return unexpected(method)
		}
		return service.ReadResult{Amount: amount}

	case service.ReadReferrerOf:
		addr, ok := valueAt[common.Address](values, 0)
		if !ok {
			return unexpected(method)
		}
		return service.ReadResult{Address: entity.NormalizeAddress(addr.Hex())}

	case service.ReadReferredUsers:
		addrs, ok := valueAt[[]common.Address](values, 0)
		if !ok {
			return unexpected(method)
		}
		referees := make([]entity.Address, 0, len(addrs))
		for _, addr := range addrs {
			referees = append(referees, entity.NormalizeAddress(addr.Hex()))
		}
		return service.ReadResult{Addresses: referees}

	case service.ReadStakeRecord:
		principal, ok1 := valueAt[*big.Int](values, 0)
		startTime, ok2 := valueAt[*big.Int](values, 1)
		unstaked, ok3 := valueAt[bool](values, 2)
		if !ok1 || !ok2 || !ok3 {
			return unexpected(method)
		}
		record := &entity.StakeRecord{
			Index:           call.StakeIndex,
			Principal:       principal,
			IsFullyUnstaked: unstaked,
		}
		if startTime.IsUint64() {
			record.StartTime = startTime.Uint64()
		}
		return service.ReadResult{Stake: record}

	case service.ReadStakeTokenAmount:
		token, ok1 := valueAt[common.Address](values, 0)
		amount, ok2 := valueAt[*big.Int](values, 1)
		if !ok1 || !ok2 {
			return unexpected(method)
		}
		return service.ReadResult{TokenAmount: &entity.TokenAmount{
			Token:  entity.NormalizeAddress(token.Hex()),
			Amount: amount,
		}}
	}

	return unexpected(method)
}

// QueryReferralLogs implements service.ChainReader
func (r *EthereumChainReader) QueryReferralLogs(ctx context.Context, referrer entity.Address, fromBlock uint64) ([]entity.ReferralEdge, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{r.contract},
		Topics: [][]common.Hash{
			{r.decoder.EventID()},
			nil,
			{common.BytesToHash(common.HexToAddress(referrer.String()).Bytes())},
		},
	}

	logs, err := r.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter referral logs: %w", err)
	}

	edges := r.decoder.DecodeReferralLogs(logs)
	r.logger.Debug("Queried referral logs",
		zap.String("referrer", referrer.String()),
		zap.Uint64("from_block", fromBlock),
		zap.Int("logs", len(logs)),
		zap.Int("edges", len(edges)))

	return edges, nil
}

func valueAt[T any](values []interface{}, i int) (T, bool) {
	var zero T
	if i >= len(values) {
		return zero, false
	}
	v, ok := values[i].(T)
	return v, ok
}

func unexpected(method string) service.ReadResult {
	return service.ReadResult{Err: fmt.Errorf("%w from %s", ErrUnexpectedOutput, method)}
}
