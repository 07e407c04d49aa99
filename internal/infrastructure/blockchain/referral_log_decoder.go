package blockchain

import (
	"errors"
	"fmt"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrNotReferralLog is returned for logs that are not ReferralAssigned events
var ErrNotReferralLog = errors.New("log is not a ReferralAssigned event")

// referralAssigned mirrors the indexed fields of ReferralAssigned
type referralAssigned struct {
	User     common.Address
	Referrer common.Address
}

// ReferralLogDecoder decodes ReferralAssigned logs into referral edges
type ReferralLogDecoder struct {
	event  abi.Event
	logger *logger.Logger
}

// NewReferralLogDecoder creates a decoder bound to the staking ABI
func NewReferralLogDecoder(logger *logger.Logger) (*ReferralLogDecoder, error) {
	parsed, err := ParseStakingABI()
	if err != nil {
		return nil, err
	}
	event, ok := parsed.Events[eventReferralAssigned]
	if !ok {
		return nil, fmt.Errorf("staking ABI has no %s event", eventReferralAssigned)
	}
	return &ReferralLogDecoder{
		event:  event,
		logger: logger.WithComponent("referral-log-decoder"),
	}, nil
}

// EventID returns the topic hash of ReferralAssigned
func (d *ReferralLogDecoder) EventID() common.Hash {
	return d.event.ID
}

// DecodeReferralLog decodes one log. AssignedAt is left unset since logs carry
// no block timestamp.
func (d *ReferralLogDecoder) DecodeReferralLog(log types.Log) (entity.ReferralEdge, error) {
	if len(log.Topics) != 3 || log.Topics[0] != d.event.ID {
		return entity.ReferralEdge{}, ErrNotReferralLog
	}

	var decoded referralAssigned
	if err := abi.ParseTopics(&decoded, indexedArguments(d.event.Inputs), log.Topics[1:]); err != nil {
		return entity.ReferralEdge{}, fmt.Errorf("failed to parse referral topics: %w", err)
	}

	edge := entity.ReferralEdge{
		Referrer:    entity.NormalizeAddress(decoded.Referrer.Hex()),
		Referee:     entity.NormalizeAddress(decoded.User.Hex()),
		BlockNumber: log.BlockNumber,
	}
	return edge, nil
}

// DecodeReferralLogs decodes logs in order, skipping removed and undecodable ones
func (d *ReferralLogDecoder) DecodeReferralLogs(logs []types.Log) []entity.ReferralEdge {
	edges := make([]entity.ReferralEdge, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		edge, err := d.DecodeReferralLog(log)
		if err != nil {
			d.logger.Debug("Skipping undecodable referral log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err))
			continue
		}
		edges = append(edges, edge)
	}
	return edges
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
