package blockchain

import (
	"fmt"
	"strings"

	"referral-network-indexer/internal/domain/service"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StakingContractABI is the read surface of the staking contract used by the indexer
const StakingContractABI = `[
	{"type":"function","name":"userTotalStaked","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getUserStakeCount","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"referrerOf","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getReferredUsers","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getStake","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"stakeIndex","type":"uint256"}],
	 "outputs":[{"name":"principal","type":"uint256"},{"name":"startTime","type":"uint256"},{"name":"isFullyUnstaked","type":"bool"}]},
	{"type":"function","name":"getStakeTokenAmount","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"stakeIndex","type":"uint256"},{"name":"slotIndex","type":"uint256"}],
	 "outputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"referralEarnings","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"ReferralAssigned","anonymous":false,
	 "inputs":[{"name":"user","type":"address","indexed":true},{"name":"referrer","type":"address","indexed":true}]}
]`

const (
	methodUserTotalStaked     = "userTotalStaked"
	methodGetUserStakeCount   = "getUserStakeCount"
	methodReferrerOf          = "referrerOf"
	methodGetReferredUsers    = "getReferredUsers"
	methodGetStake            = "getStake"
	methodGetStakeTokenAmount = "getStakeTokenAmount"
	methodReferralEarnings    = "referralEarnings"

	eventReferralAssigned = "ReferralAssigned"
)

// ParseStakingABI parses StakingContractABI
func ParseStakingABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(StakingContractABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse staking ABI: %w", err)
	}
	return parsed, nil
}

// methodFor maps a read kind to its contract accessor
func methodFor(kind service.ReadKind) (string, error) {
	switch kind {
	case service.ReadTotalStaked:
		return methodUserTotalStaked, nil
	case service.ReadStakeCount:
		return methodGetUserStakeCount, nil
	case service.ReadReferrerOf:
		return methodReferrerOf, nil
	case service.ReadReferredUsers:
		return methodGetReferredUsers, nil
	case service.ReadStakeRecord:
		return methodGetStake, nil
	case service.ReadStakeTokenAmount:
		return methodGetStakeTokenAmount, nil
	case service.ReadReferralEarnings:
		return methodReferralEarnings, nil
	}
	return "", fmt.Errorf("unsupported read kind %d", kind)
}
