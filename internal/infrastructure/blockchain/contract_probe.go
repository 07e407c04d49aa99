package blockchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrNoContractCode is returned when nothing is deployed at the staking contract address
var ErrNoContractCode = errors.New("no contract code at staking contract address")

// ContractReport describes how well the deployed bytecode matches the staking ABI
type ContractReport struct {
	Address         string   `json:"address"`
	CodeSize        int      `json:"code_size"`
	MatchedMethods  []string `json:"matched_methods"`
	MissingMethods  []string `json:"missing_methods"`
	HasReferralList bool     `json:"has_referral_list"`
}

// Complete reports whether every read accessor was found in the bytecode
func (r *ContractReport) Complete() bool {
	return len(r.MissingMethods) == 0
}

// ProbeContract fetches the deployed bytecode of the staking contract and looks
// for the 4-byte selector of every read accessor in its dispatcher. Proxies
// report every accessor missing.
func (r *EthereumChainReader) ProbeContract(ctx context.Context) (*ContractReport, error) {
	code, err := r.eth.CodeAt(ctx, r.contract, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contract code: %w", err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContractCode, r.contract.Hex())
	}

	report := &ContractReport{
		Address:  r.contract.Hex(),
		CodeSize: len(code),
	}
	for name, method := range r.abi.Methods {
		if bytes.Contains(code, method.ID) {
			report.MatchedMethods = append(report.MatchedMethods, name)
		} else {
			report.MissingMethods = append(report.MissingMethods, name)
		}
	}
	sort.Strings(report.MatchedMethods)
	sort.Strings(report.MissingMethods)
	report.HasReferralList = bytes.Contains(code, r.abi.Methods[methodGetReferredUsers].ID)

	if !report.Complete() {
		r.logger.Warn("Staking contract is missing read accessors",
			zap.String("contract", report.Address),
			zap.Strings("missing", report.MissingMethods),
			zap.Bool("has_referral_list", report.HasReferralList))
	}
	return report, nil
}
