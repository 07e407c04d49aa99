package service_test

import (
	"fmt"
	"math/big"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/blockchain"
	"referral-network-indexer/internal/infrastructure/logger"
)

var (
	tokenYY = addr(0xa1)
	tokenSY = addr(0xa2)
	tokenPY = addr(0xa3)

	testTokens = entity.TokenSet{
		YY: entity.Address(tokenYY),
		SY: entity.Address(tokenSY),
		PY: entity.Address(tokenPY),
	}
)

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func slot(token string, amount int64) entity.TokenAmount {
	return entity.TokenAmount{Token: entity.Address(token), Amount: big.NewInt(amount)}
}

func testConfig() entity.TraversalConfig {
	cfg := entity.DefaultTraversalConfig()
	cfg.ResolveConcurrency = 4
	return cfg
}

func nopLogger() *logger.Logger {
	return logger.NewNopLogger()
}

func newEngine(chain *blockchain.MemoryChain) *service.TraversalEngine {
	return service.NewTraversalEngine(chain, testTokens, logger.NewNopLogger())
}

func levelAddresses(level entity.LevelInfo) []string {
	out := make([]string, len(level.Rows))
	for i, row := range level.Rows {
		out[i] = row.Address.String()
	}
	return out
}
