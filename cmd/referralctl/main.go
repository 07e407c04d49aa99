package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	app_service "referral-network-indexer/internal/application/service"
	domain_service "referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/blockchain"
	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/spf13/cobra"
)

const (
	outputFlagName     = "output"
	outputFlagValJSON  = "json"
	outputFlagValHuman = "human"
)

var rootCmd = &cobra.Command{
	Use:   "referralctl",
	Short: "Operator tooling for the referral network indexer",
}

func init() {
	rootCmd.PersistentFlags().String("rpc-url", "", "JSON-RPC endpoint, overrides chain.rpc_url")
	rootCmd.PersistentFlags().String("contract", "", "Staking contract address, overrides chain.contract_address")
	rootCmd.PersistentFlags().String("log-level", "", "Log level, overrides app.log_level")
	rootCmd.PersistentFlags().String(outputFlagName, outputFlagValHuman, "Specify the output format: json,human")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is the state shared by every subcommand
type env struct {
	cfg    *config.Config
	log    *logger.Logger
	reader *blockchain.EthereumChainReader
}

// loadEnv loads configuration, applies flag overrides and dials the chain
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if v, _ := cmd.Flags().GetString("rpc-url"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v, _ := cmd.Flags().GetString("contract"); v != "" {
		cfg.Chain.ContractAddress = v
	}
	level := "warn"
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}

	log, err := logger.NewLogger(level, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if cfg.Chain.RPCURL == "" {
		return nil, fmt.Errorf("no RPC endpoint configured, set --rpc-url or chain.rpc_url")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	reader, err := blockchain.DialEthereumChainReader(ctx, cfg.Chain.RPCURL, cfg.Chain.ContractAddress, log)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, log: log, reader: reader}, nil
}

// profileService builds a profile service from the loaded configuration
func (e *env) profileService() (*app_service.ProfileApplicationService, error) {
	traversal, err := e.cfg.TraversalConfig()
	if err != nil {
		return nil, err
	}
	profiles := app_service.NewProfileApplicationService(traversal, e.cfg.TokenSet(), e.log)
	if injector := domain_service.NewStaticEdgeInjector(e.cfg.Chain.TestReferrer, e.cfg.Chain.TestReferee); injector != nil {
		profiles.WithEdgeInjector(injector)
	}
	return profiles, nil
}

func (e *env) close() {
	e.reader.Close()
	e.log.Sync()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	output, err := cmd.Flags().GetString(outputFlagName)
	if err != nil {
		return "", err
	}
	if output != outputFlagValHuman && output != outputFlagValJSON {
		return "", fmt.Errorf("%s flag must be either %q or %q", outputFlagName, outputFlagValHuman, outputFlagValJSON)
	}
	return output, nil
}
