package main

import (
	"fmt"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/logger"
	"referral-network-indexer/internal/infrastructure/storage"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cachedCmd)
}

var cachedCmd = &cobra.Command{
	Use:   "cached [address]",
	Short: "Print a cached profile, or list cached roots when no address is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		store, err := storage.NewLevelDBProfileStore(cfg.Storage.Path, logger.NewNopLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		if len(args) == 0 {
			roots, err := store.ListRoots(ctx)
			if err != nil {
				return err
			}
			if output == outputFlagValJSON {
				return printJSON(roots)
			}
			for _, root := range roots {
				fmt.Println(root)
			}
			return nil
		}

		profile, err := store.GetProfile(ctx, entity.NormalizeAddress(args[0]))
		if err != nil {
			return err
		}
		if output == outputFlagValJSON {
			return printJSON(profile)
		}
		printProfile(profile)
		return nil
	},
}
