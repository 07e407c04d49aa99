package main

import (
	"fmt"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/database"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <address>",
	Short: "Walk the referral network of an address and persist it to Neo4J",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		env, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		ctx := cmd.Context()
		client := database.NewNeo4JClient(&env.cfg.Neo4J, env.log)
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close(ctx)
		referrals := database.NewNeo4JReferralRepository(client, env.log)

		profiles, err := env.profileService()
		if err != nil {
			return err
		}

		root := entity.NormalizeAddress(args[0])
		profile, err := profiles.BuildProfile(ctx, root, env.reader)
		if err != nil {
			return err
		}
		if err := referrals.SaveProfileSnapshot(ctx, profile); err != nil {
			return err
		}

		size, err := referrals.GetNetworkSize(ctx, root, profiles.TraversalConfig().MaxLevel)
		if err != nil {
			return err
		}
		stored, err := referrals.GetDirectReferees(ctx, root)
		if err != nil {
			return err
		}
		missing := missingDirectReferees(profile, stored)

		if output == outputFlagValJSON {
			return printJSON(struct {
				Root          entity.Address   `json:"root"`
				TotalNodes    int              `json:"total_nodes"`
				StoredNodes   int              `json:"stored_network_size"`
				StoredDirect  int              `json:"stored_direct_referees"`
				MissingDirect []entity.Address `json:"missing_direct_referees"`
				Truncated     bool             `json:"truncated"`
			}{root, profile.TotalNodes, size, len(stored), missing, profile.Truncated})
		}
		fmt.Printf("Saved snapshot of %s: %d nodes traversed, %d reachable in graph, %d direct referees stored (truncated: %t)\n",
			root, profile.TotalNodes, size, len(stored), profile.Truncated)
		for _, addr := range missing {
			fmt.Printf("  missing direct referee in graph: %s\n", addr)
		}
		if len(missing) > 0 {
			return fmt.Errorf("%d direct referees were not found in the graph after saving", len(missing))
		}
		return nil
	},
}

// missingDirectReferees lists level-1 rows of profile absent from stored
func missingDirectReferees(profile *entity.Profile, stored []entity.Address) []entity.Address {
	known := make(map[entity.Address]struct{}, len(stored))
	for _, addr := range stored {
		known[addr] = struct{}{}
	}

	missing := []entity.Address{}
	for _, level := range profile.Levels {
		if level.Level != 1 {
			continue
		}
		for _, row := range level.Rows {
			if _, ok := known[row.Address]; !ok {
				missing = append(missing, row.Address)
			}
		}
	}
	return missing
}
