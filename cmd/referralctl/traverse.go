package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"referral-network-indexer/internal/domain/entity"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(traverseCmd)
	traverseCmd.Flags().Int("max-level", 0, "Override traversal.max_level")
	traverseCmd.Flags().Int("max-nodes", 0, "Override traversal.max_total_nodes")
	traverseCmd.Flags().String("mode", "", "Override traversal.data_source_mode: prefer-list,prefer-events,auto")
	traverseCmd.Flags().Uint64("from-block", 0, "Override chain.from_block")
}

var traverseCmd = &cobra.Command{
	Use:   "traverse <address>",
	Short: "Walk the referral network of an address and print its profile",
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

		if v, _ := cmd.Flags().GetInt("max-level"); v > 0 {
			env.cfg.Traversal.MaxLevel = v
		}
		if v, _ := cmd.Flags().GetInt("max-nodes"); v > 0 {
			env.cfg.Traversal.MaxTotalNodes = v
		}
		if v, _ := cmd.Flags().GetString("mode"); v != "" {
			env.cfg.Traversal.DataSourceMode = v
		}
		if cmd.Flags().Changed("from-block") {
			env.cfg.Chain.FromBlock, _ = cmd.Flags().GetUint64("from-block")
		}

		profiles, err := env.profileService()
		if err != nil {
			return err
		}

		profile, err := profiles.BuildProfile(cmd.Context(), entity.NormalizeAddress(args[0]), env.reader)
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

func printProfile(profile *entity.Profile) {
	fmt.Printf("Root:               %s\n", profile.Root)
	if profile.RootReferrer != nil {
		fmt.Printf("Referrer:           %s\n", *profile.RootReferrer)
	}
	fmt.Printf("Own stake:          %s (%d stakes)\n", profile.RootTotalStaked, profile.RootStakeCount)
	fmt.Printf("Claimable:          yy=%s sy=%s py=%s\n",
		profile.RootClaimableBalances.YY, profile.RootClaimableBalances.SY, profile.RootClaimableBalances.PY)
	fmt.Printf("Network nodes:      %d (truncated: %t)\n", profile.TotalNodes, profile.Truncated)
	fmt.Printf("Network staked:     %s\n\n", profile.NetworkTotalStaked)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tNODES\tTOTAL STAKED")
	for _, level := range profile.Levels {
		fmt.Fprintf(w, "%d\t%d\t%s\n", level.Level, len(level.Rows), level.TotalStaked)
	}
	w.Flush()

	if len(profile.Level1Rows) == 0 {
		return
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTAKES\tTOTAL\tYY\tSY\tPY")
	for _, row := range profile.Level1Rows {
		split := row.TokenSplit
		if split == nil {
			split = entity.NewTokenSplit()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", row.Address, row.StakeCount, row.TotalStaked, split.YY, split.SY, split.PY)
	}
	w.Flush()
}
