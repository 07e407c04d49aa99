package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check the deployed staking contract for the read accessors the indexer uses",
	Args:  cobra.NoArgs,
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

		report, err := env.reader.ProbeContract(cmd.Context())
		if err != nil {
			return err
		}
		if output == outputFlagValJSON {
			return printJSON(report)
		}

		fmt.Printf("contract:      %s (%d bytes)\n", report.Address, report.CodeSize)
		fmt.Printf("matched:       %s\n", strings.Join(report.MatchedMethods, ", "))
		if !report.Complete() {
			fmt.Printf("missing:       %s\n", strings.Join(report.MissingMethods, ", "))
		}
		if !report.HasReferralList {
			fmt.Println("referee lists are unavailable, use --mode prefer-events")
		}
		return nil
	},
}
