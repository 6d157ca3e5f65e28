package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
)

var netFile string

var netCmd = &cobra.Command{
	Use:   "net",
	Short: "Net gross scope totals against retired offsets",
	Long:  `Reads {"gross": {...}, "offsets": [...]} and prints the net emission snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			Gross   emissions.ScopeTotals       `json:"gross"`
			Offsets []offsets.OffsetTransaction `json:"offsets"`
		}
		if err := readInput(cmd, netFile, &in); err != nil {
			return err
		}

		snap, err := offsets.NewNettingEngine().NetEmissions(in.Gross, in.Offsets)
		if err != nil {
			return err
		}

		if snap.UnallocatedOffset > 0 {
			logger := newLogger()
			defer logger.Sync()
			logger.Warn("Combined scope 1+2 offset left unallocated",
				zap.Float64("quantity", snap.UnallocatedOffset))
		}

		return writeOutput(cmd, snap)
	},
}

func init() {
	netCmd.Flags().StringVarP(&netFile, "file", "f", "", "input file")
	rootCmd.AddCommand(netCmd)
}
