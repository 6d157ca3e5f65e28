package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/calculation"
)

var calculateFile string

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Compute CO2e for a list of activity records",
	Long: `Reads {"records": [...]} and prints scope totals, the category
breakdown and per-record results. Records without a matching factor
contribute zero and are listed under "misses".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			Records []emissions.ActivityRecord `json:"records"`
		}
		if err := readInput(cmd, calculateFile, &in); err != nil {
			return err
		}

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		agg, err := calculation.NewAggregator(calculation.NewEngine(catalog)).Aggregate(in.Records)
		if err != nil {
			return err
		}

		logger := newLogger()
		defer logger.Sync()
		for _, key := range agg.Misses {
			logger.Warn("Emission factor not found", zap.String("key", key.String()))
		}

		return writeOutput(cmd, agg)
	},
}

func init() {
	calculateCmd.Flags().StringVarP(&calculateFile, "file", "f", "", "input file")
	rootCmd.AddCommand(calculateCmd)
}
