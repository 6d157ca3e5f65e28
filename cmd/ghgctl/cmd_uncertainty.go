package main

import (
	"github.com/spf13/cobra"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/uncertainty"
)

var uncertaintyFile string

var uncertaintyCmd = &cobra.Command{
	Use:   "uncertainty",
	Short: "Estimate uncertainty bounds from data quality tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			Inputs []uncertainty.Input `json:"inputs"`
		}
		if err := readInput(cmd, uncertaintyFile, &in); err != nil {
			return err
		}

		report, err := uncertainty.Assess(in.Inputs)
		if err != nil {
			return err
		}
		return writeOutput(cmd, report)
	},
}

func init() {
	uncertaintyCmd.Flags().StringVarP(&uncertaintyFile, "file", "f", "", "input file")
	rootCmd.AddCommand(uncertaintyCmd)
}
