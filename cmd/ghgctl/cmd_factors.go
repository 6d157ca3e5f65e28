package main

import (
	"github.com/spf13/cobra"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
)

var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "List the emission factor catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		return writeOutput(cmd, struct {
			Version string                   `json:"version"`
			Factors []factors.EmissionFactor `json:"factors"`
		}{catalog.Version(), catalog.List()})
	},
}

func init() {
	rootCmd.AddCommand(factorsCmd)
}
