// Command ghgctl runs the accounting engines against local input files
// without a database.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/app"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
)

var (
	catalogPath string
	verbose     bool
	compact     bool
)

var rootCmd = &cobra.Command{
	Use:   "ghgctl",
	Short: "Offline GHG accounting toolkit",
	Long: `ghgctl computes CO2e, nets offsets, plans offset budgets and assesses
uncertainty from JSON or YAML input files. Use "-" to read from stdin.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "emission factor catalog (YAML); defaults to the built-in catalog")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log warnings such as factor misses to stderr")
	rootCmd.PersistentFlags().BoolVar(&compact, "compact", false, "print compact JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCatalog() (*factors.StaticCatalog, error) {
	return app.LoadCatalog(catalogPath)
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
