package main

import (
	"github.com/spf13/cobra"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets/planner"
)

var planFile string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Offset budget planning",
}

var planRequirementCmd = &cobra.Command{
	Use:   "requirement",
	Short: "Offsets needed to reach a reduction target",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			GrossEmissions     float64 `json:"gross_emissions"`
			TargetReductionPct float64 `json:"target_reduction_pct"`
		}
		if err := readInput(cmd, planFile, &in); err != nil {
			return err
		}
		result, err := newPlanner().RequirementFor(in.GrossEmissions, in.TargetReductionPct)
		if err != nil {
			return err
		}
		return writeOutput(cmd, result)
	},
}

var planBudgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Coverage a budget buys across a price range",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			Budget         float64            `json:"budget"`
			GrossEmissions float64            `json:"gross_emissions"`
			PriceRange     planner.PriceRange `json:"price_range"`
		}
		if err := readInput(cmd, planFile, &in); err != nil {
			return err
		}
		result, err := newPlanner().OptimizeBudget(in.Budget, in.GrossEmissions, in.PriceRange)
		if err != nil {
			return err
		}
		return writeOutput(cmd, result)
	},
}

var planMultiYearCmd = &cobra.Command{
	Use:   "multi-year",
	Short: "Project emissions to a target year and check budget capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			History      []float64 `json:"annual_emissions_history"`
			TargetYear   int       `json:"target_year"`
			AnnualBudget float64   `json:"annual_budget"`
		}
		if err := readInput(cmd, planFile, &in); err != nil {
			return err
		}
		result, err := newPlanner().PlanMultiYear(in.History, in.TargetYear, in.AnnualBudget)
		if err != nil {
			return err
		}
		return writeOutput(cmd, result)
	},
}

var planAllocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Split a budget across scopes by weighted emissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in struct {
			Budget         float64                     `json:"total_budget"`
			ScopeEmissions map[emissions.Scope]float64 `json:"scope_emissions"`
			Priorities     map[emissions.Scope]float64 `json:"priorities"`
		}
		if err := readInput(cmd, planFile, &in); err != nil {
			return err
		}
		result, err := newPlanner().AllocateByPriority(in.Budget, in.ScopeEmissions, in.Priorities)
		if err != nil {
			return err
		}
		return writeOutput(cmd, result)
	},
}

func newPlanner() *planner.Planner {
	return planner.New(clock.SystemClock{})
}

func init() {
	planCmd.PersistentFlags().StringVarP(&planFile, "file", "f", "", "input file")
	planCmd.AddCommand(planRequirementCmd, planBudgetCmd, planMultiYearCmd, planAllocateCmd)
	rootCmd.AddCommand(planCmd)
}
