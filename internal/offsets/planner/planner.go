// Package planner estimates offset purchases against budgets and targets.
package planner

import (
	"math"

	"github.com/shopspring/decimal"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// Reference prices in USD per tCO2e
const (
	PriceLow       = 5.0
	PriceMedium    = 15.0
	PriceHigh      = 30.0
	PricePremium   = 50.0
	ReferencePrice = PriceMedium
)

const (
	quantityPrecision = 3
	moneyPrecision    = 2
	percentPrecision  = 2
)

// PriceScenario is the cost of a quantity at one reference price
type PriceScenario struct {
	Name          string  `json:"name"`
	PricePerTonne float64 `json:"price_per_tonne"`
	Cost          float64 `json:"cost"`
}

// Requirement is the offset quantity needed for a reduction target
type Requirement struct {
	GrossEmissions     float64         `json:"gross_emissions"`
	TargetReductionPct float64         `json:"target_reduction_pct"`
	RequiredOffset     float64         `json:"required_offset"`
	Scenarios          []PriceScenario `json:"scenarios"`
}

// PriceRange bounds the expected market price per tCO2e
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Mean returns the midpoint of the range
func (r PriceRange) Mean() float64 {
	return (r.Min + r.Max) / 2
}

// BudgetCase is the outcome of spending a budget at one price
type BudgetCase struct {
	PricePerTonne float64 `json:"price_per_tonne"`
	Quantity      float64 `json:"quantity"`
	CoveragePct   float64 `json:"coverage_pct"`
}

// BudgetOptimization compares best, worst and average prices for a budget
type BudgetOptimization struct {
	Budget         float64    `json:"budget"`
	GrossEmissions float64    `json:"gross_emissions"`
	BestCase       BudgetCase `json:"best_case"`
	WorstCase      BudgetCase `json:"worst_case"`
	AverageCase    BudgetCase `json:"average_case"`
	// AdditionalBudgetNeeded is the spend missing for full coverage at the average price.
	AdditionalBudgetNeeded float64 `json:"additional_budget_needed"`
}

// Planner runs the offset budget calculations. Only PlanMultiYear reads the clock.
type Planner struct {
	clock clock.Clock
}

// New creates a new planner
func New(c clock.Clock) *Planner {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Planner{clock: c}
}

// RequirementFor returns the offset quantity that covers targetReductionPct of
// gross, priced at the four reference prices.
func (p *Planner) RequirementFor(gross, targetReductionPct float64) (*Requirement, error) {
	if err := nonNegative("gross_emissions", gross); err != nil {
		return nil, err
	}
	if !finite(targetReductionPct) || targetReductionPct < 0 || targetReductionPct > 100 {
		return nil, errs.Invalid("target_reduction_pct", "must be between 0 and 100, got %v", targetReductionPct)
	}

	required := dec(gross).Mul(dec(targetReductionPct)).Div(dec(100))
	prices := []struct {
		name  string
		price float64
	}{
		{"low", PriceLow},
		{"medium", PriceMedium},
		{"high", PriceHigh},
		{"premium", PricePremium},
	}

	scenarios := make([]PriceScenario, 0, len(prices))
	for _, pr := range prices {
		scenarios = append(scenarios, PriceScenario{
			Name:          pr.name,
			PricePerTonne: pr.price,
			Cost:          round(required.Mul(dec(pr.price)), moneyPrecision),
		})
	}

	return &Requirement{
		GrossEmissions:     gross,
		TargetReductionPct: targetReductionPct,
		RequiredOffset:     round(required, quantityPrecision),
		Scenarios:          scenarios,
	}, nil
}

// OptimizeBudget reports how much a budget buys at the low, high and mean
// prices of the range.
func (p *Planner) OptimizeBudget(budget, gross float64, prices PriceRange) (*BudgetOptimization, error) {
	if err := nonNegative("budget", budget); err != nil {
		return nil, err
	}
	if err := nonNegative("gross_emissions", gross); err != nil {
		return nil, err
	}
	if !finite(prices.Min) || prices.Min <= 0 {
		return nil, errs.Invalid("price_range.min", "must be positive, got %v", prices.Min)
	}
	if !finite(prices.Max) || prices.Max < prices.Min {
		return nil, errs.Invalid("price_range.max", "must not be below min, got %v", prices.Max)
	}

	avgPrice := dec(prices.Mean())
	avgQty := dec(budget).Div(avgPrice)

	out := &BudgetOptimization{
		Budget:         budget,
		GrossEmissions: gross,
		BestCase:       budgetCase(budget, gross, dec(prices.Min)),
		WorstCase:      budgetCase(budget, gross, dec(prices.Max)),
		AverageCase:    budgetCase(budget, gross, avgPrice),
	}
	if shortfall := dec(gross).Sub(avgQty); shortfall.IsPositive() {
		out.AdditionalBudgetNeeded = round(shortfall.Mul(avgPrice), moneyPrecision)
	}
	return out, nil
}

func budgetCase(budget, gross float64, price decimal.Decimal) BudgetCase {
	qty := dec(budget).Div(price)
	return BudgetCase{
		PricePerTonne: price.InexactFloat64(),
		Quantity:      round(qty, quantityPrecision),
		CoveragePct:   coverage(qty, dec(gross)),
	}
}

// coverage is qty as a percentage of gross, 0 when gross is 0
func coverage(qty, gross decimal.Decimal) float64 {
	if gross.IsZero() {
		return 0
	}
	return round(qty.Div(gross).Mul(dec(100)), percentPrecision)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(field string, v float64) error {
	if !finite(v) {
		return errs.Invalid(field, "must be a finite number")
	}
	if v < 0 {
		return errs.Invalid(field, "must not be negative, got %v", v)
	}
	return nil
}
