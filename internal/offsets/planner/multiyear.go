package planner

import (
	"github.com/shopspring/decimal"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// PlanStatus classifies how far a multi-year budget gets towards full coverage
type PlanStatus string

const (
	StatusAchievable   PlanStatus = "achievable"
	StatusPartial      PlanStatus = "partial"
	StatusInsufficient PlanStatus = "insufficient"
	StatusTooLow       PlanStatus = "budget_too_low"
)

var recommendations = map[PlanStatus]string{
	StatusAchievable:   "Target is achievable with the current annual budget.",
	StatusPartial:      "Partial coverage: consider increasing the annual offset budget.",
	StatusInsufficient: "Budget insufficient: prioritize internal emission reductions before offsetting.",
	StatusTooLow:       "Budget too low for an offsetting strategy: focus on reduction measures.",
}

// YearPlan is one projected year of a multi-year plan
type YearPlan struct {
	Year               int     `json:"year"`
	ProjectedEmissions float64 `json:"projected_emissions"`
	OffsetCapacity     float64 `json:"offset_capacity"`
	// CumulativeCoveragePct is capacity over emissions from the first planned year up to Year.
	CumulativeCoveragePct float64 `json:"cumulative_coverage_pct"`
}

// MultiYearPlan projects average historical emissions to a target year
type MultiYearPlan struct {
	CurrentYear             int        `json:"current_year"`
	TargetYear              int        `json:"target_year"`
	PlanningYears           int        `json:"planning_years"`
	AverageAnnualEmissions  float64    `json:"average_annual_emissions"`
	TotalProjectedEmissions float64    `json:"total_projected_emissions"`
	AnnualBudget            float64    `json:"annual_budget"`
	ReferencePrice          float64    `json:"reference_price"`
	TotalOffsetCapacity     float64    `json:"total_offset_capacity"`
	CoveragePct             float64    `json:"coverage_pct"`
	CoverageGap             float64    `json:"coverage_gap"`
	Status                  PlanStatus `json:"status"`
	Recommendation          string     `json:"recommendation"`
	Years                   []YearPlan `json:"years"`
}

// PlanMultiYear projects the mean of history forward for every year after the
// current one up to targetYear and prices the annual budget at ReferencePrice.
func (p *Planner) PlanMultiYear(history []float64, targetYear int, annualBudget float64) (*MultiYearPlan, error) {
	currentYear := p.clock.Now().Year()
	if targetYear <= currentYear {
		return nil, errs.Invalid("target_year", "must be after the current year %d, got %d", currentYear, targetYear)
	}
	if len(history) == 0 {
		return nil, errs.Invalid("annual_emissions_history", "at least one year is required")
	}
	if err := nonNegative("annual_budget", annualBudget); err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, v := range history {
		if err := nonNegative("annual_emissions_history", v); err != nil {
			return nil, err
		}
		sum = sum.Add(dec(v))
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(history))))

	years := targetYear - currentYear
	annualCapacity := dec(annualBudget).Div(dec(ReferencePrice))

	rows := make([]YearPlan, 0, years)
	cumEmissions, cumCapacity := decimal.Zero, decimal.Zero
	for y := currentYear + 1; y <= targetYear; y++ {
		cumEmissions = cumEmissions.Add(avg)
		cumCapacity = cumCapacity.Add(annualCapacity)
		rows = append(rows, YearPlan{
			Year:                  y,
			ProjectedEmissions:    round(avg, quantityPrecision),
			OffsetCapacity:        round(annualCapacity, quantityPrecision),
			CumulativeCoveragePct: coverage(cumCapacity, cumEmissions),
		})
	}

	gap := cumEmissions.Sub(cumCapacity)
	if gap.IsNegative() {
		gap = decimal.Zero
	}
	status := classify(cumCapacity, cumEmissions)

	return &MultiYearPlan{
		CurrentYear:             currentYear,
		TargetYear:              targetYear,
		PlanningYears:           years,
		AverageAnnualEmissions:  round(avg, quantityPrecision),
		TotalProjectedEmissions: round(cumEmissions, quantityPrecision),
		AnnualBudget:            annualBudget,
		ReferencePrice:          ReferencePrice,
		TotalOffsetCapacity:     round(cumCapacity, quantityPrecision),
		CoveragePct:             coverage(cumCapacity, cumEmissions),
		CoverageGap:             round(gap, quantityPrecision),
		Status:                  status,
		Recommendation:          recommendations[status],
		Years:                   rows,
	}, nil
}

// classify compares the unrounded coverage with the tier thresholds.
// Zero projected emissions give zero coverage.
func classify(capacity, projected decimal.Decimal) PlanStatus {
	pct := decimal.Zero
	if !projected.IsZero() {
		pct = capacity.Div(projected).Mul(dec(100))
	}
	switch {
	case pct.GreaterThanOrEqual(dec(100)):
		return StatusAchievable
	case pct.GreaterThanOrEqual(dec(75)):
		return StatusPartial
	case pct.GreaterThanOrEqual(dec(50)):
		return StatusInsufficient
	}
	return StatusTooLow
}
