// Package targets tracks progress against carbon reduction targets.
package targets

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

const percentPrecision = 2

// CarbonTarget is a reduction commitment. BaselineCO2e and TargetCO2e are
// independent inputs; neither is derived from the other.
type CarbonTarget struct {
	ID            uuid.UUID         `json:"id"`
	TenantID      uuid.UUID         `json:"tenant_id"`
	BaselineYear  int               `json:"baseline_year"`
	BaselineCO2e  float64           `json:"baseline_co2e"`
	TargetYear    int               `json:"target_year"`
	TargetCO2e    float64           `json:"target_co2e"`
	ScopeCoverage []emissions.Scope `json:"scope_coverage"`
}

// Validate checks the target fields
func (t CarbonTarget) Validate() error {
	if t.TargetYear <= t.BaselineYear {
		return errs.Invalid("target_year", "must be after baseline year %d, got %d", t.BaselineYear, t.TargetYear)
	}
	if !finite(t.BaselineCO2e) || t.BaselineCO2e < 0 {
		return errs.Invalid("baseline_co2e", "must be a non-negative number, got %v", t.BaselineCO2e)
	}
	if !finite(t.TargetCO2e) || t.TargetCO2e < 0 {
		return errs.Invalid("target_co2e", "must be a non-negative number, got %v", t.TargetCO2e)
	}
	for _, s := range t.ScopeCoverage {
		if !s.Valid() {
			return errs.Invalid("scope_coverage", "unknown scope %q", s)
		}
	}
	return nil
}

// Covers reports whether scope is part of the target. An empty coverage covers all scopes.
func (t CarbonTarget) Covers(scope emissions.Scope) bool {
	if len(t.ScopeCoverage) == 0 {
		return true
	}
	for _, s := range t.ScopeCoverage {
		if s == scope {
			return true
		}
	}
	return false
}

// CoveredEmissions sums the totals of the covered scopes
func (t CarbonTarget) CoveredEmissions(totals emissions.ScopeTotals) float64 {
	if len(t.ScopeCoverage) == 0 {
		return totals.Total
	}
	sum := decimal.Zero
	for _, s := range emissions.Scopes {
		if t.Covers(s) {
			sum = sum.Add(decimal.NewFromFloat(totals.Get(s)))
		}
	}
	return emissions.RoundTotal(sum)
}

// ExpectedAt returns the CO2e on a straight line from baseline to target.
// Years outside the target window are clamped to its ends.
func (t CarbonTarget) ExpectedAt(year int) float64 {
	switch {
	case year <= t.BaselineYear:
		return t.BaselineCO2e
	case year >= t.TargetYear:
		return t.TargetCO2e
	}
	span := decimal.NewFromInt(int64(t.TargetYear - t.BaselineYear))
	elapsed := decimal.NewFromInt(int64(year - t.BaselineYear))
	base := decimal.NewFromFloat(t.BaselineCO2e)
	drop := base.Sub(decimal.NewFromFloat(t.TargetCO2e)).Mul(elapsed).Div(span)
	return emissions.RoundTotal(base.Sub(drop))
}

// AnnualReductionRate is the compound yearly reduction in percent that
// takes baseline to target. It is 0 when either end is 0 or the window is empty.
func (t CarbonTarget) AnnualReductionRate() float64 {
	years := t.TargetYear - t.BaselineYear
	if years <= 0 || t.BaselineCO2e <= 0 || t.TargetCO2e <= 0 {
		return 0
	}
	rate := (1 - math.Pow(t.TargetCO2e/t.BaselineCO2e, 1/float64(years))) * 100
	return decimal.NewFromFloat(rate).Round(percentPrecision).InexactFloat64()
}

// ReductionPct is (baseline - current) / baseline × 100, or 0 for a zero baseline
func ReductionPct(baseline, current float64) float64 {
	return reductionPct(baseline, current).Round(percentPrecision).InexactFloat64()
}

// Progress reports how far current has moved from baseline towards target
type Progress struct {
	TargetReductionPct   float64 `json:"target_reduction_pct"`
	AchievedReductionPct float64 `json:"achieved_reduction_pct"`
	// ProgressPct is not clamped: negative means emissions rose, above 100 means ahead.
	ProgressPct float64 `json:"progress_pct"`
	OnTrack     bool    `json:"on_track"`
	// Remaining is current - target; negative once the target is beaten.
	Remaining float64 `json:"remaining"`
}

// ComputeProgress compares baseline, current and target CO2e
func ComputeProgress(baseline, current, target float64) Progress {
	targetPct := reductionPct(baseline, target)
	achievedPct := reductionPct(baseline, current)

	p := Progress{
		TargetReductionPct:   targetPct.Round(percentPrecision).InexactFloat64(),
		AchievedReductionPct: achievedPct.Round(percentPrecision).InexactFloat64(),
		Remaining:            emissions.RoundTotal(decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(target))),
	}
	if !targetPct.IsZero() {
		progress := achievedPct.Div(targetPct).Mul(decimal.NewFromInt(100))
		p.ProgressPct = progress.Round(percentPrecision).InexactFloat64()
		p.OnTrack = progress.GreaterThanOrEqual(decimal.NewFromInt(100))
	}
	return p
}

// ProgressFor evaluates a target against current emissions
func (t CarbonTarget) ProgressFor(current float64) Progress {
	return ComputeProgress(t.BaselineCO2e, current, t.TargetCO2e)
}

func reductionPct(baseline, current float64) decimal.Decimal {
	if baseline == 0 {
		return decimal.Zero
	}
	b := decimal.NewFromFloat(baseline)
	return b.Sub(decimal.NewFromFloat(current)).Div(b).Mul(decimal.NewFromInt(100))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
