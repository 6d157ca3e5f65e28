// Package uncertainty estimates measurement uncertainty bounds from
// ISO 14064-1 data-quality tiers.
package uncertainty

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

const (
	amountPrecision  = 3
	percentPrecision = 2
)

// tierPercentages are the ISO 14064-1 Annex A guidance values
var tierPercentages = map[emissions.DataQualityTier]float64{
	emissions.TierMeasured:   5,
	emissions.TierCalculated: 10,
	emissions.TierEstimated:  30,
	emissions.TierDefault:    50,
}

// TierPercentage returns the uncertainty percentage of a tier.
// Unknown or empty tiers are treated as estimated.
func TierPercentage(tier emissions.DataQualityTier) float64 {
	if pct, ok := tierPercentages[tier]; ok {
		return pct
	}
	return tierPercentages[emissions.TierEstimated]
}

// Input is one emission figure to assess
type Input struct {
	ID   string                    `json:"id"`
	CO2e float64                   `json:"co2e"`
	Tier emissions.DataQualityTier `json:"tier"`
}

// RecordUncertainty is the per-record line of a report
type RecordUncertainty struct {
	ID             string                    `json:"id"`
	CO2e           float64                   `json:"co2e"`
	Tier           emissions.DataQualityTier `json:"tier"`
	UncertaintyPct float64                   `json:"uncertainty_pct"`
	Absolute       float64                   `json:"absolute_uncertainty"`
}

// Report is the result of Assess
type Report struct {
	TotalEmissions        float64             `json:"total_emissions"`
	OverallUncertaintyPct float64             `json:"overall_uncertainty_pct"`
	AbsoluteUncertainty   float64             `json:"absolute_uncertainty"`
	LowerBound            float64             `json:"lower_bound"`
	UpperBound            float64             `json:"upper_bound"`
	Records               []RecordUncertainty `json:"records"`
}

// Assess blends per-record tier percentages into a CO2e-weighted overall
// uncertainty and the bounds total ∓ sum(co2e × pct / 100).
func Assess(inputs []Input) (*Report, error) {
	report := &Report{Records: make([]RecordUncertainty, 0, len(inputs))}

	total, absolute := decimal.Zero, decimal.Zero
	for i, in := range inputs {
		if math.IsNaN(in.CO2e) || math.IsInf(in.CO2e, 0) {
			return nil, fmt.Errorf("input %d: %w", i, errs.Invalid("co2e", "must be a finite number"))
		}
		if in.CO2e < 0 {
			return nil, fmt.Errorf("input %d: %w", i, errs.Invalid("co2e", "must not be negative, got %v", in.CO2e))
		}

		tier := in.Tier
		if !tier.Known() {
			tier = emissions.TierEstimated
		}
		pct := TierPercentage(tier)
		abs := decimal.NewFromFloat(in.CO2e).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))

		total = total.Add(decimal.NewFromFloat(in.CO2e))
		absolute = absolute.Add(abs)
		report.Records = append(report.Records, RecordUncertainty{
			ID:             in.ID,
			CO2e:           in.CO2e,
			Tier:           tier,
			UncertaintyPct: pct,
			Absolute:       abs.Round(amountPrecision).InexactFloat64(),
		})
	}

	// weighted pct = sum(co2e × pct) / sum(co2e) = absolute / total × 100
	if !total.IsZero() {
		report.OverallUncertaintyPct = absolute.Div(total).Mul(decimal.NewFromInt(100)).Round(percentPrecision).InexactFloat64()
	}
	report.TotalEmissions = emissions.RoundTotal(total)
	report.AbsoluteUncertainty = absolute.Round(amountPrecision).InexactFloat64()
	report.LowerBound = total.Sub(absolute).Round(amountPrecision).InexactFloat64()
	report.UpperBound = total.Add(absolute).Round(amountPrecision).InexactFloat64()
	return report, nil
}
