package uncertainty

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

func TestTierPercentage(t *testing.T) {
	assert.Equal(t, 5.0, TierPercentage(emissions.TierMeasured))
	assert.Equal(t, 10.0, TierPercentage(emissions.TierCalculated))
	assert.Equal(t, 30.0, TierPercentage(emissions.TierEstimated))
	assert.Equal(t, 50.0, TierPercentage(emissions.TierDefault))
	assert.Equal(t, 30.0, TierPercentage(""))
	assert.Equal(t, 30.0, TierPercentage("guessed"))
}

func TestAssessWeightsByCO2e(t *testing.T) {
	report, err := Assess([]Input{
		{ID: "a", CO2e: 900, Tier: emissions.TierMeasured},
		{ID: "b", CO2e: 100, Tier: emissions.TierDefault},
	})
	require.NoError(t, err)

	// 900×5% + 100×50% = 45 + 50
	assert.Equal(t, 1000.0, report.TotalEmissions)
	assert.Equal(t, 95.0, report.AbsoluteUncertainty)
	assert.Equal(t, 9.5, report.OverallUncertaintyPct)
	assert.Equal(t, 905.0, report.LowerBound)
	assert.Equal(t, 1095.0, report.UpperBound)
	require.Len(t, report.Records, 2)
	assert.Equal(t, 50.0, report.Records[1].Absolute)
}

func TestAssessUnknownTierIsEstimated(t *testing.T) {
	report, err := Assess([]Input{{ID: "x", CO2e: 10}})
	require.NoError(t, err)

	assert.Equal(t, emissions.TierEstimated, report.Records[0].Tier)
	assert.Equal(t, 30.0, report.OverallUncertaintyPct)
	assert.Equal(t, 7.0, report.LowerBound)
	assert.Equal(t, 13.0, report.UpperBound)
}

func TestAssessBoundsOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tiers := []emissions.DataQualityTier{
		emissions.TierMeasured, emissions.TierCalculated, emissions.TierEstimated, emissions.TierDefault, "",
	}

	for i := 0; i < 100; i++ {
		var inputs []Input
		for j := 0; j <= rng.Intn(20); j++ {
			inputs = append(inputs, Input{CO2e: rng.Float64() * 500, Tier: tiers[rng.Intn(len(tiers))]})
		}

		report, err := Assess(inputs)
		require.NoError(t, err)
		assert.LessOrEqual(t, report.LowerBound, report.TotalEmissions)
		assert.LessOrEqual(t, report.TotalEmissions, report.UpperBound)
		assert.GreaterOrEqual(t, report.OverallUncertaintyPct, 5.0)
		assert.LessOrEqual(t, report.OverallUncertaintyPct, 50.0)
	}
}

func TestAssessEmptyAndZero(t *testing.T) {
	report, err := Assess(nil)
	require.NoError(t, err)
	assert.Zero(t, report.TotalEmissions)
	assert.Zero(t, report.OverallUncertaintyPct)

	report, err = Assess([]Input{{CO2e: 0, Tier: emissions.TierDefault}})
	require.NoError(t, err)
	assert.Zero(t, report.OverallUncertaintyPct)
	assert.Zero(t, report.UpperBound)
}

func TestAssessRejectsNegative(t *testing.T) {
	_, err := Assess([]Input{{CO2e: 1}, {CO2e: -2}})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "input 1")
}
