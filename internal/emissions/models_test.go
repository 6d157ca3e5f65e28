package emissions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

func TestParseScope(t *testing.T) {
	cases := map[string]Scope{
		"1":       Scope1,
		"scope2":  Scope2,
		"Scope 3": Scope3,
		"SCOPE_1": Scope1,
	}
	for raw, want := range cases {
		got, err := ParseScope(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseScope("scope4")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestCategoryNormalize(t *testing.T) {
	assert.Equal(t, CategoryBusinessTravel, Category(" Business_Travel ").Normalize())
	assert.Equal(t, CategoryStationary, Category("Stationary").Normalize())
}

func TestPeriodValidation(t *testing.T) {
	for _, ok := range []string{"2024", "2024-Q1", "2023-Q4"} {
		assert.NoError(t, ValidatePeriod(ok), ok)
	}
	for _, bad := range []string{"", "24", "2024-Q5", "2024Q1", "2024-01"} {
		assert.Error(t, ValidatePeriod(bad), bad)
	}

	year, err := PeriodYear("2025-Q2")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
}

func TestAccumulatorRoundsOnceAtTotals(t *testing.T) {
	acc := NewAccumulator()
	// 0.0004 three times would round to 0 per addition but 0.001 once at the end
	acc.Add(Scope1, 0.0004)
	acc.Add(Scope1, 0.0004)
	acc.Add(Scope1, 0.0004)
	acc.Add(Scope2, 50.12345)
	acc.Add(Scope3, 0.1)
	acc.Add(Scope3, 0.2)

	totals := acc.Totals()
	assert.Equal(t, 0.001, totals.Scope1)
	assert.Equal(t, 50.123, totals.Scope2)
	assert.Equal(t, 0.3, totals.Scope3)
	assert.Equal(t, 50.425, totals.Total)
}

func TestRoundTotalHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 1.001, RoundTotal(decimal.RequireFromString("1.0005")))
	assert.Equal(t, 101.003, RoundTotal(decimal.RequireFromString("101.002725")))
}

func TestScopeTotalsGet(t *testing.T) {
	totals := ScopeTotals{Scope1: 1, Scope2: 2, Scope3: 3, Total: 6}
	assert.Equal(t, 2.0, totals.Get(Scope2))
	assert.Equal(t, 0.0, totals.Get(Scope("bogus")))
}

func TestEnclosingPeriods(t *testing.T) {
	assert.Equal(t, []string{"2024"}, EnclosingPeriods("2024"))
	assert.Equal(t, []string{"2024-Q3", "2024"}, EnclosingPeriods(" 2024-Q3 "))
	assert.Nil(t, EnclosingPeriods("Q3 2024"))

	assert.True(t, IsYearPeriod("2023"))
	assert.False(t, IsYearPeriod("2023-Q1"))
	assert.False(t, IsYearPeriod("soon"))
}
