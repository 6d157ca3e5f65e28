package calculation

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	catalog, err := factors.DefaultCatalog()
	require.NoError(t, err)
	return NewEngine(catalog)
}

func record(scope emissions.Scope, category emissions.Category, activity string, qty float64) emissions.ActivityRecord {
	return emissions.ActivityRecord{
		ID:           uuid.New(),
		Scope:        scope,
		Category:     category,
		ActivityType: activity,
		Quantity:     qty,
		Period:       "2024",
	}
}

func ptr(v float64) *float64 { return &v }

func TestComputeStationaryNaturalGas(t *testing.T) {
	engine := newTestEngine(t)

	calc, err := engine.Compute(record(emissions.Scope1, emissions.CategoryStationary, "natural_gas", 50000))
	require.NoError(t, err)

	res := calc.Result
	assert.Equal(t, "multi_gas", res.Method)
	assert.InDelta(t, 101.0, res.CO2, 1e-9)
	assert.InDelta(t, 0.05, res.CH4*1000, 1e-12)
	assert.InDelta(t, 101.002725, res.CO2e, 1e-9)
	assert.Equal(t, res.CO2+28*res.CH4+265*res.N2O, res.CO2e)
	assert.Equal(t, emissions.UnitTCO2e, res.Unit)
	assert.Equal(t, "Stationary Combustion", calc.BreakdownKey)
	require.Len(t, calc.Steps, 2)
}

func TestMultiGasIdentityHoldsExactly(t *testing.T) {
	engine := newTestEngine(t)
	rng := rand.New(rand.NewSource(42))

	activities := []struct {
		category emissions.Category
		activity string
	}{
		{emissions.CategoryStationary, "natural_gas"},
		{emissions.CategoryStationary, "diesel"},
		{emissions.CategoryStationary, "lpg"},
		{emissions.CategoryMobile, "petrol"},
		{emissions.CategoryMobile, "diesel"},
	}
	for i := 0; i < 200; i++ {
		a := activities[i%len(activities)]
		calc, err := engine.Compute(record(emissions.Scope1, a.category, a.activity, rng.Float64()*1e6))
		require.NoError(t, err)
		r := calc.Result
		assert.Equal(t, r.CO2+28*r.CH4+265*r.N2O, r.CO2e)
	}
}

func TestComputeFugitive(t *testing.T) {
	engine := newTestEngine(t)

	for _, qty := range []float64{0, 1, 12.5, 300} {
		calc, err := engine.Compute(record(emissions.Scope1, emissions.CategoryFugitive, "r134a", qty))
		require.NoError(t, err)
		r := calc.Result
		assert.Equal(t, qty*1430/1000, r.CO2e)
		assert.Zero(t, r.CO2)
		assert.Zero(t, r.CH4)
		assert.Zero(t, r.N2O)
		assert.Equal(t, "fugitive", r.Method)
	}
}

func TestComputeElectricityAndHeating(t *testing.T) {
	engine := newTestEngine(t)

	elec, err := engine.Compute(record(emissions.Scope2, emissions.CategoryElectricity, "grid_mix", 250000))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, elec.Result.CO2e, 1e-9)
	assert.Equal(t, "Purchased Electricity", elec.BreakdownKey)

	heat, err := engine.Compute(record(emissions.Scope2, emissions.CategoryHeating, "district_heat", 100))
	require.NoError(t, err)
	assert.InDelta(t, 18.0, heat.Result.CO2e, 1e-9)
	assert.Equal(t, "heating", heat.Result.Method)
}

func TestComputeScope3Generic(t *testing.T) {
	engine := newTestEngine(t)

	calc, err := engine.Compute(record(emissions.Scope3, emissions.CategoryUpstreamTransport, "road_freight", 10000))
	require.NoError(t, err)
	assert.InDelta(t, 1.07, calc.Result.CO2e, 1e-9)
	assert.Equal(t, "scope3_generic", calc.Result.Method)
	assert.Equal(t, "Upstream Transportation and Distribution", calc.BreakdownKey)
}

func TestComputeBusinessTravelModes(t *testing.T) {
	engine := newTestEngine(t)

	distance := record(emissions.Scope3, emissions.CategoryBusinessTravelAlias, "rail", 0)
	distance.Options.DistanceKm = ptr(1000)
	calc, err := engine.Compute(distance)
	require.NoError(t, err)
	assert.InDelta(t, 0.035, calc.Result.CO2e, 1e-12)
	assert.Equal(t, "Business Travel", calc.BreakdownKey)

	spend := record(emissions.Scope3, emissions.CategoryBusinessTravel, "rail", 0)
	spend.Options.SpendUSD = ptr(500)
	calc, err = engine.Compute(spend)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, calc.Result.CO2e, 1e-12)

	implicit := record(emissions.Scope3, emissions.CategoryBusinessTravel, "flight_long_haul", 2000)
	calc, err = engine.Compute(implicit)
	require.NoError(t, err)
	assert.InDelta(t, 0.296, calc.Result.CO2e, 1e-12)

	both := record(emissions.Scope3, emissions.CategoryBusinessTravel, "rail", 0)
	both.Options.DistanceKm = ptr(10)
	both.Options.SpendUSD = ptr(10)
	_, err = engine.Compute(both)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestSpendModeWithoutSpendFactorIsALookupMiss(t *testing.T) {
	engine := newTestEngine(t)

	rec := record(emissions.Scope3, emissions.CategoryBusinessTravel, "rail", 0)
	rec.Options.SpendUSD = ptr(100)

	override, err := factors.NewStaticCatalog("t", []factors.EmissionFactor{{
		ID: "no-spend", Scope: emissions.Scope3, Category: "3.6", ActivityType: "rail",
		FactorDirect: factors.Float(0.00004), Source: "tenant",
	}})
	require.NoError(t, err)

	calc, err := NewEngine(override).Compute(rec)
	require.NoError(t, err)
	assert.True(t, calc.Miss())
	assert.Equal(t, emissions.UnknownSource, calc.Result.Source)

	// the default catalog has a spend factor for the same key
	calc, err = engine.Compute(rec)
	require.NoError(t, err)
	assert.False(t, calc.Miss())
}

func TestComputeLookupMissIsNotFatal(t *testing.T) {
	engine := newTestEngine(t)

	calc, err := engine.Compute(record(emissions.Scope1, emissions.CategoryStationary, "whale_oil", 10))
	require.NoError(t, err)
	assert.True(t, calc.Miss())
	assert.True(t, calc.Result.IsUnknown())
	assert.Zero(t, calc.Result.CO2e)
	assert.Equal(t, "stationary", calc.BreakdownKey)
	assert.Equal(t, factors.NewKey(emissions.Scope1, "stationary", "whale_oil"), calc.MissKey())
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t)

	cases := map[string]func(r *emissions.ActivityRecord){
		"quantity":      func(r *emissions.ActivityRecord) { r.Quantity = -1 },
		"scope":         func(r *emissions.ActivityRecord) { r.Scope = "scope9" },
		"category":      func(r *emissions.ActivityRecord) { r.Category = "" },
		"activity_type": func(r *emissions.ActivityRecord) { r.ActivityType = "" },
		"period":        func(r *emissions.ActivityRecord) { r.Period = "last year" },
		"data_quality":  func(r *emissions.ActivityRecord) { r.Options.DataQuality = "guessed" },
		"distance_km":   func(r *emissions.ActivityRecord) { r.Options.DistanceKm = ptr(-5) },
	}
	for field, mutate := range cases {
		rec := record(emissions.Scope1, emissions.CategoryStationary, "natural_gas", 10)
		mutate(&rec)

		_, err := engine.Compute(rec)
		require.Error(t, err, field)
		assert.True(t, errs.IsInvalidInput(err), field)
		assert.Equal(t, field, errs.FieldOf(err), field)
	}
}

func TestComputeRejectsNonFiniteTravelOptions(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		field  string
		mutate func(r *emissions.ActivityRecord)
	}{
		{"distance_km", func(r *emissions.ActivityRecord) { r.Options.DistanceKm = ptr(math.Inf(1)) }},
		{"spend_usd", func(r *emissions.ActivityRecord) { r.Options.SpendUSD = ptr(math.Inf(1)) }},
		{"spend_usd", func(r *emissions.ActivityRecord) { r.Options.SpendUSD = ptr(math.NaN()) }},
	}
	for _, tc := range cases {
		rec := record(emissions.Scope3, emissions.CategoryBusinessTravel, "rail", 0)
		tc.mutate(&rec)

		require.NotPanics(t, func() {
			_, err := engine.Compute(rec)
			require.Error(t, err, tc.field)
			assert.True(t, errs.IsInvalidInput(err), tc.field)
			assert.Equal(t, tc.field, errs.FieldOf(err), tc.field)
		})
	}
}

func TestComputeAcceptsShortScopeForms(t *testing.T) {
	engine := newTestEngine(t)

	calc, err := engine.Compute(record("1", emissions.CategoryStationary, "natural_gas", 1))
	require.NoError(t, err)
	assert.Equal(t, emissions.Scope1, calc.Record.Scope)
}

func TestZeroQuantityIsCounted(t *testing.T) {
	engine := newTestEngine(t)

	calc, err := engine.Compute(record(emissions.Scope2, emissions.CategoryElectricity, "grid_mix", 0))
	require.NoError(t, err)
	assert.False(t, calc.Miss())
	assert.Zero(t, calc.Result.CO2e)
}

type failingSource struct{}

func (failingSource) Lookup(emissions.Scope, string, string) (factors.EmissionFactor, error) {
	return factors.EmissionFactor{}, errors.New("connection reset")
}

func TestComputePropagatesSourceFailures(t *testing.T) {
	_, err := NewEngine(failingSource{}).Compute(record(emissions.Scope1, emissions.CategoryStationary, "natural_gas", 1))
	require.Error(t, err)
	assert.False(t, errs.IsInvalidInput(err))
}

func TestDirectFallbackForCombustionCategory(t *testing.T) {
	catalog, err := factors.NewStaticCatalog("t", []factors.EmissionFactor{{
		ID: "coal", Scope: emissions.Scope1, Category: "stationary", ActivityType: "coal",
		FactorDirect: factors.Float(2.4), Source: "supplier",
	}})
	require.NoError(t, err)

	calc, err := NewEngine(catalog).Compute(record(emissions.Scope1, emissions.CategoryStationary, "coal", 10))
	require.NoError(t, err)
	assert.Equal(t, "direct", calc.Result.Method)
	assert.InDelta(t, 24.0, calc.Result.CO2e, 1e-9)
	assert.Equal(t, "stationary", calc.BreakdownKey)
}

func TestEngineMethodsOrder(t *testing.T) {
	assert.Equal(t, []string{
		"fugitive", "electricity", "heating", "business_travel", "scope3_generic", "multi_gas", "direct",
	}, newTestEngine(t).Methods())
}
