package factors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

func TestDefaultCatalogLoads(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	assert.Equal(t, "2024.1", catalog.Version())
	assert.Greater(t, catalog.Len(), 20)

	f, err := catalog.Lookup(emissions.Scope1, "Stationary", " natural_gas ")
	require.NoError(t, err)
	assert.Equal(t, ShapeMultiGas, f.Shape())
	assert.Equal(t, 0.00202, f.CO2())
	assert.Equal(t, "Stationary Combustion", f.Label)

	travel, err := catalog.Lookup(emissions.Scope3, "business_travel", "rail")
	require.NoError(t, err)
	assert.Equal(t, "3.6", travel.Category)
	require.NotNil(t, travel.SpendFactor)

	list := catalog.List()
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Key().String(), list[i].Key().String())
	}
}

func TestStaticCatalogLookupMiss(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = catalog.Lookup(emissions.Scope1, "stationary", "whale_oil")
	assert.True(t, errors.Is(err, ErrFactorNotFound))
}

func TestFactorValidateShapes(t *testing.T) {
	base := EmissionFactor{Scope: emissions.Scope1, Category: "stationary", ActivityType: "coal", Source: "IPCC"}

	both := base
	both.FactorCO2 = Float(1)
	both.FactorDirect = Float(1)
	assert.True(t, errs.IsInvalidInput(both.Validate()))

	neither := base
	assert.True(t, errs.IsInvalidInput(neither.Validate()))

	noSource := base
	noSource.FactorDirect = Float(2)
	noSource.Source = " "
	assert.Equal(t, "source", errs.FieldOf(noSource.Validate()))

	negative := base
	negative.FactorDirect = Float(-2)
	assert.Equal(t, "factor_direct", errs.FieldOf(negative.Validate()))

	ok := base
	ok.FactorCH4 = Float(0.1)
	assert.NoError(t, ok.Validate())
	assert.Equal(t, ShapeMultiGas, ok.Shape())
	assert.Equal(t, "stationary", ok.BreakdownLabel())
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	data := []byte(`
version: test
factors:
  - {id: a, scope: scope2, category: electricity, activity_type: grid, factor_direct: 0.3, source: x}
  - {id: b, scope: scope2, category: Electricity, activity_type: GRID, factor_direct: 0.4, source: y}
`)
	_, err := ParseCatalog(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: custom
factors:
  - {id: a, scope: scope3, category: "3.5", activity_type: compost, factor_direct: 0.01, source: local study}
`), 0o600))

	catalog, err := LoadCatalogFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", catalog.Version())
	assert.Equal(t, 1, catalog.Len())

	_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func gridOverride(value float64, from time.Time, until *time.Time) Override {
	return Override{
		TenantID: uuid.New(),
		Factor: EmissionFactor{
			ID:           "tenant-grid",
			Scope:        emissions.Scope2,
			Category:     "electricity",
			ActivityType: "grid_mix",
			Label:        "Purchased Electricity",
			FactorDirect: Float(value),
			Source:       "supplier disclosure",
		},
		ValidFrom:  from,
		ValidUntil: until,
	}
}

func TestOverrideSourceValidityWindow(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	src, err := NewOverrideSource(clock.At(2024, time.June, 30), []Override{gridOverride(0.21, jan, &jun)})
	require.NoError(t, err)
	f, err := src.Lookup(emissions.Scope2, "electricity", "grid_mix")
	require.NoError(t, err)
	assert.Equal(t, 0.21, f.Direct())

	expired, err := NewOverrideSource(clock.At(2024, time.July, 1), []Override{gridOverride(0.21, jan, &jun)})
	require.NoError(t, err)
	_, err = expired.Lookup(emissions.Scope2, "electricity", "grid_mix")
	assert.ErrorIs(t, err, ErrFactorNotFound)

	notYet, err := NewOverrideSource(clock.At(2023, time.December, 31), []Override{gridOverride(0.21, jan, nil)})
	require.NoError(t, err)
	_, err = notYet.Lookup(emissions.Scope2, "electricity", "grid_mix")
	assert.ErrorIs(t, err, ErrFactorNotFound)
}

func TestOverrideSourceNextChange(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)
	sep := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	src, err := NewOverrideSource(clock.At(2024, time.March, 1), []Override{
		gridOverride(0.21, jan, &jun),
		gridOverride(0.19, sep, nil),
	})
	require.NoError(t, err)
	next := src.NextChange()
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), *next)

	later, err := NewOverrideSource(clock.At(2024, time.July, 1), []Override{
		gridOverride(0.21, jan, &jun),
		gridOverride(0.19, sep, nil),
	})
	require.NoError(t, err)
	next = later.NextChange()
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), *next)

	settled, err := NewOverrideSource(clock.At(2024, time.October, 1), []Override{gridOverride(0.19, sep, nil)})
	require.NoError(t, err)
	assert.Nil(t, settled.NextChange())
}

func TestOverrideSourceLatestValidFromWins(t *testing.T) {
	older := gridOverride(0.30, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	newer := gridOverride(0.25, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil)

	src, err := NewOverrideSource(clock.At(2024, time.March, 1), []Override{newer, older})
	require.NoError(t, err)
	f, err := src.Lookup(emissions.Scope2, "electricity", "grid_mix")
	require.NoError(t, err)
	assert.Equal(t, 0.25, f.Direct())
}

func TestOverrideSourceRejectsInvertedWindow(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewOverrideSource(clock.At(2024, time.March, 1), []Override{gridOverride(0.2, from, &until)})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestForTenantIsOverrideFirst(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	src, err := NewOverrideSource(clock.At(2024, time.March, 1), []Override{
		gridOverride(0.11, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil),
	})
	require.NoError(t, err)

	chain := catalog.ForTenant(src)
	grid, err := chain.Lookup(emissions.Scope2, "electricity", "grid_mix")
	require.NoError(t, err)
	assert.Equal(t, 0.11, grid.Direct())

	// keys without an override fall back to the static catalog
	gas, err := chain.Lookup(emissions.Scope1, "stationary", "natural_gas")
	require.NoError(t, err)
	assert.Equal(t, "s1-stationary-natural-gas", gas.ID)

	_, err = chain.Lookup(emissions.Scope3, "3.1", "unobtainium")
	assert.ErrorIs(t, err, ErrFactorNotFound)

	assert.Same(t, catalog, catalog.ForTenant(nil))
}

type brokenSource struct{}

func (brokenSource) Lookup(emissions.Scope, string, string) (EmissionFactor, error) {
	return EmissionFactor{}, errors.New("override store unavailable")
}

func TestChainStopsOnHardError(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = Chain(brokenSource{}, catalog).Lookup(emissions.Scope1, "stationary", "natural_gas")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrFactorNotFound))
}
