package emissions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// Global Warming Potentials (100-year horizon) used for multi-gas factors
const (
	GWPCO2 = 1.0
	GWPCH4 = 28.0
	GWPN2O = 265.0
)

// UnitTCO2e is the unit of every CO2eResult and total
const UnitTCO2e = "tCO2e"

// UnknownSource tags results whose factor could not be found
const UnknownSource = "unknown"

// Scope represents a GHG Protocol emission scope
type Scope string

const (
	Scope1 Scope = "scope1"
	Scope2 Scope = "scope2"
	Scope3 Scope = "scope3"
)

// Scopes lists the reporting scopes in order
var Scopes = []Scope{Scope1, Scope2, Scope3}

// Valid reports whether s is one of the three reporting scopes
func (s Scope) Valid() bool {
	switch s {
	case Scope1, Scope2, Scope3:
		return true
	}
	return false
}

// ParseScope accepts "1", "scope1" and "Scope 1" forms
func ParseScope(raw string) (Scope, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.TrimPrefix(s, "scope")
	switch s {
	case "1":
		return Scope1, nil
	case "2":
		return Scope2, nil
	case "3":
		return Scope3, nil
	}
	return "", errs.Invalid("scope", "unknown scope %q", raw)
}

// Category identifies an emission source class or a Scope 3 category code
type Category string

const (
	CategoryStationary  Category = "stationary"
	CategoryMobile      Category = "mobile"
	CategoryFugitive    Category = "fugitive"
	CategoryProcess     Category = "process"
	CategoryElectricity Category = "electricity"
	CategoryHeating     Category = "heating"
	CategoryCooling     Category = "cooling"
	CategorySteam       Category = "steam"

	CategoryPurchasedGoods      Category = "3.1"
	CategoryCapitalGoods        Category = "3.2"
	CategoryFuelEnergy          Category = "3.3"
	CategoryUpstreamTransport   Category = "3.4"
	CategoryWaste               Category = "3.5"
	CategoryBusinessTravel      Category = "3.6"
	CategoryEmployeeCommuting   Category = "3.7"
	CategoryUpstreamLeased      Category = "3.8"
	CategoryDownstreamTransport Category = "3.9"
	CategoryProcessingSold      Category = "3.10"
	CategoryUseOfSold           Category = "3.11"
	CategoryEndOfLife           Category = "3.12"
	CategoryDownstreamLeased    Category = "3.13"
	CategoryFranchises          Category = "3.14"
	CategoryInvestments         Category = "3.15"
	CategoryBusinessTravelAlias Category = "business_travel"
)

var knownCategories = map[Category]struct{}{
	CategoryStationary: {}, CategoryMobile: {}, CategoryFugitive: {}, CategoryProcess: {},
	CategoryElectricity: {}, CategoryHeating: {}, CategoryCooling: {}, CategorySteam: {},
	CategoryPurchasedGoods: {}, CategoryCapitalGoods: {}, CategoryFuelEnergy: {},
	CategoryUpstreamTransport: {}, CategoryWaste: {}, CategoryBusinessTravel: {},
	CategoryEmployeeCommuting: {}, CategoryUpstreamLeased: {}, CategoryDownstreamTransport: {},
	CategoryProcessingSold: {}, CategoryUseOfSold: {}, CategoryEndOfLife: {},
	CategoryDownstreamLeased: {}, CategoryFranchises: {}, CategoryInvestments: {},
}

// Known reports whether the normalised category is a well-known code
func (c Category) Known() bool {
	_, ok := knownCategories[c.Normalize()]
	return ok
}

// Normalize lower-cases and trims the category code
func (c Category) Normalize() Category {
	n := Category(strings.ToLower(strings.TrimSpace(string(c))))
	if n == CategoryBusinessTravelAlias {
		return CategoryBusinessTravel
	}
	return n
}

// DataQualityTier is the ISO 14064-1 data-quality classification
type DataQualityTier string

const (
	TierMeasured   DataQualityTier = "measured"
	TierCalculated DataQualityTier = "calculated"
	TierEstimated  DataQualityTier = "estimated"
	TierDefault    DataQualityTier = "default"
)

// Known reports whether the tier is one of the four ISO tiers
func (t DataQualityTier) Known() bool {
	switch t {
	case TierMeasured, TierCalculated, TierEstimated, TierDefault:
		return true
	}
	return false
}

// RecordOptions enumerates the optional fields of an activity record.
// Zero values are the documented defaults.
type RecordOptions struct {
	// Subcategory refines the category for reporting, e.g. "fleet_diesel".
	Subcategory string `json:"subcategory,omitempty"`
	// DataQuality drives the uncertainty lookup; empty means estimated.
	DataQuality DataQualityTier `json:"data_quality,omitempty" validate:"omitempty,oneof=measured calculated estimated default"`
	// DistanceKm selects distance-based business travel.
	DistanceKm *float64 `json:"distance_km,omitempty" validate:"omitempty,gte=0"`
	// SpendUSD selects spend-based business travel.
	SpendUSD     *float64 `json:"spend_usd,omitempty" validate:"omitempty,gte=0"`
	EvidenceFile string   `json:"evidence_file,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Location     string   `json:"location,omitempty"`
	Supplier     string   `json:"supplier,omitempty"`
}

// ActivityRecord is one reported activity.
// Records are immutable once computed; corrections are new records.
type ActivityRecord struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.UUID     `json:"tenant_id"`
	Scope        Scope         `json:"scope" validate:"required"`
	Category     Category      `json:"category" validate:"required"`
	ActivityType string        `json:"activity_type" validate:"required"`
	Quantity     float64       `json:"quantity" validate:"gte=0"`
	Unit         string        `json:"unit"`
	Period       string        `json:"period" validate:"required"`
	Options      RecordOptions `json:"options"`
}

// Tier returns the record's data-quality tier
func (r ActivityRecord) Tier() DataQualityTier {
	return r.Options.DataQuality
}

// CO2eResult is the output of one calculation
type CO2eResult struct {
	CO2      float64 `json:"co2"`
	CH4      float64 `json:"ch4"`
	N2O      float64 `json:"n2o"`
	CO2e     float64 `json:"co2e"`
	Unit     string  `json:"unit"`
	Source   string  `json:"source"`
	FactorID string  `json:"factor_id,omitempty"`
	Method   string  `json:"method,omitempty"`
}

// UnknownResult is the zero result reported for a factor lookup miss
func UnknownResult() CO2eResult {
	return CO2eResult{Unit: UnitTCO2e, Source: UnknownSource}
}

// IsUnknown reports whether the result came from a lookup miss
func (r CO2eResult) IsUnknown() bool {
	return r.Source == UnknownSource
}

var periodPattern = regexp.MustCompile(`^(\d{4})(?:-Q([1-4]))?$`)

// ValidatePeriod accepts "YYYY" and "YYYY-Qn"
func ValidatePeriod(period string) error {
	if !periodPattern.MatchString(strings.TrimSpace(period)) {
		return errs.Invalid("period", "expected YYYY or YYYY-Qn, got %q", period)
	}
	return nil
}

// PeriodYear extracts the reporting year from a period string
func PeriodYear(period string) (int, error) {
	m := periodPattern.FindStringSubmatch(strings.TrimSpace(period))
	if m == nil {
		return 0, errs.Invalid("period", "expected YYYY or YYYY-Qn, got %q", period)
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse period year: %w", err)
	}
	return year, nil
}

// EnclosingPeriods returns period and, for a quarter, the year containing it.
// A change to a quarter's data also invalidates its year.
func EnclosingPeriods(period string) []string {
	m := periodPattern.FindStringSubmatch(strings.TrimSpace(period))
	if m == nil {
		return nil
	}
	if m[2] == "" {
		return []string{m[1]}
	}
	return []string{m[0], m[1]}
}

// IsYearPeriod reports whether period names a whole reporting year
func IsYearPeriod(period string) bool {
	m := periodPattern.FindStringSubmatch(strings.TrimSpace(period))
	return m != nil && m[2] == ""
}
