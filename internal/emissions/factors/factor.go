package factors

import (
	"errors"
	"fmt"
	"strings"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// ErrFactorNotFound is returned by a FactorSource when no factor matches a key.
// Callers treat it as a non-fatal lookup miss.
var ErrFactorNotFound = errors.New("emission factor not found")

// Shape distinguishes the two factor forms
type Shape string

const (
	ShapeMultiGas Shape = "multi_gas"
	ShapeDirect   Shape = "direct"
	ShapeInvalid  Shape = "invalid"
)

// EmissionFactor converts a unit of activity into emissions.
//
// Exactly one shape is populated: the multi-gas triple (FactorCO2 in tonnes,
// FactorCH4 and FactorN2O in kg, all per unit of activity) or FactorDirect
// (CO2e per unit; kg-scale for electricity and refrigerant GWPs, t-scale
// elsewhere).
type EmissionFactor struct {
	ID           string          `json:"id" yaml:"id"`
	Scope        emissions.Scope `json:"scope" yaml:"scope"`
	Category     string          `json:"category" yaml:"category"`
	ActivityType string          `json:"activity_type" yaml:"activity_type"`
	// Label is the semantic category name used as the breakdown key.
	Label string `json:"label" yaml:"label"`
	Unit  string `json:"unit" yaml:"unit"`

	FactorCO2    *float64 `json:"factor_co2,omitempty" yaml:"factor_co2,omitempty"`
	FactorCH4    *float64 `json:"factor_ch4,omitempty" yaml:"factor_ch4,omitempty"`
	FactorN2O    *float64 `json:"factor_n2o,omitempty" yaml:"factor_n2o,omitempty"`
	FactorDirect *float64 `json:"factor_direct,omitempty" yaml:"factor_direct,omitempty"`

	// SpendFactor is tCO2e per USD for spend-based business travel.
	SpendFactor *float64 `json:"spend_factor_usd,omitempty" yaml:"spend_factor_usd,omitempty"`

	Source string `json:"source" yaml:"source"`
	Year   int    `json:"year,omitempty" yaml:"year,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Shape reports which factor form is populated
func (f EmissionFactor) Shape() Shape {
	multi := f.FactorCO2 != nil || f.FactorCH4 != nil || f.FactorN2O != nil
	direct := f.FactorDirect != nil
	switch {
	case multi && !direct:
		return ShapeMultiGas
	case direct && !multi:
		return ShapeDirect
	}
	return ShapeInvalid
}

// Key returns the lookup key of the factor
func (f EmissionFactor) Key() Key {
	return NewKey(f.Scope, f.Category, f.ActivityType)
}

// BreakdownLabel returns Label, falling back to the category code
func (f EmissionFactor) BreakdownLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Category
}

// Validate checks the single-shape and mandatory-source invariants
func (f EmissionFactor) Validate() error {
	if !f.Scope.Valid() {
		return errs.Invalid("scope", "unknown scope %q", f.Scope)
	}
	if strings.TrimSpace(f.Category) == "" {
		return errs.Invalid("category", "is required")
	}
	if strings.TrimSpace(f.ActivityType) == "" {
		return errs.Invalid("activity_type", "is required")
	}
	if strings.TrimSpace(f.Source) == "" {
		return errs.Invalid("source", "citation is required for factor %s", f.Key())
	}
	if f.Shape() == ShapeInvalid {
		return errs.Invalid("factor", "exactly one of the multi-gas triple or factor_direct must be set for %s", f.Key())
	}
	for name, v := range map[string]*float64{
		"factor_co2":       f.FactorCO2,
		"factor_ch4":       f.FactorCH4,
		"factor_n2o":       f.FactorN2O,
		"factor_direct":    f.FactorDirect,
		"spend_factor_usd": f.SpendFactor,
	} {
		if v != nil && *v < 0 {
			return errs.Invalid(name, "must not be negative for %s", f.Key())
		}
	}
	return nil
}

// CO2, CH4 and N2O return the multi-gas components, zero when unset.
func (f EmissionFactor) CO2() float64    { return deref(f.FactorCO2) }
func (f EmissionFactor) CH4() float64    { return deref(f.FactorCH4) }
func (f EmissionFactor) N2O() float64    { return deref(f.FactorN2O) }
func (f EmissionFactor) Direct() float64 { return deref(f.FactorDirect) }

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Key identifies a factor by scope, category and activity type
type Key struct {
	Scope        emissions.Scope `json:"scope"`
	Category     string          `json:"category"`
	ActivityType string          `json:"activity_type"`
}

// NewKey builds a normalised key
func NewKey(scope emissions.Scope, category, activityType string) Key {
	return Key{
		Scope:        scope,
		Category:     string(emissions.Category(category).Normalize()),
		ActivityType: strings.ToLower(strings.TrimSpace(activityType)),
	}
}

// String renders the key as scope/category/activity_type
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Scope, k.Category, k.ActivityType)
}

// FactorSource resolves emission factors
type FactorSource interface {
	// Lookup returns the factor for the key or ErrFactorNotFound
	Lookup(scope emissions.Scope, category, activityType string) (EmissionFactor, error)
}

// Float returns a pointer to v, for building factors in code
func Float(v float64) *float64 {
	return &v
}
