package emissions

import (
	"github.com/shopspring/decimal"
)

// TotalsPrecision is the number of decimal places kept in tCO2e totals
const TotalsPrecision = 3

// ScopeTotals holds tCO2e per scope plus the grand total.
// Values are rounded once, when the totals are built, and never again downstream.
type ScopeTotals struct {
	Scope1 float64 `json:"scope1"`
	Scope2 float64 `json:"scope2"`
	Scope3 float64 `json:"scope3"`
	Total  float64 `json:"total"`
}

// Get returns the value for scope
func (t ScopeTotals) Get(scope Scope) float64 {
	switch scope {
	case Scope1:
		return t.Scope1
	case Scope2:
		return t.Scope2
	case Scope3:
		return t.Scope3
	}
	return 0
}

// RoundTotal rounds an accumulated quantity to TotalsPrecision places
func RoundTotal(d decimal.Decimal) float64 {
	return d.Round(TotalsPrecision).InexactFloat64()
}

// Accumulator sums tCO2e per scope in exact decimal arithmetic so the
// result does not depend on the order values are added in.
type Accumulator struct {
	scopes map[Scope]decimal.Decimal
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{scopes: make(map[Scope]decimal.Decimal, len(Scopes))}
}

// Add adds value to scope
func (a *Accumulator) Add(scope Scope, value float64) {
	a.scopes[scope] = a.scopes[scope].Add(decimal.NewFromFloat(value))
}

// Totals builds the rounded ScopeTotals. This is the rounding boundary.
func (a *Accumulator) Totals() ScopeTotals {
	s1, s2, s3 := a.scopes[Scope1], a.scopes[Scope2], a.scopes[Scope3]
	return ScopeTotals{
		Scope1: RoundTotal(s1),
		Scope2: RoundTotal(s2),
		Scope3: RoundTotal(s3),
		Total:  RoundTotal(s1.Add(s2).Add(s3)),
	}
}

// KeyedAccumulator sums values per string key, used for category breakdowns
type KeyedAccumulator struct {
	values map[string]decimal.Decimal
}

// NewKeyedAccumulator creates an empty keyed accumulator
func NewKeyedAccumulator() *KeyedAccumulator {
	return &KeyedAccumulator{values: make(map[string]decimal.Decimal)}
}

// Add adds value under key
func (k *KeyedAccumulator) Add(key string, value float64) {
	k.values[key] = k.values[key].Add(decimal.NewFromFloat(value))
}

// Rounded returns every key rounded to TotalsPrecision
func (k *KeyedAccumulator) Rounded() map[string]float64 {
	out := make(map[string]float64, len(k.values))
	for key, v := range k.values {
		out[key] = RoundTotal(v)
	}
	return out
}
