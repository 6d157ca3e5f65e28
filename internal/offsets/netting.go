package offsets

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

var hundred = decimal.NewFromInt(100)

// NettingEngine reconciles gross emissions with retired offsets.
// It keeps no state between calls.
type NettingEngine struct{}

// NewNettingEngine creates a new netting engine
func NewNettingEngine() *NettingEngine {
	return &NettingEngine{}
}

type buckets struct {
	scope1, scope2, scope3, combined decimal.Decimal
}

// NetEmissions nets gross against the retired transactions in offsets.
//
// Offsets are bucketed by allocated scope. The scope1_2 bucket is split in
// proportion to the current scope 1 and 2 gross; when both are zero the
// bucket is reported as UnallocatedOffset. Net is floored at zero per scope
// and surplus never moves to another scope. A non-zero gross.Total is
// reported unchanged; a zero one is derived from the scope values.
func (e *NettingEngine) NetEmissions(gross emissions.ScopeTotals, offsets []OffsetTransaction) (NetEmissionSnapshot, error) {
	if err := validateGross(gross); err != nil {
		return NetEmissionSnapshot{}, err
	}

	b, err := bucketize(offsets)
	if err != nil {
		return NetEmissionSnapshot{}, err
	}

	g1 := decimal.NewFromFloat(gross.Scope1)
	g2 := decimal.NewFromFloat(gross.Scope2)
	g3 := decimal.NewFromFloat(gross.Scope3)

	o1, o2, o3 := b.scope1, b.scope2, b.scope3
	unallocated := decimal.Zero
	if b.combined.IsPositive() {
		combinedGross := g1.Add(g2)
		if combinedGross.IsZero() {
			unallocated = b.combined
		} else {
			o1 = o1.Add(b.combined.Mul(g1).Div(combinedGross))
			o2 = o2.Add(b.combined.Mul(g2).Div(combinedGross))
		}
	}

	n1 := floorZero(g1.Sub(o1))
	n2 := floorZero(g2.Sub(o2))
	n3 := floorZero(g3.Sub(o3))

	totalGross := g1.Add(g2).Add(g3)
	grossTotal := emissions.RoundTotal(totalGross)
	if gross.Total != 0 {
		grossTotal = gross.Total
	}
	totalOffset := o1.Add(o2).Add(o3)
	totalNet := emissions.RoundTotal(n1.Add(n2).Add(n3))

	snap := NetEmissionSnapshot{
		Gross: emissions.ScopeTotals{
			Scope1: gross.Scope1,
			Scope2: gross.Scope2,
			Scope3: gross.Scope3,
			Total:  grossTotal,
		},
		Offset: emissions.ScopeTotals{
			Scope1: emissions.RoundTotal(o1),
			Scope2: emissions.RoundTotal(o2),
			Scope3: emissions.RoundTotal(o3),
			Total:  emissions.RoundTotal(totalOffset),
		},
		Net: emissions.ScopeTotals{
			Scope1: emissions.RoundTotal(n1),
			Scope2: emissions.RoundTotal(n2),
			Scope3: emissions.RoundTotal(n3),
			Total:  totalNet,
		},
		CarbonNeutral:     totalNet <= CarbonNeutralTolerance,
		UnallocatedOffset: emissions.RoundTotal(unallocated),
	}
	if !totalGross.IsZero() {
		snap.OffsetPercentage = totalOffset.Div(totalGross).Mul(hundred).Round(PercentPrecision).InexactFloat64()
	}
	return snap, nil
}

func validateGross(gross emissions.ScopeTotals) error {
	for _, s := range emissions.Scopes {
		v := gross.Get(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Invalid(string(s), "gross must be a finite number")
		}
		if v < 0 {
			return errs.Invalid(string(s), "gross must not be negative, got %v", v)
		}
	}
	if math.IsNaN(gross.Total) || math.IsInf(gross.Total, 0) || gross.Total < 0 {
		return errs.Invalid("total", "gross must be a finite non-negative number, got %v", gross.Total)
	}
	return nil
}

func bucketize(offsets []OffsetTransaction) (buckets, error) {
	var b buckets
	for i, tx := range offsets {
		if err := tx.Validate(); err != nil {
			return buckets{}, fmt.Errorf("offset %d: %w", i, err)
		}
		if !tx.Retired() {
			continue
		}
		qty := decimal.NewFromFloat(tx.Quantity)
		switch tx.AllocatedScope {
		case AllocatedScope1:
			b.scope1 = b.scope1.Add(qty)
		case AllocatedScope2:
			b.scope2 = b.scope2.Add(qty)
		case AllocatedScope3:
			b.scope3 = b.scope3.Add(qty)
		case AllocatedScope12:
			b.combined = b.combined.Add(qty)
		}
	}
	return b, nil
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
