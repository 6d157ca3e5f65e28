package planner

import (
	"github.com/shopspring/decimal"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// DefaultPriority is the weight of a scope without an explicit priority
const DefaultPriority = 1.0

// ScopeAllocation is one scope's share of a priority-weighted budget
type ScopeAllocation struct {
	Scope       emissions.Scope `json:"scope"`
	Emissions   float64         `json:"emissions"`
	Priority    float64         `json:"priority"`
	Budget      float64         `json:"budget"`
	Quantity    float64         `json:"quantity"`
	CoveragePct float64         `json:"coverage_pct"`
}

// PriorityAllocation splits a budget across scopes
type PriorityAllocation struct {
	TotalBudget    float64           `json:"total_budget"`
	ReferencePrice float64           `json:"reference_price"`
	Allocations    []ScopeAllocation `json:"allocations"`
}

// AllocateByPriority splits budget across the three scopes in proportion to
// emissions × priority and buys offsets at ReferencePrice.
// A scope missing from priorities weighs DefaultPriority; when every weight
// is zero nothing is allocated.
func (p *Planner) AllocateByPriority(budget float64, scopeEmissions, priorities map[emissions.Scope]float64) (*PriorityAllocation, error) {
	if err := nonNegative("total_budget", budget); err != nil {
		return nil, err
	}
	for s, v := range scopeEmissions {
		if !s.Valid() {
			return nil, errs.Invalid("scope_emissions", "unknown scope %q", s)
		}
		if err := nonNegative("scope_emissions."+string(s), v); err != nil {
			return nil, err
		}
	}
	for s, v := range priorities {
		if !s.Valid() {
			return nil, errs.Invalid("scope_priorities", "unknown scope %q", s)
		}
		if err := nonNegative("scope_priorities."+string(s), v); err != nil {
			return nil, err
		}
	}

	weights := make(map[emissions.Scope]decimal.Decimal, len(emissions.Scopes))
	totalWeight := decimal.Zero
	for _, s := range emissions.Scopes {
		priority, ok := priorities[s]
		if !ok {
			priority = DefaultPriority
		}
		w := dec(scopeEmissions[s]).Mul(dec(priority))
		weights[s] = w
		totalWeight = totalWeight.Add(w)
	}

	out := &PriorityAllocation{
		TotalBudget:    budget,
		ReferencePrice: ReferencePrice,
		Allocations:    make([]ScopeAllocation, 0, len(emissions.Scopes)),
	}
	for _, s := range emissions.Scopes {
		priority, ok := priorities[s]
		if !ok {
			priority = DefaultPriority
		}
		alloc := ScopeAllocation{Scope: s, Emissions: scopeEmissions[s], Priority: priority}
		if !totalWeight.IsZero() {
			share := dec(budget).Mul(weights[s]).Div(totalWeight)
			qty := share.Div(dec(ReferencePrice))
			alloc.Budget = round(share, moneyPrecision)
			alloc.Quantity = round(qty, quantityPrecision)
			alloc.CoveragePct = coverage(qty, dec(scopeEmissions[s]))
		}
		out.Allocations = append(out.Allocations, alloc)
	}
	return out, nil
}
