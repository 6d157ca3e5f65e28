package calculation

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
)

// Aggregator folds engine results into scope totals and a category breakdown
type Aggregator struct {
	engine *Engine
}

// NewAggregator creates a new aggregator over engine
func NewAggregator(engine *Engine) *Aggregator {
	return &Aggregator{engine: engine}
}

// RecordDetail is the per-record line of an aggregation
type RecordDetail struct {
	RecordID     uuid.UUID                 `json:"record_id"`
	Scope        emissions.Scope           `json:"scope"`
	Category     emissions.Category        `json:"category"`
	ActivityType string                    `json:"activity_type"`
	Quantity     float64                   `json:"quantity"`
	Unit         string                    `json:"unit"`
	Period       string                    `json:"period"`
	Tier         emissions.DataQualityTier `json:"data_quality_tier,omitempty"`
	BreakdownKey string                    `json:"breakdown_key"`
	Result       emissions.CO2eResult      `json:"result"`
}

// Aggregation is the output of Aggregate
type Aggregation struct {
	Totals    emissions.ScopeTotals `json:"totals"`
	Breakdown map[string]float64    `json:"breakdown_by_category"`
	Details   []RecordDetail        `json:"details"`
	// Misses lists the distinct factor keys that could not be resolved.
	Misses []factors.Key `json:"misses,omitempty"`
}

// Aggregate computes every record and sums the results.
// Sums are exact decimals, rounded once when the totals are built, so the
// output does not depend on record order.
func (a *Aggregator) Aggregate(records []emissions.ActivityRecord) (*Aggregation, error) {
	scopes := emissions.NewAccumulator()
	categories := emissions.NewKeyedAccumulator()
	details := make([]RecordDetail, 0, len(records))
	misses := make(map[factors.Key]struct{})

	for i, record := range records {
		calc, err := a.engine.Compute(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		scopes.Add(calc.Record.Scope, calc.Result.CO2e)
		categories.Add(calc.BreakdownKey, calc.Result.CO2e)
		if calc.Miss() {
			misses[calc.MissKey()] = struct{}{}
		}

		details = append(details, RecordDetail{
			RecordID:     calc.Record.ID,
			Scope:        calc.Record.Scope,
			Category:     calc.Record.Category,
			ActivityType: calc.Record.ActivityType,
			Quantity:     calc.Record.Quantity,
			Unit:         calc.Record.Unit,
			Period:       calc.Record.Period,
			Tier:         calc.Record.Tier(),
			BreakdownKey: calc.BreakdownKey,
			Result:       calc.Result,
		})
	}

	return &Aggregation{
		Totals:    scopes.Totals(),
		Breakdown: categories.Rounded(),
		Details:   details,
		Misses:    sortedKeys(misses),
	}, nil
}

func sortedKeys(set map[factors.Key]struct{}) []factors.Key {
	if len(set) == 0 {
		return nil
	}
	keys := make([]factors.Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
