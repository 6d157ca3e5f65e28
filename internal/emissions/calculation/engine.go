package calculation

import (
	"errors"
	"fmt"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
)

// Engine converts activity records into CO2e using a factor source and a
// registry of calculation methods. It holds no state between calls.
type Engine struct {
	source    factors.FactorSource
	validator *Validator
	methods   []Method
}

// Calculation is the outcome of computing one record
type Calculation struct {
	Record emissions.ActivityRecord `json:"record"`
	Result emissions.CO2eResult     `json:"result"`
	// Factor is nil on a lookup miss.
	Factor *factors.EmissionFactor `json:"factor,omitempty"`
	Steps  []CalculationStep       `json:"steps,omitempty"`
	// BreakdownKey is the factor's semantic label, or the record's category on a miss.
	BreakdownKey string `json:"breakdown_key"`
}

// Miss reports whether no factor was found for the record
func (c *Calculation) Miss() bool {
	return c.Factor == nil
}

// MissKey returns the lookup key that missed
func (c *Calculation) MissKey() factors.Key {
	return factors.NewKey(c.Record.Scope, string(c.Record.Category), c.Record.ActivityType)
}

// NewEngine creates a new calculation engine with the built-in methods
func NewEngine(source factors.FactorSource) *Engine {
	return NewEngineWithMethods(source, DefaultMethods())
}

// NewEngineWithMethods creates an engine with a custom method order
func NewEngineWithMethods(source factors.FactorSource, methods []Method) *Engine {
	return &Engine{
		source:    source,
		validator: NewValidator(),
		methods:   methods,
	}
}

// Compute calculates CO2e for one record.
//
// Invalid input is returned as an error. A missing factor is not an error:
// the result is zero-valued and tagged with emissions.UnknownSource.
func (e *Engine) Compute(record emissions.ActivityRecord) (*Calculation, error) {
	record, err := e.validator.ValidateRecord(record)
	if err != nil {
		return nil, fmt.Errorf("invalid activity record: %w", err)
	}

	factor, err := e.source.Lookup(record.Scope, string(record.Category), record.ActivityType)
	if err != nil {
		if errors.Is(err, factors.ErrFactorNotFound) {
			return e.miss(record), nil
		}
		return nil, fmt.Errorf("factor lookup failed: %w", err)
	}

	method := e.methodFor(record, factor)
	if method == nil {
		return nil, fmt.Errorf("no calculation method for factor %s with shape %s", factor.Key(), factor.Shape())
	}

	res, steps, err := method.Calculate(record, factor)
	if err != nil {
		if errors.Is(err, factors.ErrFactorNotFound) {
			return e.miss(record), nil
		}
		return nil, fmt.Errorf("%s calculation failed: %w", method.Name(), err)
	}

	return &Calculation{
		Record:       record,
		Result:       res,
		Factor:       &factor,
		Steps:        steps,
		BreakdownKey: factor.BreakdownLabel(),
	}, nil
}

func (e *Engine) miss(record emissions.ActivityRecord) *Calculation {
	return &Calculation{
		Record:       record,
		Result:       emissions.UnknownResult(),
		BreakdownKey: string(record.Category.Normalize()),
	}
}

func (e *Engine) methodFor(record emissions.ActivityRecord, factor factors.EmissionFactor) Method {
	for _, m := range e.methods {
		if m.Applies(record, factor) {
			return m
		}
	}
	return nil
}

// Methods returns the names of the registered methods in match order
func (e *Engine) Methods() []string {
	names := make([]string, len(e.methods))
	for i, m := range e.methods {
		names[i] = m.Name()
	}
	return names
}
