package calculation

import (
	"fmt"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
)

const kgPerTonne = 1000.0

// Method converts one activity record and its matched factor into CO2e
type Method interface {
	// Name identifies the method in results and calculation steps
	Name() string

	// Applies reports whether the method handles this record/factor pair
	Applies(record emissions.ActivityRecord, factor factors.EmissionFactor) bool

	// Calculate performs the conversion
	Calculate(record emissions.ActivityRecord, factor factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error)
}

// CalculationStep documents one step of a calculation for audit trails
type CalculationStep struct {
	StepNumber int                `json:"step_number"`
	Name       string             `json:"name"`
	Formula    string             `json:"formula"`
	Inputs     map[string]float64 `json:"inputs"`
	Outputs    map[string]float64 `json:"outputs"`
}

func result(method string, factor factors.EmissionFactor) emissions.CO2eResult {
	return emissions.CO2eResult{
		Unit:     emissions.UnitTCO2e,
		Source:   factor.Source,
		FactorID: factor.ID,
		Method:   method,
	}
}

func isDirect(f factors.EmissionFactor) bool {
	return f.Shape() == factors.ShapeDirect
}

// MultiGasMethod handles combustion factors expressed per gas.
// CH4 and N2O factors are kg per unit and are reported in tonnes.
type MultiGasMethod struct{}

func (MultiGasMethod) Name() string { return "multi_gas" }

func (MultiGasMethod) Applies(_ emissions.ActivityRecord, f factors.EmissionFactor) bool {
	return f.Shape() == factors.ShapeMultiGas
}

func (m MultiGasMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	res.CO2 = r.Quantity * f.CO2()
	res.CH4 = r.Quantity * f.CH4() / kgPerTonne
	res.N2O = r.Quantity * f.N2O() / kgPerTonne
	res.CO2e = res.CO2 + res.CH4*emissions.GWPCH4 + res.N2O*emissions.GWPN2O

	steps := []CalculationStep{
		{
			StepNumber: 1,
			Name:       "Gas masses",
			Formula:    "CO2 = Q × EF_CO2; CH4 = Q × EF_CH4 / 1000; N2O = Q × EF_N2O / 1000",
			Inputs:     map[string]float64{"quantity": r.Quantity, "ef_co2": f.CO2(), "ef_ch4": f.CH4(), "ef_n2o": f.N2O()},
			Outputs:    map[string]float64{"co2": res.CO2, "ch4": res.CH4, "n2o": res.N2O},
		},
		{
			StepNumber: 2,
			Name:       "GWP weighting",
			Formula:    "CO2e = CO2 + 28 × CH4 + 265 × N2O",
			Inputs:     map[string]float64{"gwp_ch4": emissions.GWPCH4, "gwp_n2o": emissions.GWPN2O},
			Outputs:    map[string]float64{"co2e": res.CO2e},
		},
	}
	return res, steps, nil
}

// FugitiveMethod handles refrigerant leakage: the direct factor is the
// species' GWP and quantity is kg leaked.
type FugitiveMethod struct{}

func (FugitiveMethod) Name() string { return "fugitive" }

func (FugitiveMethod) Applies(r emissions.ActivityRecord, f factors.EmissionFactor) bool {
	return r.Category.Normalize() == emissions.CategoryFugitive && isDirect(f)
}

func (m FugitiveMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	gwp := f.Direct()
	res.CO2e = r.Quantity * gwp / kgPerTonne

	return res, []CalculationStep{{
		StepNumber: 1,
		Name:       "Refrigerant leakage",
		Formula:    "CO2e = Q_kg × GWP / 1000",
		Inputs:     map[string]float64{"quantity_kg": r.Quantity, "gwp": gwp},
		Outputs:    map[string]float64{"co2e": res.CO2e},
	}}, nil
}

// ElectricityMethod handles location-based purchased electricity and
// cooling with kg CO2e per kWh factors.
type ElectricityMethod struct{}

func (ElectricityMethod) Name() string { return "electricity" }

func (ElectricityMethod) Applies(r emissions.ActivityRecord, f factors.EmissionFactor) bool {
	switch r.Category.Normalize() {
	case emissions.CategoryElectricity, emissions.CategoryCooling:
		return isDirect(f)
	}
	return false
}

func (m ElectricityMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	res.CO2e = r.Quantity * f.Direct() / kgPerTonne

	return res, []CalculationStep{{
		StepNumber: 1,
		Name:       "Grid emissions",
		Formula:    "CO2e = Q_kWh × EF_kgCO2e/kWh / 1000",
		Inputs:     map[string]float64{"quantity_kwh": r.Quantity, "ef_kg_per_kwh": f.Direct()},
		Outputs:    map[string]float64{"co2e": res.CO2e},
	}}, nil
}

// HeatingMethod handles district heat and steam with t-scale factors
type HeatingMethod struct{}

func (HeatingMethod) Name() string { return "heating" }

func (HeatingMethod) Applies(r emissions.ActivityRecord, f factors.EmissionFactor) bool {
	switch r.Category.Normalize() {
	case emissions.CategoryHeating, emissions.CategorySteam:
		return isDirect(f)
	}
	return false
}

func (m HeatingMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	res.CO2e = r.Quantity * f.Direct()

	return res, []CalculationStep{{
		StepNumber: 1,
		Name:       "Purchased heat",
		Formula:    "CO2e = Q × EF",
		Inputs:     map[string]float64{"quantity": r.Quantity, "ef": f.Direct()},
		Outputs:    map[string]float64{"co2e": res.CO2e},
	}}, nil
}

// BusinessTravelMethod supports distance-based and spend-based input.
// The mode is chosen by which of DistanceKm / SpendUSD is populated;
// with neither, Quantity is the distance.
type BusinessTravelMethod struct{}

func (BusinessTravelMethod) Name() string { return "business_travel" }

func (BusinessTravelMethod) Applies(r emissions.ActivityRecord, f factors.EmissionFactor) bool {
	return r.Scope == emissions.Scope3 && r.Category.Normalize() == emissions.CategoryBusinessTravel && isDirect(f)
}

func (m BusinessTravelMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	opts := r.Options

	if opts.SpendUSD != nil {
		if opts.DistanceKm != nil {
			return res, nil, errInvalid("options", "distance_km and spend_usd are mutually exclusive")
		}
		if f.SpendFactor == nil {
			return res, nil, fmt.Errorf("%w: no spend factor for %s", factors.ErrFactorNotFound, f.Key())
		}
		res.CO2e = *opts.SpendUSD * *f.SpendFactor
		return res, []CalculationStep{{
			StepNumber: 1,
			Name:       "Spend-based travel",
			Formula:    "CO2e = spend_usd × EF_spend",
			Inputs:     map[string]float64{"spend_usd": *opts.SpendUSD, "ef_spend": *f.SpendFactor},
			Outputs:    map[string]float64{"co2e": res.CO2e},
		}}, nil
	}

	distance := r.Quantity
	if opts.DistanceKm != nil {
		distance = *opts.DistanceKm
	}
	res.CO2e = distance * f.Direct()
	return res, []CalculationStep{{
		StepNumber: 1,
		Name:       "Distance-based travel",
		Formula:    "CO2e = distance_km × EF_travel_type",
		Inputs:     map[string]float64{"distance_km": distance, "ef": f.Direct()},
		Outputs:    map[string]float64{"co2e": res.CO2e},
	}}, nil
}

// Scope3GenericMethod multiplies quantity (tkm, pkm, ton, …) by a t-scale factor
type Scope3GenericMethod struct{}

func (Scope3GenericMethod) Name() string { return "scope3_generic" }

func (Scope3GenericMethod) Applies(r emissions.ActivityRecord, f factors.EmissionFactor) bool {
	return r.Scope == emissions.Scope3 && isDirect(f)
}

func (m Scope3GenericMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	res.CO2e = r.Quantity * f.Direct()

	return res, []CalculationStep{{
		StepNumber: 1,
		Name:       "Value-chain activity",
		Formula:    "CO2e = Q × EF",
		Inputs:     map[string]float64{"quantity": r.Quantity, "ef": f.Direct()},
		Outputs:    map[string]float64{"co2e": res.CO2e},
	}}, nil
}

// DirectMethod is the fallback for a direct factor on any other category
type DirectMethod struct{}

func (DirectMethod) Name() string { return "direct" }

func (DirectMethod) Applies(_ emissions.ActivityRecord, f factors.EmissionFactor) bool {
	return isDirect(f)
}

func (m DirectMethod) Calculate(r emissions.ActivityRecord, f factors.EmissionFactor) (emissions.CO2eResult, []CalculationStep, error) {
	res := result(m.Name(), f)
	res.CO2e = r.Quantity * f.Direct()

	return res, []CalculationStep{{
		StepNumber: 1,
		Name:       "Direct factor",
		Formula:    "CO2e = Q × EF",
		Inputs:     map[string]float64{"quantity": r.Quantity, "ef": f.Direct()},
		Outputs:    map[string]float64{"co2e": res.CO2e},
	}}, nil
}

// DefaultMethods returns the built-in methods in match order
func DefaultMethods() []Method {
	return []Method{
		FugitiveMethod{},
		ElectricityMethod{},
		HeatingMethod{},
		BusinessTravelMethod{},
		Scope3GenericMethod{},
		MultiGasMethod{},
		DirectMethod{},
	}
}
