package calculation

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// Validator handles validation of activity records
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()
	// Report json field names so errors match what callers sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateRecord checks an activity record and returns it with its scope
// normalised. Failures are InvalidInput and never coerced to defaults.
func (v *Validator) ValidateRecord(record emissions.ActivityRecord) (emissions.ActivityRecord, error) {
	if err := v.validate.Struct(record); err != nil {
		return record, translate(err)
	}

	scope, err := emissions.ParseScope(string(record.Scope))
	if err != nil {
		return record, err
	}
	record.Scope = scope

	if strings.TrimSpace(string(record.Category)) == "" {
		return record, errInvalid("category", "is required")
	}
	if strings.TrimSpace(record.ActivityType) == "" {
		return record, errInvalid("activity_type", "is required")
	}
	if math.IsInf(record.Quantity, 0) || math.IsNaN(record.Quantity) {
		return record, errInvalid("quantity", "must be a finite number")
	}
	if err := emissions.ValidatePeriod(record.Period); err != nil {
		return record, err
	}

	opts := record.Options
	if !finite(opts.DistanceKm) {
		return record, errInvalid("distance_km", "must be a finite number")
	}
	if !finite(opts.SpendUSD) {
		return record, errInvalid("spend_usd", "must be a finite number")
	}
	if opts.DistanceKm != nil && opts.SpendUSD != nil {
		return record, errInvalid("options", "distance_km and spend_usd are mutually exclusive")
	}
	return record, nil
}

func finite(v *float64) bool {
	return v == nil || !(math.IsInf(*v, 0) || math.IsNaN(*v))
}

func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return errInvalid(fe.Field(), "is required")
		case "gte":
			return errInvalid(fe.Field(), "must not be negative, got %v", fe.Value())
		case "oneof":
			return errInvalid(fe.Field(), "must be one of [%s], got %v", fe.Param(), fe.Value())
		default:
			return errInvalid(fe.Field(), "failed %s validation", fe.Tag())
		}
	}
	return &errs.ValidationError{Field: "record", Message: "validation failed", Cause: err}
}

func errInvalid(field, format string, args ...any) error {
	return errs.Invalid(field, format, args...)
}
