package offsets

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// CarbonNeutralTolerance is the absolute tCO2e below which a net total counts as neutral
const CarbonNeutralTolerance = 0.01

// PercentPrecision is the number of decimal places kept in percentages
const PercentPrecision = 2

// AllocatedScope is the bucket an offset was retired against
type AllocatedScope string

const (
	AllocatedScope1 AllocatedScope = "scope1"
	AllocatedScope2 AllocatedScope = "scope2"
	AllocatedScope3 AllocatedScope = "scope3"
	// AllocatedScope12 is split between scope 1 and 2 in proportion to
	// their gross emissions at netting time.
	AllocatedScope12 AllocatedScope = "scope1_2"
)

// Valid reports whether s is a known bucket
func (s AllocatedScope) Valid() bool {
	switch s {
	case AllocatedScope1, AllocatedScope2, AllocatedScope3, AllocatedScope12:
		return true
	}
	return false
}

// ParseAllocatedScope normalises a bucket name
func ParseAllocatedScope(raw string) (AllocatedScope, error) {
	s := AllocatedScope(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case "scope1_2", "scope12", "scope1+2":
		return AllocatedScope12, nil
	}
	if s.Valid() {
		return s, nil
	}
	return "", errs.Invalid("allocated_scope", "unknown offset bucket %q", raw)
}

// RetirementStatus tracks the lifecycle of an offset purchase
type RetirementStatus string

const (
	StatusPending   RetirementStatus = "pending"
	StatusRetired   RetirementStatus = "retired"
	StatusCancelled RetirementStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s RetirementStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRetired, StatusCancelled:
		return true
	}
	return false
}

// OffsetTransaction is a purchased quantity of carbon credits.
// Only retired transactions count towards netting; a retired transaction is immutable.
type OffsetTransaction struct {
	ID             uuid.UUID        `json:"id"`
	TenantID       uuid.UUID        `json:"tenant_id"`
	Quantity       float64          `json:"quantity" validate:"gte=0"`
	AllocatedScope AllocatedScope   `json:"allocated_scope" validate:"required"`
	Period         string           `json:"period" validate:"required"`
	Status         RetirementStatus `json:"status" validate:"required"`
	Registry       string           `json:"registry,omitempty"`
	SerialNumber   string           `json:"serial_number,omitempty"`
	RetiredAt      *time.Time       `json:"retired_at,omitempty"`
}

// Retired reports whether the transaction counts towards netting
func (t OffsetTransaction) Retired() bool {
	return t.Status == StatusRetired
}

// Validate checks the transaction fields
func (t OffsetTransaction) Validate() error {
	if t.Quantity < 0 {
		return errs.Invalid("quantity", "must not be negative, got %v", t.Quantity)
	}
	if !t.AllocatedScope.Valid() {
		return errs.Invalid("allocated_scope", "unknown offset bucket %q", t.AllocatedScope)
	}
	if !t.Status.Valid() {
		return errs.Invalid("status", "unknown retirement status %q", t.Status)
	}
	if t.Period != "" {
		if err := emissions.ValidatePeriod(t.Period); err != nil {
			return err
		}
	}
	return nil
}

// NetEmissionSnapshot is the result of netting gross emissions against
// retired offsets. It holds no timestamps so identical inputs always
// produce identical snapshots.
type NetEmissionSnapshot struct {
	Gross            emissions.ScopeTotals `json:"gross"`
	Offset           emissions.ScopeTotals `json:"offset"`
	Net              emissions.ScopeTotals `json:"net"`
	CarbonNeutral    bool                  `json:"carbon_neutral"`
	OffsetPercentage float64               `json:"offset_percentage"`
	// UnallocatedOffset is retired scope1_2 quantity that could not be split
	// because scope 1 and 2 gross were both zero. It is not applied anywhere.
	UnallocatedOffset float64 `json:"unallocated_offset"`
}

// PeriodSnapshot is a NetEmissionSnapshot for one tenant and period, as
// cached and persisted by callers.
type PeriodSnapshot struct {
	TenantID  uuid.UUID           `json:"tenant_id"`
	Period    string              `json:"period"`
	Snapshot  NetEmissionSnapshot `json:"snapshot"`
	Breakdown map[string]float64  `json:"breakdown_by_category,omitempty"`
	// MissCount is the number of records whose factor could not be found.
	MissCount  int       `json:"miss_count"`
	ComputedAt time.Time `json:"computed_at"`
	// ValidUntil is when a tenant factor override window opens or closes
	// and the snapshot no longer matches a recomputation. Nil means never.
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// ExpiredAt reports whether an override boundary has passed at now
func (p *PeriodSnapshot) ExpiredAt(now time.Time) bool {
	return p.ValidUntil != nil && !now.Before(*p.ValidUntil)
}
