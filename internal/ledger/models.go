package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/targets"
)

// ActivityRecordModel is the persisted form of an activity record
type ActivityRecordModel struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_activity_tenant_period" json:"tenant_id"`
	Scope        string         `gorm:"not null" json:"scope"`
	Category     string         `gorm:"not null" json:"category"`
	ActivityType string         `gorm:"not null" json:"activity_type"`
	Quantity     float64        `gorm:"not null" json:"quantity"`
	Unit         string         `json:"unit"`
	Period       string         `gorm:"not null;index:idx_activity_tenant_period" json:"period"`
	Options      datatypes.JSON `json:"options"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (ActivityRecordModel) TableName() string { return "activity_records" }

// BeforeCreate assigns an ID when none is set
func (m *ActivityRecordModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func newActivityRecordModel(r *emissions.ActivityRecord) (*ActivityRecordModel, error) {
	opts, err := json.Marshal(r.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record options: %w", err)
	}
	return &ActivityRecordModel{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Scope:        string(r.Scope),
		Category:     string(r.Category),
		ActivityType: r.ActivityType,
		Quantity:     r.Quantity,
		Unit:         r.Unit,
		Period:       r.Period,
		Options:      datatypes.JSON(opts),
	}, nil
}

func (m *ActivityRecordModel) toDomain() (emissions.ActivityRecord, error) {
	r := emissions.ActivityRecord{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Scope:        emissions.Scope(m.Scope),
		Category:     emissions.Category(m.Category),
		ActivityType: m.ActivityType,
		Quantity:     m.Quantity,
		Unit:         m.Unit,
		Period:       m.Period,
	}
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &r.Options); err != nil {
			return r, fmt.Errorf("failed to decode options of record %s: %w", m.ID, err)
		}
	}
	return r, nil
}

// OffsetTransactionModel is the persisted form of an offset transaction
type OffsetTransactionModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_offset_tenant_period" json:"tenant_id"`
	Quantity       float64    `gorm:"not null" json:"quantity"`
	AllocatedScope string     `gorm:"not null" json:"allocated_scope"`
	Period         string     `gorm:"not null;index:idx_offset_tenant_period" json:"period"`
	Status         string     `gorm:"not null;default:'pending'" json:"status"`
	Registry       string     `json:"registry"`
	SerialNumber   string     `json:"serial_number"`
	RetiredAt      *time.Time `json:"retired_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (OffsetTransactionModel) TableName() string { return "offset_transactions" }

// BeforeCreate assigns an ID when none is set
func (m *OffsetTransactionModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func newOffsetTransactionModel(t *offsets.OffsetTransaction) *OffsetTransactionModel {
	return &OffsetTransactionModel{
		ID:             t.ID,
		TenantID:       t.TenantID,
		Quantity:       t.Quantity,
		AllocatedScope: string(t.AllocatedScope),
		Period:         t.Period,
		Status:         string(t.Status),
		Registry:       t.Registry,
		SerialNumber:   t.SerialNumber,
		RetiredAt:      t.RetiredAt,
	}
}

func (m *OffsetTransactionModel) toDomain() offsets.OffsetTransaction {
	return offsets.OffsetTransaction{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Quantity:       m.Quantity,
		AllocatedScope: offsets.AllocatedScope(m.AllocatedScope),
		Period:         m.Period,
		Status:         offsets.RetirementStatus(m.Status),
		Registry:       m.Registry,
		SerialNumber:   m.SerialNumber,
		RetiredAt:      m.RetiredAt,
	}
}

// FactorOverrideModel is a tenant's replacement factor with its validity window
type FactorOverrideModel struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Scope        string         `gorm:"not null" json:"scope"`
	Category     string         `gorm:"not null" json:"category"`
	ActivityType string         `gorm:"not null" json:"activity_type"`
	Factor       datatypes.JSON `gorm:"not null" json:"factor"`
	ValidFrom    time.Time      `gorm:"not null" json:"valid_from"`
	ValidUntil   *time.Time     `json:"valid_until"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (FactorOverrideModel) TableName() string { return "factor_overrides" }

// BeforeCreate assigns an ID when none is set
func (m *FactorOverrideModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func newFactorOverrideModel(o *factors.Override) (*FactorOverrideModel, error) {
	factor, err := json.Marshal(o.Factor)
	if err != nil {
		return nil, fmt.Errorf("failed to encode override factor: %w", err)
	}
	key := o.Factor.Key()
	return &FactorOverrideModel{
		TenantID:     o.TenantID,
		Scope:        string(key.Scope),
		Category:     key.Category,
		ActivityType: key.ActivityType,
		Factor:       datatypes.JSON(factor),
		ValidFrom:    o.ValidFrom,
		ValidUntil:   o.ValidUntil,
	}, nil
}

func (m *FactorOverrideModel) toDomain() (factors.Override, error) {
	o := factors.Override{
		TenantID:   m.TenantID,
		ValidFrom:  m.ValidFrom,
		ValidUntil: m.ValidUntil,
	}
	if err := json.Unmarshal(m.Factor, &o.Factor); err != nil {
		return o, fmt.Errorf("failed to decode override %s: %w", m.ID, err)
	}
	return o, nil
}

// CarbonTargetModel is the persisted form of a reduction target
type CarbonTargetModel struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	BaselineYear  int            `gorm:"not null" json:"baseline_year"`
	BaselineCO2e  float64        `gorm:"not null" json:"baseline_co2e"`
	TargetYear    int            `gorm:"not null" json:"target_year"`
	TargetCO2e    float64        `gorm:"not null" json:"target_co2e"`
	ScopeCoverage datatypes.JSON `json:"scope_coverage"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (CarbonTargetModel) TableName() string { return "carbon_targets" }

// BeforeCreate assigns an ID when none is set
func (m *CarbonTargetModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func newCarbonTargetModel(t *targets.CarbonTarget) (*CarbonTargetModel, error) {
	coverage, err := json.Marshal(t.ScopeCoverage)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scope coverage: %w", err)
	}
	return &CarbonTargetModel{
		ID:            t.ID,
		TenantID:      t.TenantID,
		BaselineYear:  t.BaselineYear,
		BaselineCO2e:  t.BaselineCO2e,
		TargetYear:    t.TargetYear,
		TargetCO2e:    t.TargetCO2e,
		ScopeCoverage: datatypes.JSON(coverage),
	}, nil
}

func (m *CarbonTargetModel) toDomain() (targets.CarbonTarget, error) {
	t := targets.CarbonTarget{
		ID:           m.ID,
		TenantID:     m.TenantID,
		BaselineYear: m.BaselineYear,
		BaselineCO2e: m.BaselineCO2e,
		TargetYear:   m.TargetYear,
		TargetCO2e:   m.TargetCO2e,
	}
	if len(m.ScopeCoverage) > 0 {
		if err := json.Unmarshal(m.ScopeCoverage, &t.ScopeCoverage); err != nil {
			return t, fmt.Errorf("failed to decode scope coverage of target %s: %w", m.ID, err)
		}
	}
	return t, nil
}

// NetEmissionSnapshotModel caches a derived period snapshot.
// It is rebuildable from the records and offsets at any time.
type NetEmissionSnapshotModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_tenant_period" json:"tenant_id"`
	Period     string         `gorm:"not null;uniqueIndex:idx_snapshot_tenant_period" json:"period"`
	Payload    datatypes.JSON `json:"payload"`
	IsStale    bool           `gorm:"not null;default:false;index" json:"is_stale"`
	StaleAt    *time.Time     `json:"stale_at"`
	ComputedAt *time.Time     `json:"computed_at"`
	ValidUntil *time.Time     `gorm:"index" json:"valid_until"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (NetEmissionSnapshotModel) TableName() string { return "net_emission_snapshots" }

// BeforeCreate assigns an ID when none is set
func (m *NetEmissionSnapshotModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// SnapshotRef identifies a tenant's period snapshot
type SnapshotRef struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Period   string    `json:"period"`
}

// AllModels lists every table for migration
func AllModels() []interface{} {
	return []interface{}{
		&ActivityRecordModel{},
		&OffsetTransactionModel{},
		&FactorOverrideModel{},
		&CarbonTargetModel{},
		&NetEmissionSnapshotModel{},
	}
}
