package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/targets"
)

// Repository defines data access for the accounting ledger
type Repository interface {
	CreateActivityRecord(ctx context.Context, record *emissions.ActivityRecord) error
	ListActivityRecords(ctx context.Context, tenantID uuid.UUID, period string) ([]emissions.ActivityRecord, error)

	CreateOffsetTransaction(ctx context.Context, tx *offsets.OffsetTransaction) error
	UpdateOffsetStatus(ctx context.Context, tenantID, id uuid.UUID, to offsets.RetirementStatus, at time.Time) (*offsets.OffsetTransaction, error)
	ListOffsetTransactions(ctx context.Context, tenantID uuid.UUID, period string) ([]offsets.OffsetTransaction, error)

	CreateFactorOverride(ctx context.Context, override *factors.Override) error
	ListFactorOverrides(ctx context.Context, tenantID uuid.UUID) ([]factors.Override, error)

	CreateTarget(ctx context.Context, target *targets.CarbonTarget) error
	GetTarget(ctx context.Context, tenantID, id uuid.UUID) (*targets.CarbonTarget, error)

	SaveSnapshot(ctx context.Context, snap *offsets.PeriodSnapshot) error
	GetSnapshot(ctx context.Context, tenantID uuid.UUID, period string) (*offsets.PeriodSnapshot, error)
	MarkSnapshotStale(ctx context.Context, tenantID uuid.UUID, period string, at time.Time) error
	MarkTenantSnapshotsStale(ctx context.Context, tenantID uuid.UUID, at time.Time) error
	ListStaleSnapshots(ctx context.Context, now time.Time, limit int) ([]SnapshotRef, error)
}

type gormRepository struct {
	db        *gorm.DB
	lifecycle *offsets.Lifecycle
}

// NewRepository creates a gorm-backed repository
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, lifecycle: offsets.NewLifecycle()}
}

// periodScope matches period exactly, and for a year also its quarters
func periodScope(period string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if emissions.IsYearPeriod(period) {
			return db.Where("(period = ? OR period LIKE ?)", period, period+"-Q%")
		}
		return db.Where("period = ?", period)
	}
}

func (r *gormRepository) CreateActivityRecord(ctx context.Context, record *emissions.ActivityRecord) error {
	m, err := newActivityRecordModel(record)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create activity record: %w", err)
	}
	record.ID = m.ID
	return nil
}

func (r *gormRepository) ListActivityRecords(ctx context.Context, tenantID uuid.UUID, period string) ([]emissions.ActivityRecord, error) {
	var rows []ActivityRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Scopes(periodScope(period)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity records: %w", err)
	}

	records := make([]emissions.ActivityRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *gormRepository) CreateOffsetTransaction(ctx context.Context, tx *offsets.OffsetTransaction) error {
	m := newOffsetTransactionModel(tx)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create offset transaction: %w", err)
	}
	tx.ID = m.ID
	return nil
}

// UpdateOffsetStatus moves a transaction along the offset lifecycle. Moving
// to the current status is a no-op, so retiring twice keeps the first
// retirement time. RetiredAt is stamped with at on retirement.
func (r *gormRepository) UpdateOffsetStatus(ctx context.Context, tenantID, id uuid.UUID, to offsets.RetirementStatus, at time.Time) (*offsets.OffsetTransaction, error) {
	var m OffsetTransactionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("offset transaction %s: %w", id, errs.ErrNotFound)
			}
			return err
		}

		changed, err := r.lifecycle.Check(offsets.RetirementStatus(m.Status), to)
		if err != nil || !changed {
			return err
		}

		updates := map[string]interface{}{"status": string(to)}
		if to == offsets.StatusRetired {
			m.RetiredAt = &at
			updates["retired_at"] = at
		}
		m.Status = string(to)
		return tx.Model(&m).Updates(updates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update offset status: %w", err)
	}

	out := m.toDomain()
	return &out, nil
}

func (r *gormRepository) ListOffsetTransactions(ctx context.Context, tenantID uuid.UUID, period string) ([]offsets.OffsetTransaction, error) {
	var rows []OffsetTransactionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Scopes(periodScope(period)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list offset transactions: %w", err)
	}

	txs := make([]offsets.OffsetTransaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, rows[i].toDomain())
	}
	return txs, nil
}

func (r *gormRepository) CreateFactorOverride(ctx context.Context, override *factors.Override) error {
	m, err := newFactorOverrideModel(override)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create factor override: %w", err)
	}
	return nil
}

func (r *gormRepository) ListFactorOverrides(ctx context.Context, tenantID uuid.UUID) ([]factors.Override, error) {
	var rows []FactorOverrideModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("valid_from ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list factor overrides: %w", err)
	}

	out := make([]factors.Override, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *gormRepository) CreateTarget(ctx context.Context, target *targets.CarbonTarget) error {
	m, err := newCarbonTargetModel(target)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create carbon target: %w", err)
	}
	target.ID = m.ID
	return nil
}

func (r *gormRepository) GetTarget(ctx context.Context, tenantID, id uuid.UUID) (*targets.CarbonTarget, error) {
	var m CarbonTargetModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("carbon target %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get carbon target: %w", err)
	}
	t, err := m.toDomain()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveSnapshot upserts a snapshot. The stale flag is cleared unless the
// snapshot was marked stale after snap.ComputedAt.
func (r *gormRepository) SaveSnapshot(ctx context.Context, snap *offsets.PeriodSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	computedAt := snap.ComputedAt

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing NetEmissionSnapshotModel
		err := forUpdate(tx).
			Where("tenant_id = ? AND period = ?", snap.TenantID, snap.Period).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&NetEmissionSnapshotModel{
				TenantID:   snap.TenantID,
				Period:     snap.Period,
				Payload:    datatypes.JSON(payload),
				ComputedAt: &computedAt,
				ValidUntil: snap.ValidUntil,
			}).Error
		}
		if err != nil {
			return err
		}

		stale := existing.StaleAt != nil && existing.StaleAt.After(computedAt)
		return tx.Model(&existing).Updates(map[string]interface{}{
			"payload":     datatypes.JSON(payload),
			"is_stale":    stale,
			"computed_at": computedAt,
			"valid_until": snap.ValidUntil,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the stored snapshot, or ErrNotFound when none exists
// or the stored one is stale.
func (r *gormRepository) GetSnapshot(ctx context.Context, tenantID uuid.UUID, period string) (*offsets.PeriodSnapshot, error) {
	var m NetEmissionSnapshotModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND period = ?", tenantID, period).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("snapshot %s/%s: %w", tenantID, period, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if m.IsStale || len(m.Payload) == 0 {
		return nil, fmt.Errorf("snapshot %s/%s is stale: %w", tenantID, period, errs.ErrNotFound)
	}

	var snap offsets.PeriodSnapshot
	if err := json.Unmarshal(m.Payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *gormRepository) MarkSnapshotStale(ctx context.Context, tenantID uuid.UUID, period string, at time.Time) error {
	m := &NetEmissionSnapshotModel{
		TenantID: tenantID,
		Period:   period,
		IsStale:  true,
		StaleAt:  &at,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_stale": true,
			"stale_at": at,
		}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to mark snapshot stale: %w", err)
	}
	return nil
}

// MarkTenantSnapshotsStale flags every stored snapshot of a tenant
func (r *gormRepository) MarkTenantSnapshotsStale(ctx context.Context, tenantID uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&NetEmissionSnapshotModel{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]interface{}{
			"is_stale": true,
			"stale_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark tenant snapshots stale: %w", err)
	}
	return nil
}

// ListStaleSnapshots lists snapshots flagged stale or whose override
// boundary has passed at now
func (r *gormRepository) ListStaleSnapshots(ctx context.Context, now time.Time, limit int) ([]SnapshotRef, error) {
	var rows []NetEmissionSnapshotModel
	err := r.db.WithContext(ctx).
		Where("is_stale = ? OR (valid_until IS NOT NULL AND valid_until <= ?)", true, now).
		Order("stale_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale snapshots: %w", err)
	}

	refs := make([]SnapshotRef, 0, len(rows))
	for _, m := range rows {
		refs = append(refs, SnapshotRef{TenantID: m.TenantID, Period: m.Period})
	}
	return refs, nil
}

// forUpdate locks the selected rows on databases that support it
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
