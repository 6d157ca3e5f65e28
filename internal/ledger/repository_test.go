package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/targets"
)

func setupTestRepository(t *testing.T) Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(AllModels()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewRepository(db)
}

func activity(tenant uuid.UUID, period string, qty float64) *emissions.ActivityRecord {
	return &emissions.ActivityRecord{
		TenantID:     tenant,
		Scope:        emissions.Scope1,
		Category:     emissions.CategoryStationary,
		ActivityType: "natural_gas",
		Quantity:     qty,
		Unit:         "m3",
		Period:       period,
		Options:      emissions.RecordOptions{DataQuality: emissions.TierMeasured, Location: "plant-a"},
	}
}

func TestActivityRecordsRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()

	rec := activity(tenant, "2024-Q1", 50000)
	require.NoError(t, repo.CreateActivityRecord(ctx, rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)

	got, err := repo.ListActivityRecords(ctx, tenant, "2024-Q1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, emissions.TierMeasured, got[0].Tier())
	assert.Equal(t, "plant-a", got[0].Options.Location)
	assert.Equal(t, 50000.0, got[0].Quantity)
}

func TestListActivityRecordsByPeriod(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()

	for _, p := range []string{"2024", "2024-Q1", "2024-Q3", "2023-Q4", "2025"} {
		require.NoError(t, repo.CreateActivityRecord(ctx, activity(tenant, p, 1)))
	}
	require.NoError(t, repo.CreateActivityRecord(ctx, activity(uuid.New(), "2024", 1)))

	year, err := repo.ListActivityRecords(ctx, tenant, "2024")
	require.NoError(t, err)
	assert.Len(t, year, 3)

	quarter, err := repo.ListActivityRecords(ctx, tenant, "2024-Q3")
	require.NoError(t, err)
	require.Len(t, quarter, 1)
	assert.Equal(t, "2024-Q3", quarter[0].Period)

	none, err := repo.ListActivityRecords(ctx, tenant, "2022")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateOffsetStatusRetire(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tx := &offsets.OffsetTransaction{
		TenantID:       tenant,
		Quantity:       30,
		AllocatedScope: offsets.AllocatedScope12,
		Period:         "2024",
		Status:         offsets.StatusPending,
		Registry:       "verra",
		SerialNumber:   "VCS-1-2024",
	}
	require.NoError(t, repo.CreateOffsetTransaction(ctx, tx))

	retired, err := repo.UpdateOffsetStatus(ctx, tenant, tx.ID, offsets.StatusRetired, at)
	require.NoError(t, err)
	assert.True(t, retired.Retired())
	require.NotNil(t, retired.RetiredAt)
	assert.True(t, at.Equal(*retired.RetiredAt))

	again, err := repo.UpdateOffsetStatus(ctx, tenant, tx.ID, offsets.StatusRetired, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, at.Equal(*again.RetiredAt))

	list, err := repo.ListOffsetTransactions(ctx, tenant, "2024")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, offsets.StatusRetired, list[0].Status)
	assert.Equal(t, "VCS-1-2024", list[0].SerialNumber)
}

func TestUpdateOffsetStatusErrors(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := repo.UpdateOffsetStatus(ctx, tenant, uuid.New(), offsets.StatusRetired, time.Now())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	cancelled := &offsets.OffsetTransaction{
		TenantID:       tenant,
		Quantity:       5,
		AllocatedScope: offsets.AllocatedScope1,
		Period:         "2024",
		Status:         offsets.StatusCancelled,
	}
	require.NoError(t, repo.CreateOffsetTransaction(ctx, cancelled))

	_, err = repo.UpdateOffsetStatus(ctx, tenant, cancelled.ID, offsets.StatusRetired, time.Now())
	assert.True(t, errs.IsInvalidInput(err))

	_, err = repo.UpdateOffsetStatus(ctx, uuid.New(), cancelled.ID, offsets.StatusRetired, time.Now())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateOffsetStatusCancel(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()

	tx := &offsets.OffsetTransaction{
		TenantID:       tenant,
		Quantity:       12,
		AllocatedScope: offsets.AllocatedScope3,
		Period:         "2024-Q2",
		Status:         offsets.StatusPending,
	}
	require.NoError(t, repo.CreateOffsetTransaction(ctx, tx))

	cancelled, err := repo.UpdateOffsetStatus(ctx, tenant, tx.ID, offsets.StatusCancelled, time.Now())
	require.NoError(t, err)
	assert.Equal(t, offsets.StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.RetiredAt)

	_, err = repo.UpdateOffsetStatus(ctx, tenant, tx.ID, offsets.StatusPending, time.Now())
	assert.True(t, errs.IsInvalidInput(err))
}

func TestFactorOverridesRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()
	until := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	o := &factors.Override{
		TenantID: tenant,
		Factor: factors.EmissionFactor{
			ID:           "tenant-grid",
			Scope:        emissions.Scope2,
			Category:     "electricity",
			ActivityType: "grid",
			Label:        "Purchased Electricity",
			Unit:         "kWh",
			FactorDirect: factors.Float(0.21),
			Source:       "supplier contract 2024",
		},
		ValidFrom:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil: &until,
	}
	require.NoError(t, repo.CreateFactorOverride(ctx, o))

	got, err := repo.ListFactorOverrides(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.21, got[0].Factor.Direct())
	assert.Equal(t, o.Factor.Key(), got[0].Factor.Key())
	require.NotNil(t, got[0].ValidUntil)
	assert.True(t, until.Equal(*got[0].ValidUntil))

	other, err := repo.ListFactorOverrides(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTargetsRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()

	target := &targets.CarbonTarget{
		TenantID:      tenant,
		BaselineYear:  2020,
		BaselineCO2e:  1000,
		TargetYear:    2030,
		TargetCO2e:    500,
		ScopeCoverage: []emissions.Scope{emissions.Scope1, emissions.Scope2},
	}
	require.NoError(t, repo.CreateTarget(ctx, target))

	got, err := repo.GetTarget(ctx, tenant, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ScopeCoverage, got.ScopeCoverage)
	assert.Equal(t, 500.0, got.TargetCO2e)

	_, err = repo.GetTarget(ctx, uuid.New(), target.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSnapshotLifecycle(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.GetSnapshot(ctx, tenant, "2024")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	snap := &offsets.PeriodSnapshot{
		TenantID: tenant,
		Period:   "2024",
		Snapshot: offsets.NetEmissionSnapshot{
			Gross: emissions.ScopeTotals{Scope1: 60, Scope2: 40, Total: 100},
			Net:   emissions.ScopeTotals{Scope1: 60, Scope2: 40, Total: 100},
		},
		Breakdown:  map[string]float64{"Stationary Combustion": 60},
		ComputedAt: t0,
	}
	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	got, err := repo.GetSnapshot(ctx, tenant, "2024")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Snapshot.Gross.Total)
	assert.Equal(t, 60.0, got.Breakdown["Stationary Combustion"])

	require.NoError(t, repo.MarkSnapshotStale(ctx, tenant, "2024", t0.Add(time.Minute)))
	_, err = repo.GetSnapshot(ctx, tenant, "2024")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	stale, err := repo.ListStaleSnapshots(ctx, t0, 10)
	require.NoError(t, err)
	assert.Equal(t, []SnapshotRef{{TenantID: tenant, Period: "2024"}}, stale)

	// a rebuild that started before the invalidation stays stale
	snap.ComputedAt = t0.Add(30 * time.Second)
	require.NoError(t, repo.SaveSnapshot(ctx, snap))
	_, err = repo.GetSnapshot(ctx, tenant, "2024")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	snap.ComputedAt = t0.Add(2 * time.Minute)
	require.NoError(t, repo.SaveSnapshot(ctx, snap))
	_, err = repo.GetSnapshot(ctx, tenant, "2024")
	require.NoError(t, err)

	stale, err = repo.ListStaleSnapshots(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestListStaleSnapshotsIncludesPassedOverrideBoundary(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	boundary := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveSnapshot(ctx, &offsets.PeriodSnapshot{
		TenantID: tenant, Period: "2024", ComputedAt: t0, ValidUntil: &boundary,
	}))
	require.NoError(t, repo.SaveSnapshot(ctx, &offsets.PeriodSnapshot{
		TenantID: tenant, Period: "2024-Q2", ComputedAt: t0,
	}))

	got, err := repo.GetSnapshot(ctx, tenant, "2024")
	require.NoError(t, err)
	require.NotNil(t, got.ValidUntil)
	assert.True(t, boundary.Equal(*got.ValidUntil))

	stale, err := repo.ListStaleSnapshots(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = repo.ListStaleSnapshots(ctx, boundary, 10)
	require.NoError(t, err)
	assert.Equal(t, []SnapshotRef{{TenantID: tenant, Period: "2024"}}, stale)

	// a rebuild without a boundary clears it
	require.NoError(t, repo.SaveSnapshot(ctx, &offsets.PeriodSnapshot{
		TenantID: tenant, Period: "2024", ComputedAt: boundary,
	}))
	stale, err = repo.ListStaleSnapshots(ctx, boundary.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestMarkSnapshotStaleCreatesPlaceholder(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant := uuid.New()
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.MarkSnapshotStale(ctx, tenant, "2024-Q2", at))
	require.NoError(t, repo.MarkSnapshotStale(ctx, tenant, "2024-Q2", at.Add(time.Second)))

	stale, err := repo.ListStaleSnapshots(ctx, at, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "2024-Q2", stale[0].Period)
}

func TestMarkTenantSnapshotsStale(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenant, other := uuid.New(), uuid.New()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, ref := range []SnapshotRef{{tenant, "2024"}, {tenant, "2024-Q1"}, {other, "2024"}} {
		require.NoError(t, repo.SaveSnapshot(ctx, &offsets.PeriodSnapshot{
			TenantID: ref.TenantID, Period: ref.Period, ComputedAt: t0,
		}))
	}

	require.NoError(t, repo.MarkTenantSnapshotsStale(ctx, tenant, t0.Add(time.Minute)))

	stale, err := repo.ListStaleSnapshots(ctx, t0, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	_, err = repo.GetSnapshot(ctx, other, "2024")
	assert.NoError(t, err)
}
