// Package accounting ties the calculation, netting and planning engines to
// tenant data held in the ledger.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/calculation"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/ledger"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/metrics"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets/planner"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/targets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/uncertainty"
)

// Service provides the tenant-facing accounting workflow
type Service struct {
	repo           ledger.Repository
	catalog        *factors.StaticCatalog
	netting        *offsets.NettingEngine
	planner        *planner.Planner
	cache          *offsets.SnapshotCache
	metrics        *metrics.Metrics
	clock          clock.Clock
	logger         *zap.Logger
	refreshWorkers int
}

// NewService creates a new accounting service.
// refreshWorkers bounds concurrent rebuilds in RefreshStale.
func NewService(
	repo ledger.Repository,
	catalog *factors.StaticCatalog,
	cache *offsets.SnapshotCache,
	m *metrics.Metrics,
	c clock.Clock,
	logger *zap.Logger,
	refreshWorkers int,
) *Service {
	if refreshWorkers <= 0 {
		refreshWorkers = 1
	}
	return &Service{
		repo:           repo,
		catalog:        catalog,
		netting:        offsets.NewNettingEngine(),
		planner:        planner.New(c),
		cache:          cache,
		metrics:        m,
		clock:          c,
		logger:         logger,
		refreshWorkers: refreshWorkers,
	}
}

// Catalog returns the static factor catalog
func (s *Service) Catalog() *factors.StaticCatalog {
	return s.catalog
}

// =====================================================
// Ledger writes
// =====================================================

// RecordActivity validates, computes and stores an activity record, then
// marks the snapshots of its period stale.
func (s *Service) RecordActivity(ctx context.Context, record *emissions.ActivityRecord) (*calculation.Calculation, error) {
	engine, err := s.engineFor(ctx, record.TenantID)
	if err != nil {
		return nil, err
	}

	calc, err := engine.Compute(*record)
	if err != nil {
		if errs.IsInvalidInput(err) {
			s.metrics.InvalidInputs.WithLabelValues("record_activity").Inc()
		}
		return nil, fmt.Errorf("failed to compute activity record: %w", err)
	}
	s.observeCalculation(record.TenantID, calc)

	stored := calc.Record
	if err := s.repo.CreateActivityRecord(ctx, &stored); err != nil {
		return nil, err
	}
	calc.Record = stored
	*record = stored

	if err := s.invalidate(ctx, stored.TenantID, stored.Period); err != nil {
		return nil, err
	}

	s.logger.Info("Activity record stored",
		zap.String("tenant_id", stored.TenantID.String()),
		zap.String("record_id", stored.ID.String()),
		zap.String("period", stored.Period),
		zap.Float64("co2e", calc.Result.CO2e))

	return calc, nil
}

// RecordOffset stores an offset transaction. A retired transaction without
// a retirement time is stamped with the current time.
func (s *Service) RecordOffset(ctx context.Context, tx *offsets.OffsetTransaction) error {
	if tx.Status == "" {
		tx.Status = offsets.StatusPending
	}
	if tx.AllocatedScope != "" {
		bucket, err := offsets.ParseAllocatedScope(string(tx.AllocatedScope))
		if err != nil {
			return s.rejectOffset(err)
		}
		tx.AllocatedScope = bucket
	}
	if tx.Period == "" {
		return s.rejectOffset(errs.Invalid("period", "is required"))
	}
	if err := tx.Validate(); err != nil {
		return s.rejectOffset(err)
	}
	if tx.Retired() && tx.RetiredAt == nil {
		now := s.clock.Now()
		tx.RetiredAt = &now
	}

	if err := s.repo.CreateOffsetTransaction(ctx, tx); err != nil {
		return err
	}
	if err := s.invalidate(ctx, tx.TenantID, tx.Period); err != nil {
		return err
	}

	s.logger.Info("Offset transaction stored",
		zap.String("tenant_id", tx.TenantID.String()),
		zap.String("offset_id", tx.ID.String()),
		zap.String("allocated_scope", string(tx.AllocatedScope)),
		zap.String("status", string(tx.Status)),
		zap.Float64("quantity", tx.Quantity))
	return nil
}

func (s *Service) rejectOffset(err error) error {
	s.metrics.InvalidInputs.WithLabelValues("record_offset").Inc()
	return fmt.Errorf("invalid offset transaction: %w", err)
}

// RetireOffset retires a pending offset transaction. Retiring an already
// retired transaction returns it unchanged.
func (s *Service) RetireOffset(ctx context.Context, tenantID, id uuid.UUID) (*offsets.OffsetTransaction, error) {
	tx, err := s.repo.UpdateOffsetStatus(ctx, tenantID, id, offsets.StatusRetired, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.invalidate(ctx, tenantID, tx.Period); err != nil {
		return nil, err
	}

	s.logger.Info("Offset transaction retired",
		zap.String("tenant_id", tenantID.String()),
		zap.String("offset_id", id.String()))
	return tx, nil
}

// CancelOffset cancels a pending offset transaction. Pending offsets never
// count toward netting, so no snapshot is invalidated.
func (s *Service) CancelOffset(ctx context.Context, tenantID, id uuid.UUID) (*offsets.OffsetTransaction, error) {
	tx, err := s.repo.UpdateOffsetStatus(ctx, tenantID, id, offsets.StatusCancelled, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offset transaction cancelled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("offset_id", id.String()))
	return tx, nil
}

// CreateOverride stores a tenant factor override. Overrides can change any
// period, so every snapshot of the tenant is invalidated.
func (s *Service) CreateOverride(ctx context.Context, override *factors.Override) error {
	if err := override.Validate(); err != nil {
		s.metrics.InvalidInputs.WithLabelValues("create_override").Inc()
		return fmt.Errorf("invalid factor override: %w", err)
	}
	if err := s.repo.CreateFactorOverride(ctx, override); err != nil {
		return err
	}

	s.cache.InvalidateTenant(override.TenantID)
	if err := s.repo.MarkTenantSnapshotsStale(ctx, override.TenantID, s.clock.Now()); err != nil {
		return err
	}

	s.logger.Info("Factor override stored",
		zap.String("tenant_id", override.TenantID.String()),
		zap.String("key", override.Factor.Key().String()),
		zap.Time("valid_from", override.ValidFrom))
	return nil
}

// CreateTarget validates and stores a reduction target
func (s *Service) CreateTarget(ctx context.Context, target *targets.CarbonTarget) error {
	if err := target.Validate(); err != nil {
		s.metrics.InvalidInputs.WithLabelValues("create_target").Inc()
		return fmt.Errorf("invalid carbon target: %w", err)
	}
	return s.repo.CreateTarget(ctx, target)
}

// invalidate drops cached snapshots of period and its enclosing year
func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID, period string) error {
	now := s.clock.Now()
	for _, p := range emissions.EnclosingPeriods(period) {
		s.cache.Invalidate(tenantID, p)
		if err := s.repo.MarkSnapshotStale(ctx, tenantID, p, now); err != nil {
			s.logger.Error("Failed to mark snapshot stale",
				zap.String("tenant_id", tenantID.String()),
				zap.String("period", p),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// =====================================================
// Ledger reads
// =====================================================

// ListActivities returns a tenant's records for period
func (s *Service) ListActivities(ctx context.Context, tenantID uuid.UUID, period string) ([]emissions.ActivityRecord, error) {
	if err := emissions.ValidatePeriod(period); err != nil {
		return nil, err
	}
	return s.repo.ListActivityRecords(ctx, tenantID, period)
}

// ListOffsets returns a tenant's offset transactions for period
func (s *Service) ListOffsets(ctx context.Context, tenantID uuid.UUID, period string) ([]offsets.OffsetTransaction, error) {
	if err := emissions.ValidatePeriod(period); err != nil {
		return nil, err
	}
	return s.repo.ListOffsetTransactions(ctx, tenantID, period)
}

// PeriodSnapshot returns the net emission snapshot of a tenant period.
// It is served from the cache, then from a fresh stored snapshot, and is
// rebuilt from the ledger otherwise. A snapshot whose override boundary
// has passed is not fresh.
func (s *Service) PeriodSnapshot(ctx context.Context, tenantID uuid.UUID, period string) (*offsets.PeriodSnapshot, error) {
	if err := emissions.ValidatePeriod(period); err != nil {
		return nil, err
	}

	// the build is shared with concurrent callers, so one caller's
	// cancellation must not fail the others
	buildCtx := context.WithoutCancel(ctx)
	snap, hit, err := s.cache.GetOrRefresh(tenantID, period, func() (*offsets.PeriodSnapshot, error) {
		stored, err := s.repo.GetSnapshot(buildCtx, tenantID, period)
		if err == nil && !stored.ExpiredAt(s.clock.Now()) {
			return stored, nil
		}
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		return s.rebuild(buildCtx, tenantID, period)
	})
	if hit {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// RefreshStale rebuilds up to limit snapshots flagged stale or past their
// override boundary.
// It implements offsets.StaleRefresher.
func (s *Service) RefreshStale(ctx context.Context, limit int) (int, error) {
	refs, err := s.repo.ListStaleSnapshots(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.refreshWorkers)

	for _, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.cache.Refresh(ref.TenantID, ref.Period, func() (*offsets.PeriodSnapshot, error) {
				return s.rebuild(gctx, ref.TenantID, ref.Period)
			})
			if err != nil {
				failed.Add(1)
				s.logger.Error("Failed to refresh snapshot",
					zap.String("tenant_id", ref.TenantID.String()),
					zap.String("period", ref.Period),
					zap.Error(err))
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(refreshed.Load()), err
	}
	s.metrics.StaleRefreshed.Add(float64(refreshed.Load()))

	if n := failed.Load(); n > 0 {
		return int(refreshed.Load()), fmt.Errorf("%d of %d stale snapshots failed to refresh", n, len(refs))
	}
	return int(refreshed.Load()), nil
}

// rebuild computes a snapshot from the ledger and stores it
func (s *Service) rebuild(ctx context.Context, tenantID uuid.UUID, period string) (snap *offsets.PeriodSnapshot, err error) {
	began := time.Now()
	defer func() { s.metrics.ObserveSnapshot(began, err) }()

	computedAt := s.clock.Now()

	records, err := s.repo.ListActivityRecords(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	engine, validUntil, err := s.tenantEngine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	agg, err := calculation.NewAggregator(engine).Aggregate(records)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s/%s: %w", tenantID, period, err)
	}
	s.observeAggregation(tenantID, agg)

	txs, err := s.repo.ListOffsetTransactions(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	net, err := s.netting.NetEmissions(agg.Totals, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to net %s/%s: %w", tenantID, period, err)
	}
	s.observeNetting(tenantID, period, net)

	snap = &offsets.PeriodSnapshot{
		TenantID:   tenantID,
		Period:     period,
		Snapshot:   net,
		Breakdown:  agg.Breakdown,
		MissCount:  countMisses(agg),
		ComputedAt: computedAt,
		ValidUntil: validUntil,
	}
	if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.Debug("Snapshot rebuilt",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", period),
		zap.Int("records", len(records)),
		zap.Int("offsets", len(txs)),
		zap.Float64("net_total", net.Net.Total))
	return snap, nil
}

// TargetReport is the progress of a stored target in one period
type TargetReport struct {
	Target   targets.CarbonTarget `json:"target"`
	Period   string               `json:"period"`
	Current  float64              `json:"current_co2e"`
	Expected float64              `json:"expected_co2e"`
	Progress targets.Progress     `json:"progress"`
}

// TargetProgress measures a stored target against the gross emissions of
// the covered scopes in period.
func (s *Service) TargetProgress(ctx context.Context, tenantID, targetID uuid.UUID, period string) (*TargetReport, error) {
	year, err := emissions.PeriodYear(period)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetTarget(ctx, tenantID, targetID)
	if err != nil {
		return nil, err
	}
	snap, err := s.PeriodSnapshot(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}

	current := target.CoveredEmissions(snap.Snapshot.Gross)
	return &TargetReport{
		Target:   *target,
		Period:   period,
		Current:  current,
		Expected: target.ExpectedAt(year),
		Progress: target.ProgressFor(current),
	}, nil
}

// AssessPeriod estimates uncertainty bounds for a tenant period
func (s *Service) AssessPeriod(ctx context.Context, tenantID uuid.UUID, period string) (*uncertainty.Report, error) {
	records, err := s.ListActivities(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	agg, err := s.Calculate(ctx, tenantID, records)
	if err != nil {
		return nil, err
	}

	inputs := make([]uncertainty.Input, 0, len(agg.Details))
	for _, d := range agg.Details {
		inputs = append(inputs, uncertainty.Input{
			ID:   d.RecordID.String(),
			CO2e: d.Result.CO2e,
			Tier: d.Tier,
		})
	}
	return s.Assess(inputs)
}

// =====================================================
// Stateless operations
// =====================================================

// Calculate aggregates records without storing them. A non-nil tenantID
// applies that tenant's factor overrides.
func (s *Service) Calculate(ctx context.Context, tenantID uuid.UUID, records []emissions.ActivityRecord) (*calculation.Aggregation, error) {
	engine, err := s.engineFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	agg, err := calculation.NewAggregator(engine).Aggregate(records)
	if err != nil {
		if errs.IsInvalidInput(err) {
			s.metrics.InvalidInputs.WithLabelValues("calculate").Inc()
		}
		return nil, err
	}
	s.observeAggregation(tenantID, agg)
	return agg, nil
}

// Net nets gross totals against offset transactions
func (s *Service) Net(gross emissions.ScopeTotals, txs []offsets.OffsetTransaction) (offsets.NetEmissionSnapshot, error) {
	net, err := s.netting.NetEmissions(gross, txs)
	if err != nil {
		s.metrics.InvalidInputs.WithLabelValues("net").Inc()
		return net, err
	}
	s.observeNetting(uuid.Nil, "", net)
	return net, nil
}

// Assess estimates uncertainty bounds
func (s *Service) Assess(inputs []uncertainty.Input) (*uncertainty.Report, error) {
	report, err := uncertainty.Assess(inputs)
	if err != nil {
		s.metrics.InvalidInputs.WithLabelValues("assess").Inc()
		return nil, err
	}
	return report, nil
}

// Planner returns the offset budget planner
func (s *Service) Planner() *planner.Planner {
	return s.planner
}

// engineFor builds a calculation engine over the tenant's overrides
func (s *Service) engineFor(ctx context.Context, tenantID uuid.UUID) (*calculation.Engine, error) {
	engine, _, err := s.tenantEngine(ctx, tenantID)
	return engine, err
}

// tenantEngine also returns when the tenant's active override set next
// changes, so results computed now can expire at that instant
func (s *Service) tenantEngine(ctx context.Context, tenantID uuid.UUID) (*calculation.Engine, *time.Time, error) {
	if tenantID == uuid.Nil {
		return calculation.NewEngine(s.catalog), nil, nil
	}
	list, err := s.repo.ListFactorOverrides(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := factors.NewOverrideSource(s.clock, list)
	if err != nil {
		return nil, nil, fmt.Errorf("tenant %s overrides: %w", tenantID, err)
	}
	return calculation.NewEngine(s.catalog.ForTenant(overrides)), overrides.NextChange(), nil
}

func (s *Service) observeCalculation(tenantID uuid.UUID, calc *calculation.Calculation) {
	s.metrics.RecordsCalculated.WithLabelValues(string(calc.Record.Scope)).Inc()
	if calc.Miss() {
		s.warnMiss(tenantID, calc.MissKey())
	}
}

func (s *Service) observeAggregation(tenantID uuid.UUID, agg *calculation.Aggregation) {
	for _, d := range agg.Details {
		s.metrics.RecordsCalculated.WithLabelValues(string(d.Scope)).Inc()
	}
	for _, key := range agg.Misses {
		s.warnMiss(tenantID, key)
	}
}

func (s *Service) warnMiss(tenantID uuid.UUID, key factors.Key) {
	s.metrics.FactorMisses.WithLabelValues(string(key.Scope), missCategoryLabel(key.Category)).Inc()
	s.logger.Warn("Emission factor not found",
		zap.String("tenant_id", tenantID.String()),
		zap.String("scope", string(key.Scope)),
		zap.String("category", key.Category),
		zap.String("activity_type", key.ActivityType))
}

func (s *Service) observeNetting(tenantID uuid.UUID, period string, net offsets.NetEmissionSnapshot) {
	if net.UnallocatedOffset <= 0 {
		return
	}
	s.metrics.UnallocatedOffset.Add(net.UnallocatedOffset)
	s.logger.Warn("Combined scope 1+2 offset left unallocated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", period),
		zap.Float64("quantity", net.UnallocatedOffset))
}

// missCategoryLabel keeps the metric's label set bounded
func missCategoryLabel(category string) string {
	c := emissions.Category(category).Normalize()
	if !c.Known() {
		return "other"
	}
	return string(c)
}

func countMisses(agg *calculation.Aggregation) int {
	n := 0
	for _, d := range agg.Details {
		if d.Result.IsUnknown() {
			n++
		}
	}
	return n
}
