package offsets

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleRefresher rebuilds snapshots whose inputs changed
type StaleRefresher interface {
	// RefreshStale rebuilds up to limit stale snapshots and returns how many were rebuilt
	RefreshStale(ctx context.Context, limit int) (int, error)
}

// RefresherConfig configuration for the snapshot refresher
type RefresherConfig struct {
	// Schedule is a cron spec with a seconds field
	Schedule  string `json:"schedule"`
	BatchSize int    `json:"batch_size"`
}

// DefaultRefresherConfig returns default configuration
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Schedule:  "0 */5 * * * *",
		BatchSize: 50,
	}
}

// SnapshotRefresher periodically rebuilds stale period snapshots
type SnapshotRefresher struct {
	cron    *cron.Cron
	entry   cron.EntryID
	target  StaleRefresher
	logger  *zap.Logger
	config  RefresherConfig
	mu      sync.Mutex
	running bool
}

// NewSnapshotRefresher creates a new refresher
func NewSnapshotRefresher(target StaleRefresher, logger *zap.Logger, config RefresherConfig) *SnapshotRefresher {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRefresherConfig().BatchSize
	}
	if config.Schedule == "" {
		config.Schedule = DefaultRefresherConfig().Schedule
	}
	return &SnapshotRefresher{
		cron:   cron.New(cron.WithSeconds()),
		target: target,
		logger: logger,
		config: config,
	}
}

// Start registers the cron job and starts the scheduler
func (r *SnapshotRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("snapshot refresher already running")
	}

	entry, err := r.cron.AddFunc(r.config.Schedule, func() {
		r.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.config.Schedule, err)
	}
	r.entry = entry
	r.running = true

	r.logger.Info("Starting snapshot refresher",
		zap.String("schedule", r.config.Schedule),
		zap.Int("batch_size", r.config.BatchSize))

	r.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (r *SnapshotRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.logger.Info("Stopping snapshot refresher")

	ctx := r.cron.Stop()
	<-ctx.Done()
	r.cron.Remove(r.entry)

	r.running = false
}

// RunOnce performs a single refresh pass
func (r *SnapshotRefresher) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	n, err := r.target.RefreshStale(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("Failed to refresh stale snapshots", zap.Error(err), zap.Int("refreshed", n))
		return n
	}
	if n > 0 {
		r.logger.Info("Refreshed stale snapshots", zap.Int("count", n))
	}
	return n
}
