// Package app wires configuration, storage and the accounting service for
// the long-running binaries.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/accounting"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/config"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/database"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/ledger"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/metrics"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
)

// App holds the shared runtime components
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Metrics *metrics.Metrics
	Cache   *offsets.SnapshotCache
	Service *accounting.Service
}

// NewLogger builds a development logger for "debug" and a production
// logger at the given level otherwise
func NewLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

// LoadCatalog returns the configured factor catalog, or the embedded one
func LoadCatalog(path string) (*factors.StaticCatalog, error) {
	if path == "" {
		return factors.DefaultCatalog()
	}
	return factors.LoadCatalogFile(path)
}

// New opens the database and builds the accounting service
func New(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	catalog, err := LoadCatalog(cfg.Accounting.FactorCatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Emission factor catalog loaded",
		zap.String("version", catalog.Version()),
		zap.Int("factors", catalog.Len()))

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics(reg)
	c := clock.SystemClock{}
	cache := offsets.NewSnapshotCache(cfg.Accounting.SnapshotCacheTTL.Std(), c)
	service := accounting.NewService(
		ledger.NewRepository(db),
		catalog,
		cache,
		m,
		c,
		logger,
		cfg.Accounting.RefreshWorkers,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Metrics: m,
		Cache:   cache,
		Service: service,
	}, nil
}

// Close stops the cache sweeper and releases the database
func (a *App) Close() {
	a.Cache.Stop()
	if err := database.Close(a.DB); err != nil {
		a.Logger.Warn("Failed to close database", zap.Error(err))
	}
}
