package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/app"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/config"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single refresh pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := app.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := offsets.NewSnapshotRefresher(a.Service, logger.Named("snapshot-refresher"), offsets.RefresherConfig{
		Schedule:  cfg.Accounting.RefreshSchedule,
		BatchSize: cfg.Accounting.RefreshBatchSize,
	})

	if *once {
		n := refresher.RunOnce(ctx)
		logger.Info("Refresh pass complete", zap.Int("refreshed", n))
		return
	}

	if err := refresher.Start(ctx); err != nil {
		logger.Fatal("Failed to start snapshot refresher", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	cancel()
	refresher.Stop()
	logger.Info("Workers exited")
}
