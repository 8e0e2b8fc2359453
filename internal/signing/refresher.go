package signing

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RefresherConfig tunes the periodic status sweep.
type RefresherConfig struct {
	// Schedule is a cron expression; empty disables the sweep.
	Schedule string
	// Staleness is how old a record's last check must be before the
	// sweep re-queries its provider.
	Staleness time.Duration
	// BatchSize caps records per sweep.
	BatchSize int64
}

// Refresher periodically re-checks non-terminal records against their
// providers so statuses converge without client polling.
type Refresher struct {
	service Service
	repo    Repository
	cfg     RefresherConfig
	cron    *cron.Cron
	logger  *zap.Logger
}

func NewRefresher(service Service, repo Repository, cfg RefresherConfig, logger *zap.Logger) *Refresher {
	if cfg.Staleness <= 0 {
		cfg.Staleness = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Refresher{
		service: service,
		repo:    repo,
		cfg:     cfg,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start registers the sweep and launches the scheduler. No-op when no
// schedule is configured.
func (r *Refresher) Start(ctx context.Context) error {
	if r.cfg.Schedule == "" {
		r.logger.Info("Status refresher disabled, no schedule configured")
		return nil
	}

	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		r.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info("Status refresher started", zap.String("schedule", r.cfg.Schedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep refreshes every stale non-terminal record once. Refresh
// failures on individual documents are logged and skipped so one
// broken provider cannot stall the rest of the batch.
func (r *Refresher) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.cfg.Staleness)
	stale, err := r.repo.ListStale(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("Failed to list stale records", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	// One refresh per (service, document) pair; a document's refresh
	// already updates all of its records.
	type sweepKey struct{ service, documentID string }
	seen := make(map[sweepKey]struct{})
	refreshed := 0

	for _, record := range stale {
		key := sweepKey{service: record.Service, documentID: record.DocumentID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if _, err := r.service.RefreshStatus(ctx, record.Service, record.DocumentID); err != nil {
			r.logger.Warn("Status refresh failed",
				zap.String("service", record.Service),
				zap.String("document_id", record.DocumentID),
				zap.Error(err))
			continue
		}
		refreshed++
	}

	r.logger.Info("Status sweep finished",
		zap.Int("stale", len(stale)),
		zap.Int("refreshed", refreshed))
}
