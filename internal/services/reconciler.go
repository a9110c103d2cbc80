package services

import (
	"context"

	"github.com/irfndi/cryptopulse/internal/database"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SnapshotStore persists latest-state snapshots keyed by coin id.
type SnapshotStore interface {
	UpsertSnapshots(ctx context.Context, snapshots []models.AssetSnapshot) error
}

// CandleStore appends historical candles, tolerating rows that already exist.
type CandleStore interface {
	InsertCandles(ctx context.Context, candles []models.HistoricalCandle) (database.InsertReport, error)
}

// ReconcileReport describes what one batch wrote.
type ReconcileReport struct {
	Snapshots int                   `json:"snapshots"`
	Candles   database.InsertReport `json:"candles"`
}

// Reconciler writes a batch to both stores concurrently.
type Reconciler struct {
	snapshots SnapshotStore
	candles   CandleStore
	logger    *logrus.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(snapshots SnapshotStore, candles CandleStore, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		snapshots: snapshots,
		candles:   candles,
		logger:    logger,
	}
}

// Reconcile upserts snapshots and inserts candles in parallel. It returns once
// both writes finished; the batch counts as reconciled only when both succeed.
func (r *Reconciler) Reconcile(ctx context.Context, snapshots []models.AssetSnapshot, candles []models.HistoricalCandle) (ReconcileReport, error) {
	var (
		g      errgroup.Group
		report ReconcileReport
	)

	g.Go(recoverTask(func() error {
		if err := r.snapshots.UpsertSnapshots(ctx, snapshots); err != nil {
			return err
		}
		report.Snapshots = len(snapshots)
		return nil
	}))

	g.Go(recoverTask(func() error {
		candleReport, err := r.candles.InsertCandles(ctx, candles)
		report.Candles = candleReport
		return err
	}))

	if err := g.Wait(); err != nil {
		return report, err
	}

	r.logger.WithFields(logrus.Fields{
		"snapshots":  report.Snapshots,
		"inserted":   report.Candles.Inserted,
		"duplicates": report.Candles.Duplicates,
	}).Debug("Batch reconciled")

	return report, nil
}
