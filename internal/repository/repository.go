package repository

import (
	"context"
	"time"

	"alphapilot/internal/models"
)

// ModelKey identifies the market a trained model serves.
type ModelKey struct {
	Exchange    string
	Instrument  string
	Timeframe   string
	HorizonBars int
}

// Repository is the research store behind the engine: signal events and
// outcomes, equity snapshots, model runs and the champion pointer. The
// simulated ledger itself is not here; it lives in its own file-backed store.
type Repository interface {
	// Signal events. CreateSignalEventIfAbsent is the idempotency hinge:
	// inserting an already-evaluated bar is a no-op that reports created=false
	// and loads the stored row into item.
	CreateSignalEventIfAbsent(ctx context.Context, item *models.SignalEvent) (created bool, err error)
	GetSignalEventByBar(ctx context.Context, key ModelKey, barTime time.Time) (*models.SignalEvent, error)
	ListRecentSignalEvents(ctx context.Context, limit int) ([]models.SignalEvent, error)
	LastBuyEvent(ctx context.Context, key ModelKey) (*models.SignalEvent, error)
	ListUnresolvedSignalEvents(ctx context.Context, before time.Time, limit int) ([]models.SignalEvent, error)

	// Outcomes (one per event, created once).
	InsertSignalOutcomeIfAbsent(ctx context.Context, item *models.SignalOutcome) error
	ListSignalOutcomes(ctx context.Context, limit int) ([]models.SignalOutcome, error)

	// Equity snapshots.
	InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error
	ListEquitySnapshots(ctx context.Context, limit int) ([]models.EquitySnapshot, error)

	// Model runs and the active-model pointer.
	InsertModelRun(ctx context.Context, item *models.ModelRun) error
	GetModelRunByID(ctx context.Context, id uint64) (*models.ModelRun, error)
	LatestModelRun(ctx context.Context, key ModelKey) (*models.ModelRun, error)
	GetActiveModel(ctx context.Context, key ModelKey) (*models.ActiveModel, error)
	SetActiveModel(ctx context.Context, key ModelKey, modelRunID uint64) error

	// Walk-forward archives.
	InsertWalkForwardRun(ctx context.Context, item *models.WalkForwardRun) error
	ListWalkForwardRuns(ctx context.Context, limit int) ([]models.WalkForwardRun, error)
}
