package promotion

import (
	"context"
	"time"

	"alphapilot/internal/models"
	"alphapilot/internal/repository"
)

// stubRepo is a test-only in-memory repository. Only the model-run and
// active-model methods are exercised by promotion tests.
type stubRepo struct {
	runs   map[uint64]*models.ModelRun
	latest *models.ModelRun
	active *models.ActiveModel

	setCalls []uint64
}

func (s *stubRepo) CreateSignalEventIfAbsent(ctx context.Context, item *models.SignalEvent) (bool, error) {
	return false, nil
}

func (s *stubRepo) GetSignalEventByBar(ctx context.Context, key repository.ModelKey, barTime time.Time) (*models.SignalEvent, error) {
	return nil, nil
}

func (s *stubRepo) ListRecentSignalEvents(ctx context.Context, limit int) ([]models.SignalEvent, error) {
	return nil, nil
}

func (s *stubRepo) LastBuyEvent(ctx context.Context, key repository.ModelKey) (*models.SignalEvent, error) {
	return nil, nil
}

func (s *stubRepo) ListUnresolvedSignalEvents(ctx context.Context, before time.Time, limit int) ([]models.SignalEvent, error) {
	return nil, nil
}

func (s *stubRepo) InsertSignalOutcomeIfAbsent(ctx context.Context, item *models.SignalOutcome) error {
	return nil
}

func (s *stubRepo) ListSignalOutcomes(ctx context.Context, limit int) ([]models.SignalOutcome, error) {
	return nil, nil
}

func (s *stubRepo) InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error {
	return nil
}

func (s *stubRepo) ListEquitySnapshots(ctx context.Context, limit int) ([]models.EquitySnapshot, error) {
	return nil, nil
}

func (s *stubRepo) InsertModelRun(ctx context.Context, item *models.ModelRun) error { return nil }

func (s *stubRepo) GetModelRunByID(ctx context.Context, id uint64) (*models.ModelRun, error) {
	return s.runs[id], nil
}

func (s *stubRepo) LatestModelRun(ctx context.Context, key repository.ModelKey) (*models.ModelRun, error) {
	return s.latest, nil
}

func (s *stubRepo) GetActiveModel(ctx context.Context, key repository.ModelKey) (*models.ActiveModel, error) {
	return s.active, nil
}

func (s *stubRepo) SetActiveModel(ctx context.Context, key repository.ModelKey, modelRunID uint64) error {
	s.setCalls = append(s.setCalls, modelRunID)
	s.active = &models.ActiveModel{
		Exchange:    key.Exchange,
		Instrument:  key.Instrument,
		Timeframe:   key.Timeframe,
		HorizonBars: key.HorizonBars,
		ModelRunID:  modelRunID,
	}
	return nil
}

func (s *stubRepo) InsertWalkForwardRun(ctx context.Context, item *models.WalkForwardRun) error {
	return nil
}

func (s *stubRepo) ListWalkForwardRuns(ctx context.Context, limit int) ([]models.WalkForwardRun, error) {
	return nil, nil
}
