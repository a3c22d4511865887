package admission

import (
	"context"
	"time"

	"alphapilot/internal/models"
	"alphapilot/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Only the signal-event methods matter for pipeline tests.
type stubRepo struct {
	events  []models.SignalEvent
	lastBuy *models.SignalEvent
	nextID  uint64
}

func (s *stubRepo) CreateSignalEventIfAbsent(ctx context.Context, item *models.SignalEvent) (bool, error) {
	for i := range s.events {
		e := &s.events[i]
		if e.Exchange == item.Exchange && e.Instrument == item.Instrument &&
			e.Timeframe == item.Timeframe && e.BarTime.Equal(item.BarTime) {
			*item = *e
			return false, nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	item.CreatedAt = time.Now().UTC()
	s.events = append(s.events, *item)
	return true, nil
}

func (s *stubRepo) GetSignalEventByBar(ctx context.Context, key repository.ModelKey, barTime time.Time) (*models.SignalEvent, error) {
	for i := range s.events {
		if s.events[i].BarTime.Equal(barTime) {
			e := s.events[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListRecentSignalEvents(ctx context.Context, limit int) ([]models.SignalEvent, error) {
	return s.events, nil
}

func (s *stubRepo) LastBuyEvent(ctx context.Context, key repository.ModelKey) (*models.SignalEvent, error) {
	return s.lastBuy, nil
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
	return nil, nil
}

func (s *stubRepo) LatestModelRun(ctx context.Context, key repository.ModelKey) (*models.ModelRun, error) {
	return nil, nil
}

func (s *stubRepo) GetActiveModel(ctx context.Context, key repository.ModelKey) (*models.ActiveModel, error) {
	return nil, nil
}

func (s *stubRepo) SetActiveModel(ctx context.Context, key repository.ModelKey, modelRunID uint64) error {
	return nil
}

func (s *stubRepo) InsertWalkForwardRun(ctx context.Context, item *models.WalkForwardRun) error {
	return nil
}

func (s *stubRepo) ListWalkForwardRuns(ctx context.Context, limit int) ([]models.WalkForwardRun, error) {
	return nil, nil
}
