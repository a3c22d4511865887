package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alphapilot/internal/models"
	"alphapilot/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- signal events ----------------------------------------------------------

func (s *Store) CreateSignalEventIfAbsent(ctx context.Context, item *models.SignalEvent) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "exchange"},
			{Name: "instrument"},
			{Name: "timeframe"},
			{Name: "bar_time"},
		},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	// Conflict: load the stored row so callers always see the persisted event.
	existing, err := s.GetSignalEventByBar(ctx, repository.ModelKey{
		Exchange:   item.Exchange,
		Instrument: item.Instrument,
		Timeframe:  item.Timeframe,
	}, item.BarTime)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*item = *existing
	}
	return false, nil
}

func (s *Store) GetSignalEventByBar(ctx context.Context, key repository.ModelKey, barTime time.Time) (*models.SignalEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SignalEvent
	err := s.db.WithContext(ctx).
		Where("exchange = ? AND instrument = ? AND timeframe = ? AND bar_time = ?",
			key.Exchange, key.Instrument, key.Timeframe, barTime).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRecentSignalEvents(ctx context.Context, limit int) ([]models.SignalEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SignalEvent
	err := s.db.WithContext(ctx).
		Order("bar_time desc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LastBuyEvent(ctx context.Context, key repository.ModelKey) (*models.SignalEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SignalEvent
	err := s.db.WithContext(ctx).
		Where("exchange = ? AND instrument = ? AND timeframe = ? AND signal = ?",
			key.Exchange, key.Instrument, key.Timeframe, "buy").
		Order("bar_time desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListUnresolvedSignalEvents(ctx context.Context, before time.Time, limit int) ([]models.SignalEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SignalEvent
	err := s.db.WithContext(ctx).
		Where("bar_time <= ?", before).
		Where("NOT EXISTS (SELECT 1 FROM signal_outcomes o WHERE o.signal_event_id = signal_events.id)").
		Order("bar_time asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- outcomes ---------------------------------------------------------------

func (s *Store) InsertSignalOutcomeIfAbsent(ctx context.Context, item *models.SignalOutcome) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signal_event_id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ListSignalOutcomes(ctx context.Context, limit int) ([]models.SignalOutcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SignalOutcome
	err := s.db.WithContext(ctx).
		Order("resolved_at desc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- equity snapshots -------------------------------------------------------

func (s *Store) InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_at"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ListEquitySnapshots(ctx context.Context, limit int) ([]models.EquitySnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.EquitySnapshot
	err := s.db.WithContext(ctx).
		Order("snapshot_at desc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- model runs -------------------------------------------------------------

func (s *Store) InsertModelRun(ctx context.Context, item *models.ModelRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetModelRunByID(ctx context.Context, id uint64) (*models.ModelRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelRun
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) LatestModelRun(ctx context.Context, key repository.ModelKey) (*models.ModelRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelRun
	err := s.db.WithContext(ctx).
		Where("exchange = ? AND instrument = ? AND timeframe = ? AND horizon_bars = ?",
			key.Exchange, key.Instrument, key.Timeframe, key.HorizonBars).
		Order("created_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetActiveModel(ctx context.Context, key repository.ModelKey) (*models.ActiveModel, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ActiveModel
	err := s.db.WithContext(ctx).
		Where("exchange = ? AND instrument = ? AND timeframe = ? AND horizon_bars = ?",
			key.Exchange, key.Instrument, key.Timeframe, key.HorizonBars).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetActiveModel swaps the champion pointer in one upsert, so a reader never
// observes a key without a pointer mid-promotion.
func (s *Store) SetActiveModel(ctx context.Context, key repository.ModelKey, modelRunID uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	item := &models.ActiveModel{
		Exchange:    key.Exchange,
		Instrument:  key.Instrument,
		Timeframe:   key.Timeframe,
		HorizonBars: key.HorizonBars,
		ModelRunID:  modelRunID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "exchange"},
			{Name: "instrument"},
			{Name: "timeframe"},
			{Name: "horizon_bars"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"model_run_id", "updated_at"}),
	}).Create(item).Error
}

// --- walk-forward archives --------------------------------------------------

func (s *Store) InsertWalkForwardRun(ctx context.Context, item *models.WalkForwardRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListWalkForwardRuns(ctx context.Context, limit int) ([]models.WalkForwardRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.WalkForwardRun
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
