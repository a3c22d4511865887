package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/config"
	"alphapilot/internal/dataset"
	"alphapilot/internal/market"
	"alphapilot/internal/models"
	"alphapilot/internal/repository"
)

const outcomeBatchSize = 200

// OutcomeService resolves signal events whose horizon has fully elapsed:
// it replays the horizon bars to compute the realized return and the
// path-minimum drawdown.
type OutcomeService struct {
	Market   config.MarketConfig
	Repo     repository.Repository
	Provider dataset.Provider
	Logger   *zap.Logger
}

func (s *OutcomeService) ResolveOnce(ctx context.Context) error {
	barDur, err := market.TimeframeDuration(s.Market.Timeframe)
	if err != nil {
		return err
	}
	horizon := time.Duration(s.Market.HorizonBars) * barDur

	now := time.Now().UTC()
	events, err := s.Repo.ListUnresolvedSignalEvents(ctx, now.Add(-horizon), outcomeBatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	frame, err := s.Provider.History(ctx)
	if err != nil {
		return err
	}
	lows, err := frame.Column(dataset.ColLow)
	if err != nil {
		return err
	}
	closes, err := frame.Column(dataset.ColClose)
	if err != nil {
		return err
	}

	resolved := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := frame.IndexOf(ev.BarTime)
		if idx < 0 || idx+ev.HorizonBars >= frame.Len() {
			continue
		}
		entry := ev.ClosePrice
		if entry <= 0 {
			continue
		}
		exit := closes[idx+ev.HorizonBars]

		minDD := 0.0
		for i := idx + 1; i <= idx+ev.HorizonBars; i++ {
			if dd := lows[i]/entry - 1; dd < minDD {
				minDD = dd
			}
		}

		outcome := &models.SignalOutcome{
			SignalEventID:  ev.ID,
			EntryPrice:     entry,
			ExitPrice:      exit,
			RealizedReturn: exit/entry - 1,
			MinDrawdown:    minDD,
			ResolvedAt:     now,
		}
		if err := s.Repo.InsertSignalOutcomeIfAbsent(ctx, outcome); err != nil {
			return err
		}
		resolved++
	}
	if resolved > 0 {
		s.Logger.Info("signal outcomes resolved", zap.Int("count", resolved))
	}
	return nil
}
