package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphapilot/internal/admission"
	"alphapilot/internal/config"
	"alphapilot/internal/dataset"
	"alphapilot/internal/guard"
	"alphapilot/internal/ledger"
	"alphapilot/internal/mlmodel"
	"alphapilot/internal/notifier"
	"alphapilot/internal/policy"
	"alphapilot/internal/repository"
	"alphapilot/internal/risk"
)

// DecisionService runs the periodic signal evaluation cycle: pull the latest
// bars, score them with the active model, push admitted buys through the
// guard and pre-trade risk checks into the execution engine.
type DecisionService struct {
	Market   config.MarketConfig
	Repo     repository.Repository
	Provider dataset.Provider
	Pipeline *admission.Pipeline
	Engine   *ledger.Engine
	Policy   *policy.Loader
	Guard    *guard.Store
	Notifier notifier.Sink
	Logger   *zap.Logger
}

func (s *DecisionService) key() repository.ModelKey {
	return repository.ModelKey{
		Exchange:    s.Market.Exchange,
		Instrument:  s.Market.Instrument,
		Timeframe:   s.Market.Timeframe,
		HorizonBars: s.Market.HorizonBars,
	}
}

// RunCycle performs one full evaluation. Skips (no active model, guard
// blocked, risk rejection, zero sizing) are normal outcomes logged and
// swallowed; data unavailability and feature mismatches surface as errors.
func (s *DecisionService) RunCycle(ctx context.Context) error {
	pol, err := s.Policy.Load()
	if err != nil {
		return err
	}

	lookback := lookbackBars(pol)
	frame, err := s.Provider.Recent(ctx, lookback)
	if err != nil {
		return err
	}

	art, runID, err := s.loadActiveArtifact(ctx)
	if err != nil {
		return err
	}
	if art == nil {
		s.Logger.Warn("no active model for key, cycle skipped",
			zap.String("instrument", s.Market.Instrument),
			zap.String("timeframe", s.Market.Timeframe),
		)
		return nil
	}

	dec, err := s.Pipeline.Evaluate(ctx, pol, art, frame, runID)
	if err != nil {
		return err
	}
	if !dec.Created {
		// Bar already decided by a previous run.
		return nil
	}

	if s.Notifier != nil {
		_ = s.Notifier.Notify(ctx, notifier.Event{
			Kind:       notifier.KindSignalDecided,
			Exchange:   s.Market.Exchange,
			Instrument: s.Market.Instrument,
			Message:    "signal decided",
			Fields: map[string]any{
				"signal":      dec.Signal,
				"probability": dec.Probability,
				"threshold":   dec.Threshold,
				"reasons":     dec.Reasons,
				"bar_time":    dec.BarTime,
			},
			At: time.Now().UTC(),
		})
	}

	if dec.Signal != admission.SignalBuy {
		return nil
	}

	if err := s.Guard.Allows(guard.ActionOpen); err != nil {
		var blocked *guard.BlockedError
		if errors.As(err, &blocked) {
			s.Logger.Warn("buy blocked by trade guard", zap.String("mode", string(blocked.Mode)))
			return nil
		}
		return err
	}

	price := decimal.NewFromFloat(dec.Close)
	val, err := s.Engine.MarkToMarket(s.markLookup(price))
	if err != nil {
		return err
	}
	snap, err := s.Engine.Store.Snapshot()
	if err != nil {
		return err
	}
	if ok, reason := risk.CanOpen(pol, val, len(snap.OpenPositions())); !ok {
		s.Logger.Info("buy rejected by pre-trade risk check",
			zap.String("reason", reason),
			zap.String("equity", val.Equity.String()),
			zap.String("positions_value", val.PositionsValue.String()),
		)
		return nil
	}

	res, err := s.Engine.OpenOrAdd(ctx, ledger.OpenRequest{
		Exchange:      s.Market.Exchange,
		Instrument:    s.Market.Instrument,
		Price:         price,
		Timestamp:     dec.BarTime,
		Regime:        dec.Regime,
		Margin:        dec.Margin,
		SignalEventID: &dec.Event.ID,
		Note:          "signal_buy",
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCapital) {
			s.Logger.Warn("open skipped, insufficient capital")
			return nil
		}
		return err
	}
	if res.Skipped {
		s.Logger.Info("open skipped by sizing", zap.String("reason", res.SkipReason))
	}
	return nil
}

func (s *DecisionService) loadActiveArtifact(ctx context.Context) (*mlmodel.Artifact, *uint64, error) {
	active, err := s.Repo.GetActiveModel(ctx, s.key())
	if err != nil {
		return nil, nil, err
	}
	if active == nil {
		return nil, nil, nil
	}
	run, err := s.Repo.GetModelRunByID(ctx, active.ModelRunID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, nil
	}
	art, err := mlmodel.LoadArtifact(run.ArtifactPath)
	if err != nil {
		return nil, nil, err
	}
	id := run.ID
	return art, &id, nil
}

// markLookup marks the configured instrument at the given price; other
// instruments fall back to their entry price.
func (s *DecisionService) markLookup(price decimal.Decimal) ledger.PriceLookup {
	return func(exchange, instrument string) (decimal.Decimal, bool) {
		if exchange == s.Market.Exchange && instrument == s.Market.Instrument {
			return price, true
		}
		return decimal.Zero, false
	}
}

// lookbackBars is how much history the admission filters need, with slack
// for the ATR's previous-close term.
func lookbackBars(pol policy.RiskPolicy) int {
	n := pol.ATRPeriod + 2
	if v := pol.VolumePeriod + 2; v > n {
		n = v
	}
	if v := pol.TrendSlowPeriod + 1; v > n {
		n = v
	}
	if n < 64 {
		n = 64
	}
	return n
}
