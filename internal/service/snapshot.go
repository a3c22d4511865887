package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphapilot/internal/config"
	"alphapilot/internal/dataset"
	"alphapilot/internal/ledger"
	"alphapilot/internal/models"
	"alphapilot/internal/repository"
)

// SnapshotService appends one mark-to-market equity sample per run.
type SnapshotService struct {
	Market   config.MarketConfig
	Repo     repository.Repository
	Provider dataset.Provider
	Engine   *ledger.Engine
	Logger   *zap.Logger
}

func (s *SnapshotService) RunOnce(ctx context.Context) error {
	var lookup ledger.PriceLookup
	frame, err := s.Provider.Recent(ctx, 2)
	if err == nil {
		if close, verr := frame.Value(dataset.ColClose, frame.Len()-1); verr == nil {
			price := decimal.NewFromFloat(close)
			lookup = func(exchange, instrument string) (decimal.Decimal, bool) {
				if exchange == s.Market.Exchange && instrument == s.Market.Instrument {
					return price, true
				}
				return decimal.Zero, false
			}
		}
	}

	val, err := s.Engine.MarkToMarket(lookup)
	if err != nil {
		return err
	}
	snap := &models.EquitySnapshot{
		SnapshotAt:     time.Now().UTC().Truncate(time.Minute),
		Cash:           val.Cash,
		PositionsValue: val.PositionsValue,
		Equity:         val.Equity,
	}
	if err := s.Repo.InsertEquitySnapshot(ctx, snap); err != nil {
		return err
	}
	s.Logger.Info("equity snapshot recorded",
		zap.String("equity", val.Equity.String()),
		zap.String("cash", val.Cash.String()),
	)
	return nil
}
