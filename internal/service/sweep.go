package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphapilot/internal/config"
	"alphapilot/internal/dataset"
	"alphapilot/internal/ledger"
	"alphapilot/internal/risk"
)

// SweepService runs the periodic risk sweep with the latest close as the
// mark price.
type SweepService struct {
	Market   config.MarketConfig
	Provider dataset.Provider
	Risk     *risk.Manager
	Logger   *zap.Logger
}

func (s *SweepService) RunSweep(ctx context.Context) error {
	frame, err := s.Provider.Recent(ctx, 2)
	if err != nil {
		return err
	}
	close, err := frame.Value(dataset.ColClose, frame.Len()-1)
	if err != nil {
		return err
	}
	price := decimal.NewFromFloat(close)

	lookup := func(exchange, instrument string) (decimal.Decimal, bool) {
		if exchange == s.Market.Exchange && instrument == s.Market.Instrument {
			return price, true
		}
		return decimal.Zero, false
	}

	res, err := s.Risk.SweepOnce(ctx, ledger.PriceLookup(lookup), time.Now().UTC())
	if err != nil {
		return err
	}
	if res.Evaluated > 0 {
		s.Logger.Info("risk sweep finished",
			zap.Int("evaluated", res.Evaluated),
			zap.Int("closed", len(res.Closed)),
		)
	}
	return nil
}
