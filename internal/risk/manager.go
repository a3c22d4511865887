package risk

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphapilot/internal/guard"
	"alphapilot/internal/ledger"
	"alphapilot/internal/notifier"
	"alphapilot/internal/policy"
)

// Exit reasons, also recorded as the closing order's note. At most one fires
// per position per sweep, checked in this fixed order.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitTrailing   = "trailing_stop"
	ExitTooOld     = "position_too_old"
)

// Pre-trade rejection reasons returned by CanOpen.
const (
	RejectMaxExposure      = "max_exposure"
	RejectMaxOpenPositions = "max_open_positions"
)

// EvaluateExit decides whether one open position must close at the given
// price. It is pure: trailing-state changes are returned, never persisted
// here. The returned state is nil when the trailing stop is inactive or has
// just fired.
func EvaluateExit(pol policy.RiskPolicy, pos ledger.Position, price decimal.Decimal, ts *TrailingState, now time.Time) (string, *TrailingState) {
	entry := pos.AvgEntryPrice
	if entry.LessThanOrEqual(decimal.Zero) {
		return "", ts
	}

	if pol.StopLossEnabled && pol.StopLossPct > 0 {
		floor := entry.Mul(decimal.NewFromFloat(1 - pol.StopLossPct))
		if price.LessThanOrEqual(floor) {
			return ExitStopLoss, nil
		}
	}

	if pol.TakeProfitEnabled && pol.TakeProfitPct > 0 {
		ceiling := entry.Mul(decimal.NewFromFloat(1 + pol.TakeProfitPct))
		if price.GreaterThanOrEqual(ceiling) {
			return ExitTakeProfit, nil
		}
	}

	if pol.TrailingEnabled && pol.TrailingStopPct > 0 {
		if ts == nil {
			activation := entry.Mul(decimal.NewFromFloat(1 + pol.TrailingActivationPct))
			if price.GreaterThanOrEqual(activation) {
				ts = &TrailingState{
					Exchange:    pos.Exchange,
					Instrument:  pos.Instrument,
					Peak:        price,
					Trigger:     price.Mul(decimal.NewFromFloat(1 - pol.TrailingStopPct)),
					ActivatedAt: now,
				}
			}
		} else {
			if price.GreaterThan(ts.Peak) {
				next := *ts
				next.Peak = price
				next.Trigger = price.Mul(decimal.NewFromFloat(1 - pol.TrailingStopPct))
				ts = &next
			}
			if price.LessThanOrEqual(ts.Trigger) {
				return ExitTrailing, nil
			}
		}
	}

	if pol.MaxPositionAgeHours > 0 && !pos.OpenedAt.IsZero() {
		age := now.Sub(pos.OpenedAt)
		if age >= time.Duration(pol.MaxPositionAgeHours)*time.Hour {
			return ExitTooOld, nil
		}
	}

	return "", ts
}

// CanOpen runs the pre-trade checks that gate new opens. Both bind only at
// open time; existing positions are never force-reduced by them.
func CanOpen(pol policy.RiskPolicy, val ledger.Valuation, openPositions int) (bool, string) {
	if pol.MaxExposureFraction > 0 && val.Equity.GreaterThan(decimal.Zero) {
		frac, _ := val.PositionsValue.Div(val.Equity).Float64()
		if frac > pol.MaxExposureFraction {
			return false, RejectMaxExposure
		}
	}
	if pol.MaxOpenPositions > 0 && openPositions >= pol.MaxOpenPositions {
		return false, RejectMaxOpenPositions
	}
	return true, ""
}

// ClosedPosition records one exit performed by a sweep.
type ClosedPosition struct {
	Exchange    string          `json:"exchange"`
	Instrument  string          `json:"instrument"`
	Reason      string          `json:"reason"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// SweepResult summarizes one pass over the open positions.
type SweepResult struct {
	Evaluated int              `json:"evaluated"`
	Closed    []ClosedPosition `json:"closed"`
}

// Manager runs the periodic risk sweep over the ledger's open positions.
type Manager struct {
	Engine   *ledger.Engine
	Policy   *policy.Loader
	Trailing *TrailingStore
	Guard    *guard.Store
	Notifier notifier.Sink
	Logger   *zap.Logger
}

// SweepOnce evaluates every open position against the current policy and
// closes the ones that trip an exit rule. Positions without a live price are
// skipped this cycle.
func (m *Manager) SweepOnce(ctx context.Context, prices ledger.PriceLookup, now time.Time) (SweepResult, error) {
	var out SweepResult
	pol, err := m.Policy.Load()
	if err != nil {
		return out, err
	}
	snap, err := m.Engine.Store.Snapshot()
	if err != nil {
		return out, err
	}

	for _, pos := range snap.OpenPositions() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		price, ok := prices(pos.Exchange, pos.Instrument)
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			continue
		}
		out.Evaluated++

		ts, err := m.Trailing.Get(pos.Exchange, pos.Instrument)
		if err != nil {
			return out, err
		}
		reason, next := EvaluateExit(pol, pos, price, ts, now)

		if reason == "" {
			if next != nil && (ts == nil || !next.Peak.Equal(ts.Peak)) {
				if err := m.Trailing.Put(*next); err != nil {
					return out, err
				}
			}
			continue
		}

		if err := m.Guard.Allows(guard.ActionClose); err != nil {
			var blocked *guard.BlockedError
			if errors.As(err, &blocked) {
				m.Logger.Warn("risk exit blocked by trade guard",
					zap.String("instrument", pos.Instrument),
					zap.String("reason", reason),
					zap.String("mode", string(blocked.Mode)),
				)
				continue
			}
			return out, err
		}

		res, err := m.Engine.ReduceOrClose(ctx, ledger.ReduceRequest{
			Exchange:   pos.Exchange,
			Instrument: pos.Instrument,
			Price:      price,
			Timestamp:  now,
			Note:       reason,
		})
		if err != nil {
			if errors.Is(err, ledger.ErrNoOpenPosition) {
				continue
			}
			return out, err
		}
		if err := m.Trailing.Delete(pos.Exchange, pos.Instrument); err != nil {
			m.Logger.Warn("trailing state cleanup failed", zap.Error(err))
		}
		out.Closed = append(out.Closed, ClosedPosition{
			Exchange:    pos.Exchange,
			Instrument:  pos.Instrument,
			Reason:      reason,
			Price:       price,
			RealizedPnL: res.RealizedPnL,
		})
		m.Logger.Info("risk exit executed",
			zap.String("instrument", pos.Instrument),
			zap.String("reason", reason),
			zap.String("price", price.String()),
			zap.String("realized_pnl", res.RealizedPnL.String()),
		)
		if m.Notifier != nil {
			_ = m.Notifier.Notify(ctx, notifier.Event{
				Kind:       notifier.KindRiskAction,
				Exchange:   pos.Exchange,
				Instrument: pos.Instrument,
				Message:    "position closed by risk sweep",
				Fields: map[string]any{
					"reason":       reason,
					"price":        price.String(),
					"realized_pnl": res.RealizedPnL.String(),
				},
				At: now,
			})
		}
	}
	return out, nil
}
