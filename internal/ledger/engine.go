package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphapilot/internal/sizing"
)

// Sizer computes the capital fraction for an open when the caller leaves the
// quantity blank.
type Sizer interface {
	TargetNotional(in sizing.Inputs) decimal.Decimal
}

// Engine executes simulated fills against the ledger store. Every mutating
// call is one read-modify-write transaction: the full intended mutation is
// computed in memory and lands through a single atomic replace.
type Engine struct {
	Store   *Store
	Sizer   Sizer
	FeeRate decimal.Decimal
	Logger  *zap.Logger
}

type OpenRequest struct {
	Exchange   string
	Instrument string
	// Quantity is optional; when nil the Sizer decides.
	Quantity      *decimal.Decimal
	Price         decimal.Decimal
	Timestamp     time.Time
	Regime        sizing.Regime
	Margin        float64
	SignalEventID *uint64
	Note          string
}

type OpenResult struct {
	Order    Order
	Position Position
	Cash     decimal.Decimal
	// Skipped is true when sizing returned zero. That is a normal
	// outcome, not an error; SkipReason explains it.
	Skipped    bool
	SkipReason string
}

type ReduceRequest struct {
	Exchange   string
	Instrument string
	// Quantity is optional; nil or oversized means full close (clamped).
	Quantity      *decimal.Decimal
	Price         decimal.Decimal
	Timestamp     time.Time
	SignalEventID *uint64
	Note          string
}

type ReduceResult struct {
	Order       Order
	Position    Position
	Cash        decimal.Decimal
	RealizedPnL decimal.Decimal
}

// OpenOrAdd opens a new position or merges into an existing one with
// volume-weighted entry averaging. Cash is debited by notional plus fee.
func (e *Engine) OpenOrAdd(ctx context.Context, req OpenRequest) (OpenResult, error) {
	if err := ctx.Err(); err != nil {
		return OpenResult{}, err
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return OpenResult{}, ErrInsufficientCapital
	}

	var out OpenResult
	_, err := e.Store.Update(func(l *Ledger) error {
		pos := l.FindPosition(req.Exchange, req.Instrument)
		current := decimal.Zero
		if pos.IsOpen() {
			current = pos.Notional()
		}

		var qty decimal.Decimal
		if req.Quantity != nil {
			qty = *req.Quantity
			cost := qty.Mul(req.Price)
			if cost.Add(e.fee(cost)).GreaterThan(l.Cash) {
				return ErrInsufficientCapital
			}
		} else {
			if e.Sizer == nil {
				return ErrInsufficientCapital
			}
			equity := l.Cash.Add(l.PositionsValue(func(ex, in string) (decimal.Decimal, bool) {
				if ex == req.Exchange && in == req.Instrument {
					return req.Price, true
				}
				return decimal.Zero, false
			}))
			notional := e.Sizer.TargetNotional(sizing.Inputs{
				Equity:          equity,
				Cash:            l.Cash,
				CurrentNotional: current,
				Regime:          req.Regime,
				Margin:          req.Margin,
			})
			if notional.LessThanOrEqual(decimal.Zero) {
				out = OpenResult{Skipped: true, SkipReason: "zero_allocation", Cash: l.Cash}
				return errSkip
			}
			// Reserve fee headroom: a sizing clamp to full remaining cash
			// must still fill, so cap notional at cash/(1+fee rate).
			if e.FeeRate.GreaterThan(decimal.Zero) {
				spendable := l.Cash.Div(decimal.NewFromInt(1).Add(e.FeeRate))
				if notional.GreaterThan(spendable) {
					notional = spendable
				}
			}
			qty = notional.Div(req.Price)
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			return ErrInsufficientCapital
		}

		cost := qty.Mul(req.Price)
		fee := e.fee(cost)
		if cost.Add(fee).GreaterThan(l.Cash) {
			return ErrInsufficientCapital
		}
		l.Cash = l.Cash.Sub(cost).Sub(fee)

		now := req.Timestamp
		if now.IsZero() {
			now = time.Now().UTC()
		}
		if pos == nil {
			l.Positions = append(l.Positions, Position{
				Exchange:   req.Exchange,
				Instrument: req.Instrument,
				OpenedAt:   now,
			})
			pos = &l.Positions[len(l.Positions)-1]
		}
		if !pos.IsOpen() {
			pos.OpenedAt = now
			pos.AvgEntryPrice = decimal.Zero
		}
		// Volume-weighted entry averaging.
		total := pos.Quantity.Add(qty)
		pos.AvgEntryPrice = pos.Notional().Add(cost).Div(total)
		pos.Quantity = total
		pos.UpdatedAt = now

		order := Order{
			ID:            uuid.NewString(),
			Timestamp:     now,
			Exchange:      req.Exchange,
			Instrument:    req.Instrument,
			Side:          SideBuy,
			Quantity:      qty,
			Price:         req.Price,
			Fee:           fee,
			SignalEventID: req.SignalEventID,
			Note:          req.Note,
		}
		l.Orders = append(l.Orders, order)

		out = OpenResult{Order: order, Position: *pos, Cash: l.Cash}
		return nil
	})
	if err == errSkip {
		return out, nil
	}
	if err != nil {
		return OpenResult{}, err
	}
	if e.Logger != nil {
		e.Logger.Info("position opened or added",
			zap.String("instrument", req.Instrument),
			zap.String("quantity", out.Order.Quantity.String()),
			zap.String("price", req.Price.String()),
			zap.String("cash", out.Cash.String()),
		)
	}
	return out, nil
}

// ReduceOrClose sells part or all of an open position. The quantity is
// clamped to the open size; it never oversells.
func (e *Engine) ReduceOrClose(ctx context.Context, req ReduceRequest) (ReduceResult, error) {
	if err := ctx.Err(); err != nil {
		return ReduceResult{}, err
	}

	var out ReduceResult
	_, err := e.Store.Update(func(l *Ledger) error {
		pos := l.FindPosition(req.Exchange, req.Instrument)
		if !pos.IsOpen() {
			return ErrNoOpenPosition
		}

		qty := pos.Quantity
		if req.Quantity != nil && req.Quantity.LessThan(qty) {
			qty = *req.Quantity
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			return ErrNoOpenPosition
		}

		proceeds := qty.Mul(req.Price)
		fee := e.fee(proceeds)
		realized := req.Price.Sub(pos.AvgEntryPrice).Mul(qty).Sub(fee)

		now := req.Timestamp
		if now.IsZero() {
			now = time.Now().UTC()
		}
		l.Cash = l.Cash.Add(proceeds).Sub(fee)
		pos.Quantity = pos.Quantity.Sub(qty)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.UpdatedAt = now
		if !pos.IsOpen() {
			pos.Quantity = decimal.Zero
			pos.AvgEntryPrice = decimal.Zero
		}

		order := Order{
			ID:            uuid.NewString(),
			Timestamp:     now,
			Exchange:      req.Exchange,
			Instrument:    req.Instrument,
			Side:          SideSell,
			Quantity:      qty,
			Price:         req.Price,
			Fee:           fee,
			SignalEventID: req.SignalEventID,
			Note:          req.Note,
		}
		l.Orders = append(l.Orders, order)

		out = ReduceResult{Order: order, Position: *pos, Cash: l.Cash, RealizedPnL: realized}
		return nil
	})
	if err != nil {
		return ReduceResult{}, err
	}
	if e.Logger != nil {
		e.Logger.Info("position reduced or closed",
			zap.String("instrument", req.Instrument),
			zap.String("quantity", out.Order.Quantity.String()),
			zap.String("realized_pnl", out.RealizedPnL.String()),
			zap.String("note", req.Note),
		)
	}
	return out, nil
}

// MarkToMarket is a pure read; prices missing from the lookup fall back to
// each position's average entry price.
func (e *Engine) MarkToMarket(lookup PriceLookup) (Valuation, error) {
	l, err := e.Store.Snapshot()
	if err != nil {
		return Valuation{}, err
	}
	value := l.PositionsValue(lookup)
	return Valuation{
		Cash:           l.Cash,
		PositionsValue: value,
		Equity:         l.Cash.Add(value),
	}, nil
}

func (e *Engine) fee(notional decimal.Decimal) decimal.Decimal {
	if e.FeeRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return notional.Mul(e.FeeRate)
}

// errSkip aborts an Update without persisting; used for zero-size opens.
var errSkip = &skipError{}

type skipError struct{}

func (*skipError) Error() string { return "ledger: sizing skip" }
