package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position is the open inventory for one (exchange, instrument) pair. The
// entry price is volume-weighted across fills; quantity zero means flat (the
// record may persist with its realized PnL).
type Position struct {
	Exchange      string          `json:"exchange"`
	Instrument    string          `json:"instrument"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenedAt      time.Time       `json:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *Position) IsOpen() bool {
	return p != nil && p.Quantity.GreaterThan(decimal.Zero)
}

func (p *Position) Notional() decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return p.Quantity.Mul(p.AvgEntryPrice)
}

// Order is one immutable simulated fill. The order log is append-only.
type Order struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Exchange      string          `json:"exchange"`
	Instrument    string          `json:"instrument"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Fee           decimal.Decimal `json:"fee"`
	SignalEventID *uint64         `json:"signal_event_id,omitempty"`
	Note          string          `json:"note,omitempty"`
}

// Ledger is the single source of truth for simulated capital. It is persisted
// as one JSON document and replaced wholesale on every mutation.
type Ledger struct {
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
	Orders    []Order         `json:"orders"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (l *Ledger) FindPosition(exchange, instrument string) *Position {
	for i := range l.Positions {
		p := &l.Positions[i]
		if p.Exchange == exchange && p.Instrument == instrument {
			return p
		}
	}
	return nil
}

func (l *Ledger) OpenPositions() []Position {
	out := make([]Position, 0, len(l.Positions))
	for i := range l.Positions {
		if l.Positions[i].IsOpen() {
			out = append(out, l.Positions[i])
		}
	}
	return out
}

// PriceLookup supplies the live mark for a pair; ok=false falls back to the
// position's average entry price.
type PriceLookup func(exchange, instrument string) (decimal.Decimal, bool)

// PositionsValue marks every open position, falling back to entry price when
// no live mark is supplied.
func (l *Ledger) PositionsValue(lookup PriceLookup) decimal.Decimal {
	total := decimal.Zero
	for i := range l.Positions {
		p := &l.Positions[i]
		if !p.IsOpen() {
			continue
		}
		mark := p.AvgEntryPrice
		if lookup != nil {
			if m, ok := lookup(p.Exchange, p.Instrument); ok {
				mark = m
			}
		}
		total = total.Add(p.Quantity.Mul(mark))
	}
	return total
}

// Valuation is the mark-to-market read model.
type Valuation struct {
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	Equity         decimal.Decimal `json:"equity"`
}
