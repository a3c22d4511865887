package sizing

import (
	"github.com/shopspring/decimal"
)

// Regime is the discretized volatility state derived from recent ATR.
type Regime string

const (
	RegimeDead   Regime = "dead"
	RegimeNormal Regime = "normal"
	RegimeHot    Regime = "hot"
)

// Config carries the sizing fractions of the active risk policy.
type Config struct {
	FractionDead   float64 `json:"fraction_dead"`
	FractionNormal float64 `json:"fraction_normal"`
	FractionHot    float64 `json:"fraction_hot"`

	// ConfidenceBoost scales the base fraction by the model's probability
	// margin above threshold: fraction × (1 + boost × margin).
	ConfidenceBoost float64 `json:"confidence_boost"`

	MinOrderUSD         float64 `json:"min_order_usd"`
	PositionMaxFraction float64 `json:"position_max_fraction"`
}

// Inputs is everything TargetNotional needs to size one open.
type Inputs struct {
	Equity          decimal.Decimal
	Cash            decimal.Decimal
	CurrentNotional decimal.Decimal
	Regime          Regime
	Margin          float64
}

// TargetNotional translates a buy decision into capital to deploy. Zero is a
// normal skip: the floor could not be met or the per-instrument cap is
// saturated. The result is always within [MinOrderUSD, PositionMaxFraction ×
// equity − current notional], or exactly zero.
func TargetNotional(cfg Config, in Inputs) decimal.Decimal {
	if in.Equity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	frac := cfg.FractionNormal
	switch in.Regime {
	case RegimeDead:
		frac = cfg.FractionDead
	case RegimeHot:
		frac = cfg.FractionHot
	}
	if frac <= 0 {
		return decimal.Zero
	}
	if cfg.ConfidenceBoost > 0 && in.Margin > 0 {
		frac *= 1 + cfg.ConfidenceBoost*in.Margin
	}

	notional := in.Equity.Mul(decimal.NewFromFloat(frac))
	minOrder := decimal.NewFromFloat(cfg.MinOrderUSD)
	if notional.LessThan(minOrder) {
		notional = minOrder
	}

	room := in.Equity.Mul(decimal.NewFromFloat(cfg.PositionMaxFraction)).Sub(in.CurrentNotional)
	if room.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if notional.GreaterThan(room) {
		notional = room
	}
	if notional.GreaterThan(in.Cash) {
		notional = in.Cash
	}
	if notional.LessThan(minOrder) || notional.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return notional
}
