package policy

import (
	"encoding/json"
	"os"
	"path/filepath"

	"alphapilot/internal/sizing"
)

// VolatilityBands bound the ATR-fraction regimes for one timeframe: below
// Dead the market is dead, above Hot it is hot, normal in between.
type VolatilityBands struct {
	Dead float64 `json:"dead"`
	Hot  float64 `json:"hot"`
}

// RiskPolicy is the versioned decision-cycle configuration. It is loaded
// fresh at the start of every cycle and merged over defaults, never mutated
// in place.
type RiskPolicy struct {
	Version int `json:"version"`

	// Admission.
	MinProbGap        float64                    `json:"min_prob_gap"`
	VolBands          map[string]VolatilityBands `json:"vol_bands"`
	BlockDeadRegime   bool                       `json:"block_dead_regime"`
	CooldownMinutes   int                        `json:"cooldown_minutes"`
	MinRelativeVolume float64                    `json:"min_relative_volume"`
	MaxBodyFraction   float64                    `json:"max_body_fraction"`
	TrendFilter       bool                       `json:"trend_filter"`
	TrendFastPeriod   int                        `json:"trend_fast_period"`
	TrendSlowPeriod   int                        `json:"trend_slow_period"`
	ATRPeriod         int                        `json:"atr_period"`
	VolumePeriod      int                        `json:"volume_period"`

	// Risk gate. Each exit rule is independently enable-able.
	StopLossEnabled       bool    `json:"stop_loss_enabled"`
	StopLossPct           float64 `json:"stop_loss_pct"`
	TakeProfitEnabled     bool    `json:"take_profit_enabled"`
	TakeProfitPct         float64 `json:"take_profit_pct"`
	TrailingEnabled       bool    `json:"trailing_enabled"`
	TrailingActivationPct float64 `json:"trailing_activation_pct"`
	TrailingStopPct       float64 `json:"trailing_stop_pct"`
	MaxExposureFraction   float64 `json:"max_exposure_fraction"`
	MaxOpenPositions      int     `json:"max_open_positions"`
	MaxPositionAgeHours   int     `json:"max_position_age_hours"`

	Sizing sizing.Config `json:"sizing"`
}

// Default is the baseline every loaded document is merged over.
func Default() RiskPolicy {
	return RiskPolicy{
		Version:    1,
		MinProbGap: 0.05,
		VolBands: map[string]VolatilityBands{
			"15m": {Dead: 0.0015, Hot: 0.015},
			"1h":  {Dead: 0.002, Hot: 0.02},
			"4h":  {Dead: 0.003, Hot: 0.03},
			"1d":  {Dead: 0.005, Hot: 0.05},
		},
		BlockDeadRegime:   true,
		CooldownMinutes:   240,
		MinRelativeVolume: 0.5,
		MaxBodyFraction:   0.05,
		TrendFilter:       false,
		TrendFastPeriod:   20,
		TrendSlowPeriod:   50,
		ATRPeriod:         14,
		VolumePeriod:      20,

		StopLossEnabled:       true,
		StopLossPct:           0.02,
		TakeProfitEnabled:     true,
		TakeProfitPct:         0.05,
		TrailingEnabled:       true,
		TrailingActivationPct: 0.02,
		TrailingStopPct:       0.01,
		MaxExposureFraction:   0.8,
		MaxOpenPositions:      5,
		MaxPositionAgeHours:   72,

		Sizing: sizing.Config{
			FractionDead:        0.0,
			FractionNormal:      0.1,
			FractionHot:         0.05,
			ConfidenceBoost:     0.0,
			MinOrderUSD:         10,
			PositionMaxFraction: 0.25,
		},
	}
}

// Bands returns the regime bands for a timeframe, falling back to the 1h
// bands when the timeframe is not configured.
func (p RiskPolicy) Bands(timeframe string) VolatilityBands {
	if b, ok := p.VolBands[timeframe]; ok {
		return b
	}
	if b, ok := p.VolBands["1h"]; ok {
		return b
	}
	return VolatilityBands{Dead: 0.002, Hot: 0.02}
}

// Loader reads the risk-policy JSON document from the state directory.
// Missing file or fields fall back to defaults, so a partial document is
// always a valid policy.
type Loader struct {
	Path string
}

func NewLoader(stateDir string) *Loader {
	return &Loader{Path: filepath.Join(stateDir, "risk_policy.json")}
}

func (l *Loader) Load() (RiskPolicy, error) {
	p := Default()
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Default(), err
	}
	return p, nil
}

// Save writes the document; used by tooling rather than the engine itself.
func (l *Loader) Save(p RiskPolicy) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(l.Path, raw, 0o644)
}
