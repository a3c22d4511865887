package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/dataset"
	"alphapilot/internal/market"
	"alphapilot/internal/mlmodel"
	"alphapilot/internal/models"
	"alphapilot/internal/policy"
	"alphapilot/internal/repository"
	"alphapilot/internal/sizing"
)

const (
	SignalBuy  = "buy"
	SignalFlat = "flat"
)

// Decision is the outcome of evaluating one bar. Reasons is the ordered list
// of filters that rejected the bar; empty reasons means buy. Every filter is
// narrow-only: filters can turn a buy into flat but never the reverse.
type Decision struct {
	Signal      string
	Probability float64
	Threshold   float64
	Margin      float64
	Regime      sizing.Regime
	Reasons     []string
	BarTime     time.Time
	Close       float64

	// Event is the persisted record for this bar. Created reports whether
	// this call inserted it; a re-evaluated bar returns the stored event
	// with Created false so the caller never acts twice.
	Event   *models.SignalEvent
	Created bool
}

// Pipeline admits or rejects model signals before they reach execution.
type Pipeline struct {
	Repo   repository.Repository
	Key    repository.ModelKey
	Logger *zap.Logger
}

// Evaluate runs the full admission chain on the latest bar of the frame and
// persists the resulting signal event exactly once per bar. A feature
// mismatch between the artifact and the frame aborts the cycle with an error;
// ordinary rejections are not errors.
func (p *Pipeline) Evaluate(ctx context.Context, pol policy.RiskPolicy, art *mlmodel.Artifact, frame *dataset.Frame, modelRunID *uint64) (Decision, error) {
	if frame.Len() == 0 {
		return Decision{}, dataset.ErrUnavailable
	}
	last := frame.Len() - 1

	prob, err := art.PredictRow(frame, last)
	if err != nil {
		return Decision{}, err
	}

	dec := Decision{
		Signal:      SignalBuy,
		Probability: prob,
		Threshold:   art.Threshold,
		Margin:      prob - art.Threshold,
		Regime:      sizing.RegimeNormal,
		BarTime:     frame.Time(last),
	}
	if c, err := frame.Value(dataset.ColClose, last); err == nil {
		dec.Close = c
	}

	reject := func(reason string) {
		dec.Signal = SignalFlat
		dec.Reasons = append(dec.Reasons, reason)
	}

	if prob <= art.Threshold {
		reject(fmt.Sprintf("probability %.2f <= %.2f", prob, art.Threshold))
	} else if gap := prob - art.Threshold; gap < pol.MinProbGap {
		reject(fmt.Sprintf("prob_gap %.2f < %.2f", gap, pol.MinProbGap))
	}

	dec.Regime = p.classifyRegime(pol, frame, &dec)

	if dec.Regime == sizing.RegimeDead && pol.BlockDeadRegime {
		reject("dead_regime")
	}

	if pol.MinRelativeVolume > 0 {
		volumes, err := frame.Column(dataset.ColVolume)
		if err != nil {
			return Decision{}, err
		}
		rv, err := market.RelativeVolume(volumes, pol.VolumePeriod)
		if err != nil {
			reject("insufficient_history")
		} else if rv < pol.MinRelativeVolume {
			reject(fmt.Sprintf("relative_volume %.2f < %.2f", rv, pol.MinRelativeVolume))
		}
	}

	if pol.MaxBodyFraction > 0 {
		open, errO := frame.Value(dataset.ColOpen, last)
		if errO != nil {
			return Decision{}, errO
		}
		if bf := market.BodyFraction(open, dec.Close); bf > pol.MaxBodyFraction {
			reject(fmt.Sprintf("body_fraction %.3f > %.3f", bf, pol.MaxBodyFraction))
		}
	}

	if pol.TrendFilter {
		closes, err := frame.Column(dataset.ColClose)
		if err != nil {
			return Decision{}, err
		}
		fast, errF := market.SMA(closes, pol.TrendFastPeriod)
		slow, errS := market.SMA(closes, pol.TrendSlowPeriod)
		if errF != nil || errS != nil {
			reject("insufficient_history")
		} else if fast <= slow {
			reject(fmt.Sprintf("trend fast %.2f <= slow %.2f", fast, slow))
		}
	}

	if pol.CooldownMinutes > 0 {
		lastBuy, err := p.Repo.LastBuyEvent(ctx, p.Key)
		if err != nil {
			return Decision{}, err
		}
		if lastBuy != nil {
			since := dec.BarTime.Sub(lastBuy.BarTime)
			if since < time.Duration(pol.CooldownMinutes)*time.Minute {
				reject(fmt.Sprintf("cooldown %dm active", pol.CooldownMinutes))
			}
		}
	}

	event, created, err := p.persist(ctx, dec, modelRunID)
	if err != nil {
		return Decision{}, err
	}
	dec.Event = event
	dec.Created = created
	if !created {
		// Another run already decided this bar; mirror its verdict.
		dec.Signal = event.Signal
		dec.Probability = event.Probability
		dec.Threshold = event.Threshold
	}

	p.Logger.Info("bar evaluated",
		zap.Time("bar_time", dec.BarTime),
		zap.Float64("probability", dec.Probability),
		zap.String("signal", dec.Signal),
		zap.Strings("reasons", dec.Reasons),
		zap.Bool("created", created),
	)
	return dec, nil
}

// classifyRegime buckets the latest ATR fraction into the policy's bands for
// the configured timeframe. A frame too short to compute ATR counts as a
// rejection when the dead regime is blocked, not an error.
func (p *Pipeline) classifyRegime(pol policy.RiskPolicy, frame *dataset.Frame, dec *Decision) sizing.Regime {
	highs, errH := frame.Column(dataset.ColHigh)
	lows, errL := frame.Column(dataset.ColLow)
	closes, errC := frame.Column(dataset.ColClose)
	if errH != nil || errL != nil || errC != nil {
		return sizing.RegimeNormal
	}
	frac, err := market.ATRFraction(highs, lows, closes, pol.ATRPeriod)
	if err != nil {
		dec.Signal = SignalFlat
		dec.Reasons = append(dec.Reasons, "insufficient_history")
		return sizing.RegimeNormal
	}
	bands := pol.Bands(p.Key.Timeframe)
	switch {
	case frac < bands.Dead:
		return sizing.RegimeDead
	case frac > bands.Hot:
		return sizing.RegimeHot
	default:
		return sizing.RegimeNormal
	}
}

func (p *Pipeline) persist(ctx context.Context, dec Decision, modelRunID *uint64) (*models.SignalEvent, bool, error) {
	reasons, err := json.Marshal(dec.Reasons)
	if err != nil {
		return nil, false, err
	}
	if dec.Reasons == nil {
		reasons = []byte("[]")
	}
	event := &models.SignalEvent{
		Exchange:    p.Key.Exchange,
		Instrument:  p.Key.Instrument,
		Timeframe:   p.Key.Timeframe,
		BarTime:     dec.BarTime,
		HorizonBars: p.Key.HorizonBars,
		ClosePrice:  dec.Close,
		Probability: dec.Probability,
		Threshold:   dec.Threshold,
		Signal:      dec.Signal,
		Reasons:     reasons,
		ModelRunID:  modelRunID,
	}
	created, err := p.Repo.CreateSignalEventIfAbsent(ctx, event)
	if err != nil {
		return nil, false, err
	}
	return event, created, nil
}
