package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/backtest"
	"alphapilot/internal/dataset"
	"alphapilot/internal/mlmodel"
	"alphapilot/internal/models"
	"alphapilot/internal/notifier"
	"alphapilot/internal/repository"
)

var ErrNoChallenger = errors.New("promotion: no trained model to challenge with")

// Params tune the promotion rule. The tolerance and minimum-gain arithmetic
// is policy, not a hidden constant.
type Params struct {
	MinAUCGain         float64 `json:"min_auc_gain"`
	AUCTolerance       float64 `json:"auc_tolerance"`
	TailSize           int     `json:"tail_size"`
	PreferRiskAdjusted bool    `json:"prefer_risk_adjusted"`
	DryRun             bool    `json:"dry_run"`
}

// Score is one model's performance on the shared evaluation tail.
type Score struct {
	ModelRunID uint64  `json:"model_run_id"`
	Threshold  float64 `json:"threshold"`
	Accuracy   float64 `json:"accuracy"`
	AUC        float64 `json:"auc"`
	CumReturn  float64 `json:"cum_return"`
	Sharpe     float64 `json:"sharpe"`
}

// Decision reports what the protocol concluded and whether the pointer moved.
type Decision struct {
	Promoted   bool   `json:"promoted"`
	DryRun     bool   `json:"dry_run"`
	Reason     string `json:"reason"`
	Champion   *Score `json:"champion,omitempty"`
	Challenger Score  `json:"challenger"`
}

// Protocol evaluates the latest trained model against the active one and
// swaps the active-model pointer when the challenger wins.
type Protocol struct {
	Repo     repository.Repository
	Key      repository.ModelKey
	Notifier notifier.Sink
	Logger   *zap.Logger
}

// EvaluateAndMaybePromote scores champion and challenger on the identical
// most-recent tail of the frame, each with its own saved threshold, and
// promotes per the two-clause rule. With no champion the challenger is
// promoted outright. The swap is one upsert; dry run reports the decision
// without swapping.
func (p *Protocol) EvaluateAndMaybePromote(ctx context.Context, frame *dataset.Frame, params Params) (Decision, error) {
	challengerRun, err := p.Repo.LatestModelRun(ctx, p.Key)
	if err != nil {
		return Decision{}, err
	}
	if challengerRun == nil {
		return Decision{}, ErrNoChallenger
	}

	tail := frame.Tail(params.TailSize)
	if tail.Len() == 0 {
		return Decision{}, dataset.ErrUnavailable
	}

	challenger, err := p.score(tail, challengerRun)
	if err != nil {
		return Decision{}, fmt.Errorf("promotion: scoring challenger run %d: %w", challengerRun.ID, err)
	}

	dec := Decision{DryRun: params.DryRun, Challenger: challenger}

	active, err := p.Repo.GetActiveModel(ctx, p.Key)
	if err != nil {
		return Decision{}, err
	}
	var champion *Score
	if active != nil {
		if active.ModelRunID == challengerRun.ID {
			dec.Reason = "challenger is already active"
			return dec, nil
		}
		championRun, err := p.Repo.GetModelRunByID(ctx, active.ModelRunID)
		if err != nil {
			return Decision{}, err
		}
		if championRun != nil {
			s, err := p.score(tail, championRun)
			if err != nil {
				// A champion whose artifact cannot load anymore loses by
				// forfeit; the challenger takes over.
				p.Logger.Warn("champion artifact unusable, promoting challenger",
					zap.Uint64("model_run_id", active.ModelRunID),
					zap.Error(err),
				)
			} else {
				champion = &s
			}
		}
	}
	dec.Champion = champion

	if champion == nil {
		dec.Promoted = true
		dec.Reason = "no usable champion"
	} else {
		dec.Promoted, dec.Reason = decide(*champion, challenger, params)
	}

	if dec.Promoted && !params.DryRun {
		if err := p.Repo.SetActiveModel(ctx, p.Key, challengerRun.ID); err != nil {
			return Decision{}, err
		}
	}

	p.Logger.Info("promotion evaluated",
		zap.Bool("promoted", dec.Promoted),
		zap.Bool("dry_run", dec.DryRun),
		zap.String("reason", dec.Reason),
		zap.Uint64("challenger_run_id", challengerRun.ID),
	)
	if p.Notifier != nil && dec.Promoted && !params.DryRun {
		_ = p.Notifier.Notify(ctx, notifier.Event{
			Kind:       notifier.KindPromotion,
			Exchange:   p.Key.Exchange,
			Instrument: p.Key.Instrument,
			Message:    "active model swapped",
			Fields: map[string]any{
				"model_run_id": challengerRun.ID,
				"reason":       dec.Reason,
				"sharpe":       challenger.Sharpe,
				"auc":          challenger.AUC,
			},
			At: time.Now().UTC(),
		})
	}
	return dec, nil
}

// decide applies the two promotion clauses: a risk-adjusted win with ranking
// quality held within tolerance, or a ranking-quality gain meeting the
// configured minimum.
func decide(champion, challenger Score, params Params) (bool, string) {
	if params.PreferRiskAdjusted &&
		challenger.Sharpe > champion.Sharpe &&
		challenger.AUC >= champion.AUC-params.AUCTolerance {
		return true, fmt.Sprintf("sharpe %.3f > %.3f with auc within tolerance", challenger.Sharpe, champion.Sharpe)
	}
	if gain := challenger.AUC - champion.AUC; gain >= params.MinAUCGain {
		return true, fmt.Sprintf("auc gain %.3f >= %.3f", gain, params.MinAUCGain)
	}
	return false, "challenger does not beat champion"
}

// score evaluates one saved model run on the tail with its own threshold.
func (p *Protocol) score(tail *dataset.Frame, run *models.ModelRun) (Score, error) {
	art, err := mlmodel.LoadArtifact(run.ArtifactPath)
	if err != nil {
		return Score{}, err
	}

	n := tail.Len()
	probs := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		prob, err := art.PredictRow(tail, i)
		if err != nil {
			return Score{}, err
		}
		probs = append(probs, prob)
	}
	labels, err := tail.Labels(0, n)
	if err != nil {
		return Score{}, err
	}
	closes, err := tail.Column(dataset.ColClose)
	if err != nil {
		return Score{}, err
	}
	stratRets := backtest.StrategyReturns(probs, backtest.ForwardReturns(closes), art.Threshold)

	return Score{
		ModelRunID: run.ID,
		Threshold:  art.Threshold,
		Accuracy:   backtest.Accuracy(probs, labels, art.Threshold),
		AUC:        backtest.AUC(probs, labels),
		CumReturn:  backtest.CumulativeReturn(stratRets),
		Sharpe:     backtest.Sharpe(stratRets),
	}, nil
}
