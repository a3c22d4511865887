package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/backtest"
	"alphapilot/internal/config"
	"alphapilot/internal/dataset"
	"alphapilot/internal/mlmodel"
	"alphapilot/internal/models"
	"alphapilot/internal/promotion"
	"alphapilot/internal/repository"
)

// ResearchService owns the offline loop: walk-forward evaluation, training
// and registering challenger models, and the promotion protocol.
type ResearchService struct {
	Market      config.MarketConfig
	Backtest    config.BacktestConfig
	ArtifactDir string
	Repo        repository.Repository
	Provider    dataset.Provider
	Trainer     mlmodel.Trainer
	Engine      *backtest.Engine
	Promotion   *promotion.Protocol
	Logger      *zap.Logger
}

func (s *ResearchService) key() repository.ModelKey {
	return repository.ModelKey{
		Exchange:    s.Market.Exchange,
		Instrument:  s.Market.Instrument,
		Timeframe:   s.Market.Timeframe,
		HorizonBars: s.Market.HorizonBars,
	}
}

func (s *ResearchService) defaultConfig() backtest.Config {
	return backtest.Config{
		WindowTrain:      s.Backtest.WindowTrain,
		WindowTest:       s.Backtest.WindowTest,
		Step:             s.Backtest.Step,
		ThresholdGrid:    s.Backtest.ThresholdGrid,
		ValidationSplit:  s.Backtest.ValidationSplit,
		MaxCurvePoints:   s.Backtest.MaxCurvePoints,
		MaxParallelFolds: s.Backtest.MaxParallelFolds,
	}
}

// RunWalkForward executes one walk-forward over the full history and
// archives the result. Zero fields in the override fall back to the
// configured defaults.
func (s *ResearchService) RunWalkForward(ctx context.Context, override backtest.Config) (backtest.Result, error) {
	cfg := s.defaultConfig()
	if override.WindowTrain > 0 {
		cfg.WindowTrain = override.WindowTrain
	}
	if override.WindowTest > 0 {
		cfg.WindowTest = override.WindowTest
	}
	if override.Step > 0 {
		cfg.Step = override.Step
	}
	if len(override.ThresholdGrid) > 0 {
		cfg.ThresholdGrid = override.ThresholdGrid
	}

	frame, err := s.Provider.History(ctx)
	if err != nil {
		return backtest.Result{}, err
	}
	res, err := s.Engine.Run(ctx, frame, cfg)
	if err != nil {
		return backtest.Result{}, err
	}

	folds, err := json.Marshal(res.Folds)
	if err != nil {
		return backtest.Result{}, err
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return backtest.Result{}, err
	}
	curve, err := json.Marshal(res.Curve)
	if err != nil {
		return backtest.Result{}, err
	}
	run := &models.WalkForwardRun{
		Exchange:    s.Market.Exchange,
		Instrument:  s.Market.Instrument,
		Timeframe:   s.Market.Timeframe,
		HorizonBars: s.Market.HorizonBars,
		WindowTrain: cfg.WindowTrain,
		WindowTest:  cfg.WindowTest,
		Step:        cfg.Step,
		FoldCount:   len(res.Folds),
		Empty:       res.Empty,
		Folds:       folds,
		Summary:     summary,
		Curve:       curve,
	}
	if err := s.Repo.InsertWalkForwardRun(ctx, run); err != nil {
		return backtest.Result{}, err
	}
	return res, nil
}

// TrainAndRegister fits a fresh model on all but the most recent test slice,
// selects its threshold on a validation split, saves the artifact and
// records the ModelRun. The new run becomes a challenger; it goes live only
// through promotion.
func (s *ResearchService) TrainAndRegister(ctx context.Context) (*models.ModelRun, error) {
	frame, err := s.Provider.History(ctx)
	if err != nil {
		return nil, err
	}
	cfg := s.defaultConfig()

	n := frame.Len()
	testLen := cfg.WindowTest
	if testLen <= 0 || testLen >= n/2 {
		testLen = n / 5
	}
	trainEnd := n - testLen
	valLen := int(float64(trainEnd) * cfg.ValidationSplit)
	if valLen < 1 {
		valLen = 1
	}
	innerEnd := trainEnd - valLen
	if innerEnd < 1 {
		return nil, dataset.ErrUnavailable
	}

	features := frame.FeatureColumns()
	xInner, err := frame.Matrix(0, innerEnd, features)
	if err != nil {
		return nil, err
	}
	yInner, err := frame.Labels(0, innerEnd)
	if err != nil {
		return nil, err
	}
	inner, err := s.Trainer.Train(xInner, yInner)
	if err != nil {
		return nil, err
	}

	closes, err := frame.Column(dataset.ColClose)
	if err != nil {
		return nil, err
	}
	rets := backtest.ForwardReturns(closes)

	valProbs, valLabels, err := probsAndLabels(inner, frame, innerEnd, trainEnd, features)
	if err != nil {
		return nil, err
	}
	threshold := backtest.SelectThreshold(cfg.ThresholdGrid, valProbs, valLabels, rets[innerEnd:trainEnd])

	xFull, err := frame.Matrix(0, trainEnd, features)
	if err != nil {
		return nil, err
	}
	yFull, err := frame.Labels(0, trainEnd)
	if err != nil {
		return nil, err
	}
	full, err := s.Trainer.Train(xFull, yFull)
	if err != nil {
		return nil, err
	}

	testProbs, testLabels, err := probsAndLabels(full, frame, trainEnd, n, features)
	if err != nil {
		return nil, err
	}
	stratRets := backtest.StrategyReturns(testProbs, rets[trainEnd:n], threshold)

	path := filepath.Join(s.ArtifactDir, fmt.Sprintf("model_%s_%d.json",
		sanitize(s.Market.Instrument), time.Now().UTC().Unix()))
	art := &mlmodel.Artifact{Predictor: full, FeatureList: features, Threshold: threshold}
	if err := mlmodel.SaveArtifact(path, art); err != nil {
		return nil, err
	}

	featureList, err := json.Marshal(features)
	if err != nil {
		return nil, err
	}
	run := &models.ModelRun{
		Exchange:     s.Market.Exchange,
		Instrument:   s.Market.Instrument,
		Timeframe:    s.Market.Timeframe,
		HorizonBars:  s.Market.HorizonBars,
		TrainRows:    trainEnd,
		TestRows:     testLen,
		Threshold:    threshold,
		Accuracy:     backtest.Accuracy(testProbs, testLabels, threshold),
		AUC:          backtest.AUC(testProbs, testLabels),
		CumReturn:    backtest.CumulativeReturn(stratRets),
		Sharpe:       backtest.Sharpe(stratRets),
		ArtifactPath: path,
		FeatureList:  featureList,
	}
	if err := s.Repo.InsertModelRun(ctx, run); err != nil {
		return nil, err
	}
	s.Logger.Info("challenger model registered",
		zap.Uint64("model_run_id", run.ID),
		zap.Float64("threshold", run.Threshold),
		zap.Float64("auc", run.AUC),
		zap.Float64("sharpe", run.Sharpe),
	)
	return run, nil
}

// EvaluatePromotion runs the champion/challenger protocol over the most
// recent history tail.
func (s *ResearchService) EvaluatePromotion(ctx context.Context, params promotion.Params) (promotion.Decision, error) {
	frame, err := s.Provider.History(ctx)
	if err != nil {
		return promotion.Decision{}, err
	}
	return s.Promotion.EvaluateAndMaybePromote(ctx, frame, params)
}

func probsAndLabels(model mlmodel.Predictor, frame *dataset.Frame, from, to int, features []string) ([]float64, []int, error) {
	probs := make([]float64, 0, to-from)
	for i := from; i < to; i++ {
		row, err := frame.RowVector(i, features)
		if err != nil {
			return nil, nil, err
		}
		probs = append(probs, model.PredictProba(row))
	}
	labels, err := frame.Labels(from, to)
	if err != nil {
		return nil, nil, err
	}
	return probs, labels, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
