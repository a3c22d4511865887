package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/dataset"
	"alphapilot/internal/mlmodel"
)

// Config drives one walk-forward run. The window sizes and step are in bars.
type Config struct {
	WindowTrain      int       `json:"window_train"`
	WindowTest       int       `json:"window_test"`
	Step             int       `json:"step"`
	ThresholdGrid    []float64 `json:"threshold_grid"`
	ValidationSplit  float64   `json:"validation_split"`
	MaxCurvePoints   int       `json:"max_curve_points"`
	MaxParallelFolds int       `json:"max_parallel_folds"`
}

func (c Config) validate() error {
	if c.WindowTrain <= 0 || c.WindowTest <= 0 || c.Step <= 0 {
		return fmt.Errorf("backtest: windows and step must be positive (train=%d test=%d step=%d)", c.WindowTrain, c.WindowTest, c.Step)
	}
	if len(c.ThresholdGrid) == 0 {
		return fmt.Errorf("backtest: threshold grid is empty")
	}
	if c.ValidationSplit <= 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("backtest: validation split %.2f out of (0,1)", c.ValidationSplit)
	}
	return nil
}

// Fold is one rolling-window evaluation, immutable once computed.
type Fold struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
	Threshold  float64   `json:"threshold"`
	Accuracy   float64   `json:"accuracy"`
	AUC        float64   `json:"auc"`
	CumReturn  float64   `json:"cum_return"`
	Sharpe     float64   `json:"sharpe"`
	Bars       int       `json:"bars"`
}

type Summary struct {
	Folds         int     `json:"folds"`
	MeanAccuracy  float64 `json:"mean_accuracy"`
	MeanAUC       float64 `json:"mean_auc"`
	MeanSharpe    float64 `json:"mean_sharpe"`
	MeanCumReturn float64 `json:"mean_cum_return"`
	TotalReturn   float64 `json:"total_return"`
}

// Result carries the folds, the aggregate summary and the downsampled
// synthetic equity curve. Empty is set when no fold could be formed; that is
// a reportable outcome, not an error.
type Result struct {
	Folds   []Fold    `json:"folds"`
	Summary Summary   `json:"summary"`
	Curve   []float64 `json:"curve"`
	Empty   bool      `json:"empty"`
}

// FoldCount is the number of folds N bars admit: floor((N-T-V)/S)+1, or zero
// when even one fold does not fit.
func FoldCount(n, train, test, step int) int {
	if step <= 0 || n < train+test {
		return 0
	}
	return (n-train-test)/step + 1
}

// Engine replays history through freshly trained models on rolling windows.
type Engine struct {
	Trainer mlmodel.Trainer
	Logger  *zap.Logger
}

type foldOutput struct {
	fold    Fold
	returns []float64
}

// Run executes the walk-forward over the frame. Folds are independent and
// computed in parallel; the curve is assembled after all folds complete, in
// fold order.
func (e *Engine) Run(ctx context.Context, frame *dataset.Frame, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	n := frame.Len()
	count := FoldCount(n, cfg.WindowTrain, cfg.WindowTest, cfg.Step)
	if count == 0 {
		e.Logger.Warn("walk-forward produced no folds",
			zap.Int("bars", n),
			zap.Int("window_train", cfg.WindowTrain),
			zap.Int("window_test", cfg.WindowTest),
		)
		return Result{Empty: true, Folds: []Fold{}, Curve: []float64{}}, nil
	}

	features := frame.FeatureColumns()
	closes, err := frame.Column(dataset.ColClose)
	if err != nil {
		return Result{}, err
	}
	rets := ForwardReturns(closes)

	parallel := cfg.MaxParallelFolds
	if parallel <= 0 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)
	outputs := make([]foldOutput, count)
	errs := make([]error, count)
	var wg sync.WaitGroup

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			out, err := e.runFold(frame, features, rets, cfg, idx)
			if err != nil {
				errs[idx] = err
				return
			}
			outputs[idx] = out
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return Result{}, err
		}
	}

	res := Result{Folds: make([]Fold, 0, count)}
	var all []float64
	for _, out := range outputs {
		res.Folds = append(res.Folds, out.fold)
		all = append(all, out.returns...)
		res.Summary.MeanAccuracy += out.fold.Accuracy
		res.Summary.MeanAUC += out.fold.AUC
		res.Summary.MeanSharpe += out.fold.Sharpe
		res.Summary.MeanCumReturn += out.fold.CumReturn
	}
	res.Summary.Folds = count
	res.Summary.MeanAccuracy /= float64(count)
	res.Summary.MeanAUC /= float64(count)
	res.Summary.MeanSharpe /= float64(count)
	res.Summary.MeanCumReturn /= float64(count)
	res.Summary.TotalReturn = CumulativeReturn(all)

	curve := make([]float64, len(all))
	equity := 1.0
	for i, r := range all {
		equity *= 1 + r
		curve[i] = equity
	}
	res.Curve = Downsample(curve, cfg.MaxCurvePoints)

	e.Logger.Info("walk-forward complete",
		zap.Int("folds", count),
		zap.Float64("mean_sharpe", res.Summary.MeanSharpe),
		zap.Float64("total_return", res.Summary.TotalReturn),
	)
	return res, nil
}

func (e *Engine) runFold(frame *dataset.Frame, features []string, rets []float64, cfg Config, idx int) (foldOutput, error) {
	trainStart := idx * cfg.Step
	trainEnd := trainStart + cfg.WindowTrain
	testEnd := trainEnd + cfg.WindowTest

	// Inner split of the training window for threshold selection.
	valLen := int(float64(cfg.WindowTrain) * cfg.ValidationSplit)
	if valLen < 1 {
		valLen = 1
	}
	innerEnd := trainEnd - valLen

	xInner, err := frame.Matrix(trainStart, innerEnd, features)
	if err != nil {
		return foldOutput{}, err
	}
	yInner, err := frame.Labels(trainStart, innerEnd)
	if err != nil {
		return foldOutput{}, err
	}
	inner, err := e.Trainer.Train(xInner, yInner)
	if err != nil {
		return foldOutput{}, fmt.Errorf("fold %d inner fit: %w", idx, err)
	}

	valProbs, err := predictRange(inner, frame, innerEnd, trainEnd, features)
	if err != nil {
		return foldOutput{}, err
	}
	valLabels, err := frame.Labels(innerEnd, trainEnd)
	if err != nil {
		return foldOutput{}, err
	}
	threshold := SelectThreshold(cfg.ThresholdGrid, valProbs, valLabels, rets[innerEnd:trainEnd])

	// Refit on the full training window, then evaluate out of sample.
	xFull, err := frame.Matrix(trainStart, trainEnd, features)
	if err != nil {
		return foldOutput{}, err
	}
	yFull, err := frame.Labels(trainStart, trainEnd)
	if err != nil {
		return foldOutput{}, err
	}
	full, err := e.Trainer.Train(xFull, yFull)
	if err != nil {
		return foldOutput{}, fmt.Errorf("fold %d refit: %w", idx, err)
	}

	testProbs, err := predictRange(full, frame, trainEnd, testEnd, features)
	if err != nil {
		return foldOutput{}, err
	}
	testLabels, err := frame.Labels(trainEnd, testEnd)
	if err != nil {
		return foldOutput{}, err
	}
	stratRets := StrategyReturns(testProbs, rets[trainEnd:testEnd], threshold)

	fold := Fold{
		Index:      idx,
		TrainStart: frame.Time(trainStart),
		TrainEnd:   frame.Time(trainEnd - 1),
		TestStart:  frame.Time(trainEnd),
		TestEnd:    frame.Time(testEnd - 1),
		Threshold:  threshold,
		Accuracy:   Accuracy(testProbs, testLabels, threshold),
		AUC:        AUC(testProbs, testLabels),
		CumReturn:  CumulativeReturn(stratRets),
		Sharpe:     Sharpe(stratRets),
		Bars:       cfg.WindowTest,
	}
	return foldOutput{fold: fold, returns: stratRets}, nil
}

func predictRange(model mlmodel.Predictor, frame *dataset.Frame, from, to int, features []string) ([]float64, error) {
	out := make([]float64, 0, to-from)
	for i := from; i < to; i++ {
		row, err := frame.RowVector(i, features)
		if err != nil {
			return nil, err
		}
		out = append(out, model.PredictProba(row))
	}
	return out, nil
}

// SelectThreshold scans the grid and keeps the threshold with the best
// (sharpe, cumulative return, auc) triple compared lexicographically.
func SelectThreshold(grid []float64, probs []float64, labels []int, rets []float64) float64 {
	type score struct {
		sharpe, cum, auc float64
	}
	auc := AUC(probs, labels)
	best := grid[0]
	var bestScore *score
	for _, thr := range grid {
		stratRets := StrategyReturns(probs, rets, thr)
		s := score{
			sharpe: Sharpe(stratRets),
			cum:    CumulativeReturn(stratRets),
			auc:    auc,
		}
		if bestScore == nil || betterScore(s.sharpe, s.cum, s.auc, bestScore.sharpe, bestScore.cum, bestScore.auc) {
			best = thr
			bestScore = &s
		}
	}
	return best
}

func betterScore(sharpe, cum, auc, bSharpe, bCum, bAUC float64) bool {
	if sharpe != bSharpe {
		return sharpe > bSharpe
	}
	if cum != bCum {
		return cum > bCum
	}
	return auc > bAUC
}
