package backtest

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/dataset"
	"alphapilot/internal/mlmodel"
)

type passthroughModel struct{}

func (passthroughModel) PredictProba(features []float64) float64 { return features[0] }

// passthroughTrainer returns a model that echoes the first feature as the
// probability; training data is ignored. The call counter is atomic because
// folds train concurrently.
type passthroughTrainer struct{ calls atomic.Int64 }

func (t *passthroughTrainer) Train(x [][]float64, y []int) (mlmodel.Predictor, error) {
	t.calls.Add(1)
	return passthroughModel{}, nil
}

func TestFoldCount(t *testing.T) {
	tests := []struct {
		n, train, test, step int
		want                 int
	}{
		{120, 60, 20, 20, 3},
		{100, 60, 40, 10, 1},
		{99, 60, 40, 10, 0},
		{1000, 500, 100, 100, 5},
		{50, 60, 20, 10, 0},
		{80, 60, 20, 1, 1},
		{81, 60, 20, 1, 2},
	}
	for _, tt := range tests {
		if got := FoldCount(tt.n, tt.train, tt.test, tt.step); got != tt.want {
			t.Fatalf("FoldCount(%d,%d,%d,%d) = %d, want %d", tt.n, tt.train, tt.test, tt.step, got, tt.want)
		}
	}
}

func wfFrame(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	times := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeC := make([]float64, n)
	volume := make([]float64, n)
	f1 := make([]float64, n)
	target := make([]float64, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		times[i] = base.Add(time.Duration(i) * time.Hour)
		up := i%2 == 0
		if up {
			f1[i] = 0.9
			target[i] = 1
		} else {
			f1[i] = 0.1
			target[i] = 0
		}
		open[i] = price
		closeC[i] = price
		high[i] = price + 1
		low[i] = price - 1
		volume[i] = 1000
		if up {
			price *= 1.01
		} else {
			price *= 0.995
		}
	}
	frame, err := dataset.NewFrame(times, map[string][]float64{
		dataset.ColOpen: open, dataset.ColHigh: high, dataset.ColLow: low,
		dataset.ColClose: closeC, dataset.ColVolume: volume,
		"f1": f1, dataset.LabelColumn: target,
	}, []string{dataset.ColOpen, dataset.ColHigh, dataset.ColLow, dataset.ColClose, dataset.ColVolume, "f1", dataset.LabelColumn})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return frame
}

func testEngine() (*Engine, *passthroughTrainer) {
	tr := &passthroughTrainer{}
	return &Engine{Trainer: tr, Logger: zap.NewNop()}, tr
}

func TestRunProducesExpectedFolds(t *testing.T) {
	e, tr := testEngine()
	frame := wfFrame(t, 120)
	cfg := Config{
		WindowTrain:      60,
		WindowTest:       20,
		Step:             20,
		ThresholdGrid:    []float64{0.3, 0.5, 0.7},
		ValidationSplit:  0.25,
		MaxCurvePoints:   50,
		MaxParallelFolds: 2,
	}

	res, err := e.Run(context.Background(), frame, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Empty {
		t.Fatalf("unexpected empty result")
	}
	if len(res.Folds) != 3 {
		t.Fatalf("folds = %d, want 3", len(res.Folds))
	}
	// Two fits per fold: inner and refit.
	if got := tr.calls.Load(); got != 6 {
		t.Fatalf("trainer calls = %d, want 6", got)
	}
	for i, f := range res.Folds {
		if f.Index != i {
			t.Fatalf("fold %d out of order (index %d)", i, f.Index)
		}
		if f.AUC < 0.9 {
			t.Fatalf("fold %d AUC = %.3f, want near 1 for a separable feature", i, f.AUC)
		}
		if f.Accuracy < 0.9 {
			t.Fatalf("fold %d accuracy = %.3f, want near 1", i, f.Accuracy)
		}
	}
	if len(res.Curve) == 0 || len(res.Curve) > cfg.MaxCurvePoints {
		t.Fatalf("curve has %d points, want 1..%d", len(res.Curve), cfg.MaxCurvePoints)
	}
	if res.Summary.Folds != 3 {
		t.Fatalf("summary folds = %d, want 3", res.Summary.Folds)
	}
}

func TestRunTooFewBarsIsEmpty(t *testing.T) {
	e, _ := testEngine()
	frame := wfFrame(t, 50)
	cfg := Config{
		WindowTrain:     60,
		WindowTest:      20,
		Step:            20,
		ThresholdGrid:   []float64{0.5},
		ValidationSplit: 0.25,
	}

	res, err := e.Run(context.Background(), frame, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Empty {
		t.Fatalf("want explicit empty result")
	}
	if len(res.Folds) != 0 {
		t.Fatalf("empty result carries %d folds", len(res.Folds))
	}
}

func TestSelectThresholdPrefersSharpe(t *testing.T) {
	// probs alternate with the winning bars at 0.9; a 0.7 threshold only
	// trades the winners while 0.3 also takes every losing bar.
	probs := []float64{0.9, 0.1, 0.9, 0.1, 0.9, 0.1, 0.9, 0.1}
	labels := []int{1, 0, 1, 0, 1, 0, 1, 0}
	rets := []float64{0.02, -0.03, 0.02, -0.03, 0.02, -0.03, 0.02, -0.03}

	got := SelectThreshold([]float64{0.3, 0.7}, probs, labels, rets)
	if got != 0.7 {
		t.Fatalf("selected %v, want 0.7", got)
	}
}

func TestAUC(t *testing.T) {
	perfect := AUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{1, 1, 0, 0})
	if perfect != 1 {
		t.Fatalf("perfect ranking AUC = %v, want 1", perfect)
	}
	inverted := AUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{1, 1, 0, 0})
	if inverted != 0 {
		t.Fatalf("inverted ranking AUC = %v, want 0", inverted)
	}
	degenerate := AUC([]float64{0.5, 0.6}, []int{1, 1})
	if degenerate != 0.5 {
		t.Fatalf("single-class AUC = %v, want 0.5", degenerate)
	}
}

func TestCumulativeReturn(t *testing.T) {
	got := CumulativeReturn([]float64{0.1, -0.05})
	want := 1.1*0.95 - 1
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("cumulative return = %v, want %v", got, want)
	}
}

func TestSharpeFlatSeriesIsZero(t *testing.T) {
	if got := Sharpe([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Fatalf("flat series sharpe = %v, want 0", got)
	}
	if got := Sharpe(nil); got != 0 {
		t.Fatalf("empty sharpe = %v, want 0", got)
	}
}

func TestDownsampleKeepsLastPoint(t *testing.T) {
	curve := make([]float64, 1000)
	for i := range curve {
		curve[i] = float64(i)
	}
	out := Downsample(curve, 100)
	if len(out) != 100 {
		t.Fatalf("downsampled to %d points, want 100", len(out))
	}
	if out[len(out)-1] != curve[len(curve)-1] {
		t.Fatalf("final point %v, want %v", out[len(out)-1], curve[len(curve)-1])
	}
	short := []float64{1, 2, 3}
	if got := Downsample(short, 100); len(got) != 3 {
		t.Fatalf("short curve resized to %d", len(got))
	}
}
