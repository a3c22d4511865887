package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"alphapilot/internal/dataset"
	"alphapilot/internal/mlmodel"
	"alphapilot/internal/models"
	"alphapilot/internal/policy"
	"alphapilot/internal/repository"
	"alphapilot/internal/sizing"
)

type fixedPredictor struct{ p float64 }

func (f fixedPredictor) PredictProba([]float64) float64 { return f.p }

func testKey() repository.ModelKey {
	return repository.ModelKey{
		Exchange:    "binance",
		Instrument:  "BTC/USDT",
		Timeframe:   "1h",
		HorizonBars: 4,
	}
}

func testArtifact(p, thr float64) *mlmodel.Artifact {
	return &mlmodel.Artifact{
		Predictor:   fixedPredictor{p: p},
		FeatureList: []string{"f1"},
		Threshold:   thr,
	}
}

// makeFrame builds n calm bars: close 100, range barRange, flat volume. The
// resulting ATR fraction is barRange/100.
func makeFrame(t *testing.T, n int, barRange float64) *dataset.Frame {
	t.Helper()
	times := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeC := make([]float64, n)
	volume := make([]float64, n)
	f1 := make([]float64, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		times[i] = base.Add(time.Duration(i) * time.Hour)
		open[i] = 100
		closeC[i] = 100
		high[i] = 100 + barRange/2
		low[i] = 100 - barRange/2
		volume[i] = 1000
		f1[i] = 0.5
	}
	frame, err := dataset.NewFrame(times, map[string][]float64{
		dataset.ColOpen: open, dataset.ColHigh: high, dataset.ColLow: low,
		dataset.ColClose: closeC, dataset.ColVolume: volume, "f1": f1,
	}, []string{dataset.ColOpen, dataset.ColHigh, dataset.ColLow, dataset.ColClose, dataset.ColVolume, "f1"})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return frame
}

func newTestPipeline(repo repository.Repository) *Pipeline {
	return &Pipeline{Repo: repo, Key: testKey(), Logger: zap.NewNop()}
}

func TestAdmitsCleanBuy(t *testing.T) {
	p := newTestPipeline(&stubRepo{})
	pol := policy.Default()
	frame := makeFrame(t, 40, 1.0)

	dec, err := p.Evaluate(context.Background(), pol, testArtifact(0.75, 0.55), frame, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Signal != SignalBuy {
		t.Fatalf("signal = %q reasons = %v, want buy", dec.Signal, dec.Reasons)
	}
	if len(dec.Reasons) != 0 {
		t.Fatalf("buy carries reasons: %v", dec.Reasons)
	}
	if dec.Regime != sizing.RegimeNormal {
		t.Fatalf("regime = %q, want normal", dec.Regime)
	}
}

func TestProbGapRejection(t *testing.T) {
	p := newTestPipeline(&stubRepo{})
	pol := policy.Default()
	pol.MinProbGap = 0.10
	frame := makeFrame(t, 40, 1.0)

	dec, err := p.Evaluate(context.Background(), pol, testArtifact(0.62, 0.55), frame, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Signal != SignalFlat {
		t.Fatalf("signal = %q, want flat", dec.Signal)
	}
	if len(dec.Reasons) == 0 || dec.Reasons[0] != "prob_gap 0.07 < 0.10" {
		t.Fatalf("reasons = %v, want prob_gap 0.07 < 0.10", dec.Reasons)
	}
}

func TestBelowThresholdRejection(t *testing.T) {
	p := newTestPipeline(&stubRepo{})
	frame := makeFrame(t, 40, 1.0)

	dec, err := p.Evaluate(context.Background(), policy.Default(), testArtifact(0.40, 0.55), frame, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Signal != SignalFlat || len(dec.Reasons) == 0 {
		t.Fatalf("signal = %q reasons = %v, want flat with reason", dec.Signal, dec.Reasons)
	}
}

func TestDeadRegimeBlocks(t *testing.T) {
	p := newTestPipeline(&stubRepo{})
	pol := policy.Default()
	frame := makeFrame(t, 40, 0.1)

	dec, err := p.Evaluate(context.Background(), pol, testArtifact(0.75, 0.55), frame, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Signal != SignalFlat {
		t.Fatalf("signal = %q, want flat in dead regime", dec.Signal)
	}
	if dec.Regime != sizing.RegimeDead {
		t.Fatalf("regime = %q, want dead", dec.Regime)
	}
}

func TestCooldownBlocks(t *testing.T) {
	frame := makeFrame(t, 40, 1.0)
	lastBar := frame.Time(frame.Len() - 1)
	repo := &stubRepo{lastBuy: &models.SignalEvent{
		Signal:  SignalBuy,
		BarTime: lastBar.Add(-time.Hour),
	}}
	p := newTestPipeline(repo)
	pol := policy.Default() // cooldown 240m

	dec, err := p.Evaluate(context.Background(), pol, testArtifact(0.75, 0.55), frame, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Signal != SignalFlat {
		t.Fatalf("signal = %q, want flat during cooldown", dec.Signal)
	}
}

func TestFiltersOnlyNarrow(t *testing.T) {
	// A bar that fails the base threshold must stay flat no matter how the
	// other filters land.
	p := newTestPipeline(&stubRepo{})
	pol := policy.Default()
	pol.MinRelativeVolume = 0
	pol.MaxBodyFraction = 0
	pol.BlockDeadRegime = false
	pol.CooldownMinutes = 0
	frame := makeFrame(t, 40, 1.0)

	dec, err := p.Evaluate(context.Background(), pol, testArtifact(0.50, 0.55), frame, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Signal != SignalFlat {
		t.Fatalf("filters widened flat to %q", dec.Signal)
	}
}

func TestFeatureMismatchAborts(t *testing.T) {
	p := newTestPipeline(&stubRepo{})
	frame := makeFrame(t, 40, 1.0)
	art := &mlmodel.Artifact{
		Predictor:   fixedPredictor{p: 0.75},
		FeatureList: []string{"missing_column"},
		Threshold:   0.55,
	}

	_, err := p.Evaluate(context.Background(), policy.Default(), art, frame, nil)
	var mismatch *dataset.FeatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want FeatureMismatchError", err)
	}
	if mismatch.Column != "missing_column" {
		t.Fatalf("column = %q, want missing_column", mismatch.Column)
	}
}

func TestEvaluationIsIdempotent(t *testing.T) {
	repo := &stubRepo{}
	p := newTestPipeline(repo)
	pol := policy.Default()
	frame := makeFrame(t, 40, 1.0)
	art := testArtifact(0.75, 0.55)

	first, err := p.Evaluate(context.Background(), pol, art, frame, nil)
	if err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	if !first.Created {
		t.Fatalf("first evaluation did not create an event")
	}

	second, err := p.Evaluate(context.Background(), pol, art, frame, nil)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if second.Created {
		t.Fatalf("second evaluation created a duplicate event")
	}
	if len(repo.events) != 1 {
		t.Fatalf("stored %d events, want 1", len(repo.events))
	}
	if second.Signal != first.Signal {
		t.Fatalf("replayed signal %q != original %q", second.Signal, first.Signal)
	}
}
