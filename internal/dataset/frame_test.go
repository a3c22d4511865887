package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}
	frame, err := NewFrame(times, map[string][]float64{
		ColClose:    {100, 101, 102},
		"f1":        {0.1, 0.2, 0.3},
		LabelColumn: {0, 1, 1},
	}, []string{ColClose, "f1", LabelColumn})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return frame
}

func TestNewFrameValidation(t *testing.T) {
	if _, err := NewFrame(nil, nil, nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("empty frame err = %v, want ErrUnavailable", err)
	}
	times := []time.Time{time.Now(), time.Now().Add(time.Hour)}
	if _, err := NewFrame(times, map[string][]float64{"f1": {1}}, []string{"f1"}); err == nil {
		t.Fatalf("ragged column accepted")
	}
	if _, err := NewFrame(times, map[string][]float64{}, []string{"f1"}); err == nil {
		t.Fatalf("declared-but-absent column accepted")
	}
}

func TestRowVectorMismatch(t *testing.T) {
	frame := sampleFrame(t)
	_, err := frame.RowVector(0, []string{"f1", "f2"})
	var mismatch *FeatureMismatchError
	if !errors.As(err, &mismatch) || mismatch.Column != "f2" {
		t.Fatalf("err = %v, want FeatureMismatchError for f2", err)
	}
}

func TestLabels(t *testing.T) {
	frame := sampleFrame(t)
	labels, err := frame.Labels(0, 3)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	want := []int{0, 1, 1}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestFeatureColumnsSkipOHLCVAndLabel(t *testing.T) {
	frame := sampleFrame(t)
	features := frame.FeatureColumns()
	if len(features) != 1 || features[0] != "f1" {
		t.Fatalf("features = %v, want [f1]", features)
	}
}

func TestTailAndIndexOf(t *testing.T) {
	frame := sampleFrame(t)
	tail := frame.Tail(2)
	if tail.Len() != 2 {
		t.Fatalf("tail len = %d, want 2", tail.Len())
	}
	if !tail.Time(0).Equal(frame.Time(1)) {
		t.Fatalf("tail starts at %v, want %v", tail.Time(0), frame.Time(1))
	}

	if idx := frame.IndexOf(frame.Time(2)); idx != 2 {
		t.Fatalf("IndexOf last = %d, want 2", idx)
	}
	if idx := frame.IndexOf(frame.Time(0).Add(time.Minute)); idx != -1 {
		t.Fatalf("IndexOf unknown time = %d, want -1", idx)
	}
}

func TestCSVProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.csv")
	csv := "time,open,high,low,close,volume,f1,target\n" +
		"1735689600,100,101,99,100.5,1000,0.4,1\n" +
		"1735693200,100.5,102,100,101,1100,0.6,0\n" +
		"bad-row,1,2,3,4,5,6,7\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	p := &CSVProvider{Path: path}
	frame, err := p.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if frame.Len() != 2 {
		t.Fatalf("rows = %d, want 2 (bad row dropped)", frame.Len())
	}
	v, err := frame.Value("f1", 1)
	if err != nil || v != 0.6 {
		t.Fatalf("f1[1] = %v, %v", v, err)
	}
	if !frame.HasColumn(ColVolume) {
		t.Fatalf("volume column missing")
	}

	recent, err := p.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent.Len() != 1 || !recent.Time(0).Equal(frame.Time(1)) {
		t.Fatalf("Recent returned wrong rows")
	}
}

func TestCSVProviderSortsUnorderedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.csv")
	// Out of order, with one bar exported twice; the later row wins.
	csv := "time,open,high,low,close,volume,f1,target\n" +
		"1735696800,102,103,101,102.5,1200,0.7,1\n" +
		"1735689600,100,101,99,100.5,1000,0.4,1\n" +
		"1735693200,100.5,102,100,101,1100,0.6,0\n" +
		"1735693200,100.5,102,100,101.5,1150,0.9,0\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	p := &CSVProvider{Path: path}
	frame, err := p.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if frame.Len() != 3 {
		t.Fatalf("rows = %d, want 3 (duplicate bar collapsed)", frame.Len())
	}
	for i := 1; i < frame.Len(); i++ {
		if !frame.Time(i).After(frame.Time(i - 1)) {
			t.Fatalf("rows not ascending: %v then %v", frame.Time(i-1), frame.Time(i))
		}
	}
	if v, err := frame.Value("f1", 1); err != nil || v != 0.9 {
		t.Fatalf("f1[1] = %v, %v, want 0.9 from the later duplicate", v, err)
	}
	if idx := frame.IndexOf(time.Unix(1735696800, 0).UTC()); idx != 2 {
		t.Fatalf("IndexOf latest bar = %d, want 2", idx)
	}
}

func TestCSVProviderMissingFile(t *testing.T) {
	p := &CSVProvider{Path: filepath.Join(t.TempDir(), "missing.csv")}
	if _, err := p.History(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
