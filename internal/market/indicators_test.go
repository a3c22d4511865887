package market

import (
	"math"
	"testing"
	"time"
)

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	if got != 4 {
		t.Fatalf("SMA = %v, want 4", got)
	}
	if _, err := SMA([]float64{1, 2}, 3); err == nil {
		t.Fatalf("short series accepted")
	}
	if _, err := SMA([]float64{1, 2}, 0); err == nil {
		t.Fatalf("zero period accepted")
	}
}

func TestATRUsesPrevClose(t *testing.T) {
	// A gap between prev close and the next bar's range widens the true
	// range beyond high-low.
	highs := []float64{101, 101, 111}
	lows := []float64{99, 99, 109}
	closes := []float64{100, 100, 110}
	got, err := ATR(highs, lows, closes, 1)
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	// TR of last bar = max(111-109, |111-100|, |109-100|) = 11
	if got != 11 {
		t.Fatalf("ATR = %v, want 11", got)
	}
}

func TestATRFraction(t *testing.T) {
	highs := []float64{100.5, 100.5, 100.5}
	lows := []float64{99.5, 99.5, 99.5}
	closes := []float64{100, 100, 100}
	got, err := ATRFraction(highs, lows, closes, 2)
	if err != nil {
		t.Fatalf("ATRFraction: %v", err)
	}
	if math.Abs(got-0.01) > 1e-12 {
		t.Fatalf("fraction = %v, want 0.01", got)
	}
}

func TestRelativeVolume(t *testing.T) {
	volumes := []float64{100, 100, 100, 100, 200}
	got, err := RelativeVolume(volumes, 4)
	if err != nil {
		t.Fatalf("RelativeVolume: %v", err)
	}
	if got != 2 {
		t.Fatalf("relative volume = %v, want 2", got)
	}
}

func TestBodyFraction(t *testing.T) {
	if got := BodyFraction(100, 105); math.Abs(got-5.0/105) > 1e-9 {
		t.Fatalf("body fraction = %v, want 5/105", got)
	}
	if got := BodyFraction(100, 0); got != 0 {
		t.Fatalf("zero close body fraction = %v, want 0", got)
	}
}

func TestTimeframeDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := TimeframeDuration(tt.in)
		if err != nil {
			t.Fatalf("TimeframeDuration(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("TimeframeDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "h", "0h", "5x", "abc"} {
		if _, err := TimeframeDuration(bad); err == nil {
			t.Fatalf("TimeframeDuration(%q) accepted", bad)
		}
	}
}
