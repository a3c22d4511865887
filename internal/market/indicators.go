package market

import (
	"errors"
	"math"
)

// SMA computes the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// ATR computes the average true range over the last period bars. The series
// must be bar-aligned; the first bar's true range falls back to high-low.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	n := len(closes)
	if n < period+1 || len(highs) != n || len(lows) != n {
		return 0, errors.New("not enough data for ATR calculation")
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			prev := closes[i-1]
			tr = math.Max(tr, math.Max(math.Abs(highs[i]-prev), math.Abs(lows[i]-prev)))
		}
		sum += tr
	}
	return sum / float64(period), nil
}

// ATRFraction is ATR normalized by the last close, the volatility measure the
// regime bands are defined against.
func ATRFraction(highs, lows, closes []float64, period int) (float64, error) {
	atr, err := ATR(highs, lows, closes, period)
	if err != nil {
		return 0, err
	}
	last := closes[len(closes)-1]
	if last <= 0 {
		return 0, errors.New("non-positive close")
	}
	return atr / last, nil
}

// RelativeVolume compares the latest bar's volume to the rolling average of
// the preceding period bars.
func RelativeVolume(volumes []float64, period int) (float64, error) {
	n := len(volumes)
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if n < period+1 {
		return 0, errors.New("not enough data for relative volume")
	}
	sum := 0.0
	for i := n - period - 1; i < n-1; i++ {
		sum += volumes[i]
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 0, nil
	}
	return volumes[n-1] / avg, nil
}

// BodyFraction is the candle body size relative to the close. Flash bars with
// outsized bodies get rejected upstream.
func BodyFraction(open, close float64) float64 {
	if close <= 0 {
		return 0
	}
	return math.Abs(close-open) / close
}
