package backtest

import "math"

// Accuracy is the fraction of bars where the thresholded prediction matches
// the label.
func Accuracy(probs []float64, labels []int, threshold float64) float64 {
	if len(probs) == 0 || len(probs) != len(labels) {
		return 0
	}
	hits := 0
	for i, p := range probs {
		pred := 0
		if p > threshold {
			pred = 1
		}
		if pred == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(probs))
}

// AUC is the pairwise ranking quality of the probabilities against the
// labels. A degenerate sample with a single class scores 0.5.
func AUC(probs []float64, labels []int) float64 {
	if len(probs) != len(labels) {
		return 0.5
	}
	pos, neg := 0, 0
	for _, y := range labels {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}
	ranked := 0.0
	for i, pi := range probs {
		if labels[i] != 1 {
			continue
		}
		for j, pj := range probs {
			if labels[j] == 1 {
				continue
			}
			switch {
			case pi > pj:
				ranked++
			case pi == pj:
				ranked += 0.5
			}
		}
	}
	return ranked / float64(pos*neg)
}

// StrategyReturns maps per-bar forward returns through the thresholded
// signal: the strategy earns the bar's return when the signal is on, zero
// otherwise.
func StrategyReturns(probs, rets []float64, threshold float64) []float64 {
	n := len(probs)
	if len(rets) < n {
		n = len(rets)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if probs[i] > threshold {
			out[i] = rets[i]
		}
	}
	return out
}

// CumulativeReturn compounds a return series.
func CumulativeReturn(rets []float64) float64 {
	equity := 1.0
	for _, r := range rets {
		equity *= 1 + r
	}
	return equity - 1
}

// Sharpe is the mean return over its standard deviation, zero when the
// series is flat or empty. No annualization; folds are compared against each
// other, not against an external benchmark.
func Sharpe(rets []float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// ForwardReturns builds the one-bar-ahead close-to-close return for each row;
// the final row has no forward bar and returns zero.
func ForwardReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 0; i+1 < len(closes); i++ {
		if closes[i] > 0 {
			out[i] = closes[i+1]/closes[i] - 1
		}
	}
	return out
}

// Downsample reduces a curve to at most maxPoints by stride sampling, always
// keeping the final point.
func Downsample(curve []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(curve) <= maxPoints {
		return curve
	}
	stride := float64(len(curve)) / float64(maxPoints)
	out := make([]float64, 0, maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * stride)
		if idx >= len(curve) {
			idx = len(curve) - 1
		}
		out = append(out, curve[idx])
	}
	out[len(out)-1] = curve[len(curve)-1]
	return out
}
