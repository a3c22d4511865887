package mlmodel

import (
	"errors"
	"math"
)

// LogisticModel is a standardized logistic-regression classifier. It is the
// reference implementation of the model-provider contract; real deployments
// may plug any Predictor in through the same Artifact shape.
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

func (m *LogisticModel) PredictProba(features []float64) float64 {
	if m == nil || len(features) != len(m.Weights) {
		return 0.5
	}
	z := m.Bias
	for i, v := range features {
		z += m.Weights[i] * m.standardize(i, v)
	}
	return sigmoid(z)
}

func (m *LogisticModel) standardize(i int, v float64) float64 {
	if i >= len(m.Means) || i >= len(m.Stds) || m.Stds[i] == 0 {
		return v
	}
	return (v - m.Means[i]) / m.Stds[i]
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// LogisticTrainer fits a LogisticModel with full-batch gradient descent on
// standardized inputs.
type LogisticTrainer struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

func NewLogisticTrainer() *LogisticTrainer {
	return &LogisticTrainer{LearningRate: 0.1, Epochs: 300, L2: 1e-4}
}

func (t *LogisticTrainer) Train(x [][]float64, y []int) (Predictor, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("mlmodel: empty or misaligned training set")
	}
	dims := len(x[0])
	if dims == 0 {
		return nil, errors.New("mlmodel: training rows have no features")
	}
	for _, row := range x {
		if len(row) != dims {
			return nil, errors.New("mlmodel: ragged training matrix")
		}
	}

	lr := t.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	epochs := t.Epochs
	if epochs <= 0 {
		epochs = 300
	}

	means, stds := columnStats(x)
	scaled := make([][]float64, len(x))
	for i, row := range x {
		s := make([]float64, dims)
		for j, v := range row {
			if stds[j] == 0 {
				s[j] = v
			} else {
				s[j] = (v - means[j]) / stds[j]
			}
		}
		scaled[i] = s
	}

	w := make([]float64, dims)
	bias := 0.0
	n := float64(len(scaled))
	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, dims)
		gradB := 0.0
		for i, row := range scaled {
			z := bias
			for j, v := range row {
				z += w[j] * v
			}
			diff := sigmoid(z) - float64(y[i])
			for j, v := range row {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		for j := range w {
			w[j] -= lr * (gradW[j]/n + t.L2*w[j])
		}
		bias -= lr * gradB / n
	}

	return &LogisticModel{Weights: w, Bias: bias, Means: means, Stds: stds}, nil
}

func columnStats(x [][]float64) (means, stds []float64) {
	dims := len(x[0])
	means = make([]float64, dims)
	stds = make([]float64, dims)
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}
	return means, stds
}
