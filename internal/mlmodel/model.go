package mlmodel

import (
	"errors"
	"fmt"

	"alphapilot/internal/dataset"
)

// Predictor maps a feature vector to a probability of the positive label.
type Predictor interface {
	PredictProba(features []float64) float64
}

// Trainer fits a fresh classifier. Training is a black box to the rest of
// the engine; the walk-forward engine and promotion protocol only call Train.
type Trainer interface {
	Train(x [][]float64, y []int) (Predictor, error)
}

// Artifact binds a predictor to the feature list it was trained on and the
// decision threshold selected for it. It is validated once at load time.
type Artifact struct {
	Predictor   Predictor
	FeatureList []string
	Threshold   float64
}

func (a *Artifact) Validate() error {
	if a == nil || a.Predictor == nil {
		return errors.New("mlmodel: artifact has no predictor")
	}
	if len(a.FeatureList) == 0 {
		return errors.New("mlmodel: artifact has empty feature list")
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		return fmt.Errorf("mlmodel: threshold %.4f out of (0,1)", a.Threshold)
	}
	return nil
}

// PredictRow evaluates the artifact on row i of the frame. A column the
// model expects but the frame lacks surfaces as a FeatureMismatchError.
func (a *Artifact) PredictRow(frame *dataset.Frame, i int) (float64, error) {
	row, err := frame.RowVector(i, a.FeatureList)
	if err != nil {
		return 0, err
	}
	return a.Predictor.PredictProba(row), nil
}
