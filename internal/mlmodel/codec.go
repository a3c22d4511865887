package mlmodel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// artifactDoc is the on-disk shape of a trained model artifact.
type artifactDoc struct {
	Kind        string          `json:"kind"`
	FeatureList []string        `json:"feature_list"`
	Threshold   float64         `json:"threshold"`
	Model       json.RawMessage `json:"model"`
}

const kindLogistic = "logistic"

// SaveArtifact writes the artifact as one JSON document via a temp file and
// rename, so a half-written artifact is never loadable.
func SaveArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	lm, ok := a.Predictor.(*LogisticModel)
	if !ok {
		return fmt.Errorf("mlmodel: cannot serialize predictor of type %T", a.Predictor)
	}
	rawModel, err := json.Marshal(lm)
	if err != nil {
		return err
	}
	doc := artifactDoc{
		Kind:        kindLogistic,
		FeatureList: a.FeatureList,
		Threshold:   a.Threshold,
		Model:       rawModel,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadArtifact reads and validates an artifact document. Validation happens
// here, once; callers never inspect optional fields afterwards.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc artifactDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("mlmodel: malformed artifact %s: %w", path, err)
	}
	if doc.Kind != kindLogistic {
		return nil, fmt.Errorf("mlmodel: unknown artifact kind %q", doc.Kind)
	}
	var lm LogisticModel
	if err := json.Unmarshal(doc.Model, &lm); err != nil {
		return nil, fmt.Errorf("mlmodel: malformed model payload: %w", err)
	}
	if len(lm.Weights) != len(doc.FeatureList) {
		return nil, fmt.Errorf("mlmodel: %d weights for %d features", len(lm.Weights), len(doc.FeatureList))
	}
	a := &Artifact{
		Predictor:   &lm,
		FeatureList: doc.FeatureList,
		Threshold:   doc.Threshold,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
