package model

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"polymarket-pred/pkg/types"
)

// Ensemble combines the loaded model artifacts into one prediction. All
// members share one frozen feature schema; artifacts with a different schema
// are rejected at load time.
type Ensemble struct {
	models          []*Artifact
	weights         map[string]float64 // by artifact name; missing means 1.0
	confidenceFloor float64
	logger          *slog.Logger
}

// LoadDir loads every *.json artifact in dir into an ensemble. At least one
// loadable artifact is required (types.ErrNoModels otherwise), and all
// artifacts must agree on the feature name list.
func LoadDir(dir string, weights map[string]float64, confidenceFloor float64, logger *slog.Logger) (*Ensemble, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob artifacts: %w", err)
	}
	slices.Sort(paths)

	log := logger.With("component", "ensemble")

	var models []*Artifact
	for _, p := range paths {
		a, err := LoadArtifact(p)
		if err != nil {
			log.Warn("skipping unloadable artifact", "path", p, "error", err)
			continue
		}
		models = append(models, a)
		log.Info("model loaded", "name", a.Name, "trees", len(a.Trees), "features", len(a.FeatureNames))
	}

	if len(models) == 0 {
		return nil, fmt.Errorf("dir %s: %w", dir, types.ErrNoModels)
	}

	schema := models[0].FeatureNames
	for _, m := range models[1:] {
		if !slices.Equal(m.FeatureNames, schema) {
			return nil, fmt.Errorf("artifact %s: feature schema differs from %s", m.Name, models[0].Name)
		}
	}

	slices.SortFunc(models, func(a, b *Artifact) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	return &Ensemble{
		models:          models,
		weights:         weights,
		confidenceFloor: confidenceFloor,
		logger:          log,
	}, nil
}

// FeatureNames returns the frozen feature schema shared by all members.
func (e *Ensemble) FeatureNames() []string {
	return e.models[0].FeatureNames
}

// Size returns the number of loaded models.
func (e *Ensemble) Size() int {
	return len(e.models)
}

// Predict runs every member over the feature vector and combines them.
//
// Probability is the weighted mean of member probabilities. Confidence is
// inter-model agreement, clamp(1 - (max - min), 0, 1); with a single member
// agreement is undefined and the configured floor is reported instead.
func (e *Ensemble) Predict(vec types.FeatureVector) (types.EnsemblePrediction, error) {
	if len(vec.Values) != len(e.models[0].FeatureNames) {
		return types.EnsemblePrediction{}, fmt.Errorf(
			"vector has %d values, schema has %d: %w",
			len(vec.Values), len(e.models[0].FeatureNames), types.ErrFeatureShape,
		)
	}

	perModel := make(map[string]float64, len(e.models))
	var weightedSum, weightTotal float64
	minP, maxP := 1.0, 0.0

	for _, m := range e.models {
		p := m.Predict(vec.Values)
		perModel[m.Name] = p

		w := 1.0
		if ew, ok := e.weights[m.Name]; ok {
			w = ew
		}
		weightedSum += w * p
		weightTotal += w

		if p < minP {
			minP = p
		}
		if p > maxP {
			maxP = p
		}
	}

	if weightTotal == 0 {
		return types.EnsemblePrediction{}, fmt.Errorf("ensemble weights sum to zero")
	}

	confidence := e.confidenceFloor
	if len(e.models) > 1 {
		confidence = 1 - (maxP - minP)
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	return types.EnsemblePrediction{
		Probability: weightedSum / weightTotal,
		Confidence:  confidence,
		PerModel:    perModel,
	}, nil
}
