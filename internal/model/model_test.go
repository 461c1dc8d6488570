package model

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"polymarket-pred/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stumpArtifact builds a one-tree artifact splitting on feature 0 at 0.5:
// below → leaf lowLeaf, at-or-above → leaf highLeaf.
func stumpArtifact(name string, lowLeaf, highLeaf float64) Artifact {
	return Artifact{
		Name:         name,
		FeatureNames: []string{"f0", "f1"},
		BaseScore:    0,
		Trees: [][]Node{
			{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
				{Leaf: true, Value: lowLeaf},
				{Leaf: true, Value: highLeaf},
			},
		},
	}
}

func writeArtifact(t *testing.T, dir, file string, a Artifact) {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestArtifactPredict(t *testing.T) {
	t.Parallel()

	a := stumpArtifact("m", -2, 2)

	low := a.Predict([]float64{0.1, 0})
	high := a.Predict([]float64{0.9, 0})

	if want := sigmoid(-2); math.Abs(low-want) > 1e-12 {
		t.Errorf("low prediction = %v, want %v", low, want)
	}
	if want := sigmoid(2); math.Abs(high-want) > 1e-12 {
		t.Errorf("high prediction = %v, want %v", high, want)
	}
}

func TestLoadArtifactValidation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	bad := stumpArtifact("bad", 0, 0)
	bad.Trees[0][0].Feature = 99 // out of range
	writeArtifact(t, dir, "bad.json", bad)

	if _, err := LoadArtifact(filepath.Join(dir, "bad.json")); err == nil {
		t.Error("expected error for out-of-range feature index")
	}

	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArtifact(filepath.Join(dir, "garbage.json")); err == nil {
		t.Error("expected error for unparseable artifact")
	}
}

func TestLoadDirEmpty(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(t.TempDir(), nil, 0.5, discardLogger())
	if !errors.Is(err, types.ErrNoModels) {
		t.Fatalf("err = %v, want ErrNoModels", err)
	}
}

func TestLoadDirSchemaMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeArtifact(t, dir, "a.json", stumpArtifact("a", -1, 1))

	odd := stumpArtifact("b", -1, 1)
	odd.FeatureNames = []string{"f0", "different"}
	writeArtifact(t, dir, "b.json", odd)

	if _, err := LoadDir(dir, nil, 0.5, discardLogger()); err == nil {
		t.Fatal("expected error for mismatched feature schemas")
	}
}

func TestEnsemblePredictWeightedMean(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Two stumps disagreeing on the high side: sigmoid(1) vs sigmoid(3).
	writeArtifact(t, dir, "a.json", stumpArtifact("a", -1, 1))
	writeArtifact(t, dir, "b.json", stumpArtifact("b", -1, 3))

	e, err := LoadDir(dir, map[string]float64{"a": 3, "b": 1}, 0.5, discardLogger())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	pred, err := e.Predict(types.FeatureVector{
		Names:  []string{"f0", "f1"},
		Values: []float64{0.9, 0},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	pa, pb := sigmoid(1), sigmoid(3)
	want := (3*pa + pb) / 4
	if math.Abs(pred.Probability-want) > 1e-12 {
		t.Errorf("Probability = %v, want weighted mean %v", pred.Probability, want)
	}

	wantConf := 1 - (pb - pa)
	if math.Abs(pred.Confidence-wantConf) > 1e-12 {
		t.Errorf("Confidence = %v, want %v", pred.Confidence, wantConf)
	}

	if pred.PerModel["a"] != pa || pred.PerModel["b"] != pb {
		t.Errorf("PerModel = %v", pred.PerModel)
	}
}

func TestEnsembleSingleModelConfidenceFloor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeArtifact(t, dir, "only.json", stumpArtifact("only", -1, 1))

	e, err := LoadDir(dir, nil, 0.5, discardLogger())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	pred, err := e.Predict(types.FeatureVector{
		Names:  []string{"f0", "f1"},
		Values: []float64{0.1, 0},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want floor 0.5 for a single model", pred.Confidence)
	}
}

func TestEnsemblePredictShapeMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeArtifact(t, dir, "m.json", stumpArtifact("m", -1, 1))

	e, err := LoadDir(dir, nil, 0.5, discardLogger())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	_, err = e.Predict(types.FeatureVector{Names: []string{"f0"}, Values: []float64{0.1}})
	if !errors.Is(err, types.ErrFeatureShape) {
		t.Fatalf("err = %v, want ErrFeatureShape", err)
	}
}
