// Package model loads gradient-boosted tree artifacts exported by the
// training pipeline and runs the ensemble at prediction time.
//
// An artifact is a JSON file holding the frozen feature name list, a base
// score, and the boosted trees as flat node arrays. Inference walks each tree
// from the root, sums the leaf values onto the base score, and squashes the
// total through a sigmoid into a probability.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Node is one node in a flattened decision tree. Leaf nodes carry Value;
// internal nodes carry a feature index, a split threshold, and child indexes
// into the same array.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
}

// Artifact is one trained model as exported by the training pipeline.
type Artifact struct {
	Name         string   `json:"name"`
	FeatureNames []string `json:"feature_names"`
	BaseScore    float64  `json:"base_score"`
	Trees        [][]Node `json:"trees"`
}

// LoadArtifact reads and validates one model artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}

	if a.Name == "" {
		return nil, fmt.Errorf("artifact %s: missing name", path)
	}
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("artifact %s: empty feature_names", path)
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("artifact %s: no trees", path)
	}
	for ti, tree := range a.Trees {
		for ni, n := range tree {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= len(a.FeatureNames) {
				return nil, fmt.Errorf("artifact %s: tree %d node %d: feature index %d out of range", path, ti, ni, n.Feature)
			}
			if n.Left < 0 || n.Left >= len(tree) || n.Right < 0 || n.Right >= len(tree) {
				return nil, fmt.Errorf("artifact %s: tree %d node %d: child index out of range", path, ti, ni)
			}
		}
	}

	return &a, nil
}

// Predict runs the boosted trees over a feature vector aligned with
// FeatureNames and returns a probability in (0, 1).
func (a *Artifact) Predict(values []float64) float64 {
	score := a.BaseScore
	for _, tree := range a.Trees {
		score += walkTree(tree, values)
	}
	return sigmoid(score)
}

// walkTree descends from the root: values below the threshold go left.
func walkTree(tree []Node, values []float64) float64 {
	i := 0
	for {
		n := tree[i]
		if n.Leaf {
			return n.Value
		}
		if values[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
