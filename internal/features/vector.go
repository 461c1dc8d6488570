// Package features computes the model input vector for one market.
//
// The feature schema is frozen at model-training time: the model artifacts
// ship the exact ordered list of feature names, and this package must produce
// a value for every one of them, in that order. Producing anything else is a
// programming or deployment error (runtime/artifact version skew) and fails
// the market with types.ErrFeatureShape.
//
// Feature families:
//   - market:    price, spread, volume, liquidity, time-to-resolution, category
//   - sentiment: decay-weighted news/social sentiment and counts
//   - temporal:  cyclical encodings of hour-of-day and day-of-week
//   - embed_*:   hashed text embedding of the question plus headlines
package features

import (
	"fmt"
	"strings"
	"time"

	"polymarket-pred/pkg/types"
)

// Pipeline assembles feature vectors against a frozen name schema.
type Pipeline struct {
	names    []string
	embedder *embedder // nil when the schema has no embed_ features
}

// NewPipeline creates a pipeline for the given frozen feature names. The
// embedding dimension is derived from how many embed_* names the schema
// carries.
func NewPipeline(frozenNames []string) *Pipeline {
	embedDims := 0
	for _, n := range frozenNames {
		if strings.HasPrefix(n, "embed_") {
			embedDims++
		}
	}

	p := &Pipeline{names: frozenNames}
	if embedDims > 0 {
		p.embedder = newEmbedder(embedDims)
	}
	return p
}

// Names returns the frozen feature name list, in order.
func (p *Pipeline) Names() []string {
	return p.names
}

// Build computes the feature vector for one market bundle. The result always
// matches the frozen schema exactly; a name the pipeline cannot compute means
// the runtime is out of sync with the model artifacts and yields
// types.ErrFeatureShape.
func (p *Pipeline) Build(data types.AggregatedData, now time.Time) (types.FeatureVector, error) {
	computed := make(map[string]float64, len(p.names))

	marketFeatures(computed, data, now)
	sentimentFeatures(computed, data.News, data.Social, now)
	temporalFeatures(computed, now)
	if p.embedder != nil {
		p.embedder.embed(computed, embedText(data))
	}

	values := make([]float64, len(p.names))
	for i, name := range p.names {
		v, ok := computed[name]
		if !ok {
			return types.FeatureVector{}, fmt.Errorf("feature %q: %w", name, types.ErrFeatureShape)
		}
		values[i] = v
	}

	return types.FeatureVector{Names: p.names, Values: values}, nil
}

// embedText is the text the question embedding is computed over: the question
// itself plus recent headlines.
func embedText(data types.AggregatedData) string {
	var b strings.Builder
	b.WriteString(data.Market.Question)
	for _, n := range data.News {
		b.WriteByte(' ')
		b.WriteString(n.Title)
	}
	return b.String()
}
