package features

import (
	"fmt"
	"hash/fnv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// embedder produces a deterministic feature-hashed text embedding: unigrams
// and bigrams are hashed into a fixed number of buckets with a sign hash, then
// the vector is L2-normalized. The same text always embeds identically, which
// matters because the training pipeline used the same scheme.
type embedder struct {
	dims  int
	names []string // embed_000 ... embed_NNN, cached
}

func newEmbedder(dims int) *embedder {
	names := make([]string, dims)
	for i := range names {
		names[i] = fmt.Sprintf("embed_%03d", i)
	}
	return &embedder{dims: dims, names: names}
}

// embed writes the embedding of text into out under the embed_* names.
func (e *embedder) embed(out map[string]float64, text string) {
	vec := make([]float64, e.dims)

	tokens := tokenize(text)
	for i, tok := range tokens {
		e.addTerm(vec, tok)
		if i+1 < len(tokens) {
			e.addTerm(vec, tok+"_"+tokens[i+1])
		}
	}

	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}

	for i, name := range e.names {
		out[name] = vec[i]
	}
}

// addTerm hashes a term into its bucket with a ±1 sign derived from a second
// hash, which keeps collisions from biasing buckets positive.
func (e *embedder) addTerm(vec []float64, term string) {
	h := fnv.New64a()
	h.Write([]byte(term))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dims))
	sign := 1.0
	if (sum>>32)&1 == 1 {
		sign = -1
	}
	vec[bucket] += sign
}

func tokenize(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?\"'():;$")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
