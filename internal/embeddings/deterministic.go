package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// Deterministic is a Provider that derives vectors from text hashes
// instead of running a model. It gives stable, reproducible output for
// tests that exercise similarity search without pulling in ONNX, while
// still spreading dissimilar strings apart in vector space.
type Deterministic struct {
	dim int
}

// NewDeterministic returns a Deterministic provider with the given vector
// dimension.
func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = 32
	}
	return &Deterministic{dim: dim}
}

func (d *Deterministic) embedOne(text string) []float32 {
	out := make([]float32, d.dim)
	h := fnv.New64a()
	for i := 0; i < d.dim; i++ {
		h.Reset()
		_, _ = h.Write([]byte(text))
		_, _ = h.Write([]byte{byte(i)})
		v := h.Sum64()
		// Map to [-1, 1] deterministically.
		out[i] = float32(int64(v%2000001)-1000000) / 1000000
	}
	normalize(out)
	return out
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

func (d *Deterministic) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errEmptyInput("texts")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne("doc:" + t)
	}
	return out, nil
}

func (d *Deterministic) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errEmptyInput("text")
	}
	return d.embedOne("query:" + text), nil
}

func (d *Deterministic) Dimension() int { return d.dim }

func (d *Deterministic) Close() error { return nil }

var _ Provider = (*Deterministic)(nil)
