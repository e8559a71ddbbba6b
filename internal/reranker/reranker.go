// Package reranker scores (query, passage) pairs for recall's rerank phase.
// Grounded on the teacher's TF-IDF reranker, adapted from a
// self-contained sort-and-truncate API to a narrow raw-score contract: the
// recall engine owns blending (0.6*cross + 0.4*activation) and truncation,
// so Score returns unbounded per-passage scores in input order.
package reranker

import "context"

// Reranker scores passages against a query.
type Reranker interface {
	// Score returns one raw relevance score per passage, in the same
	// order as passages. Scores are not normalized or sorted; callers
	// blend and rank them.
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
	// Close releases resources held by the reranker.
	Close() error
}
