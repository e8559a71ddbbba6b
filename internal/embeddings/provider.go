// Package embeddings generates the fixed-dimension unit vectors that back
// similarity search across memory units, entities, and reflections.
// Grounded on the FastEmbed local-ONNX provider shape, adapted to
// a single narrow contract and the error taxonomy.
package embeddings

import "context"

// Provider embeds batches of documents and single queries. Document and
// query embeddings may use different prefixes internally (asymmetric
// retrieval models), but both land in the same vector space.
type Provider interface {
	// EmbedDocuments embeds texts for storage (retain's extraction output,
	// entity canonical names, reflection content).
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query string for similarity search.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the fixed vector length this provider produces.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}
