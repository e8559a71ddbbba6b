package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic_SameTextSameVector(t *testing.T) {
	p := NewDeterministic(16)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "the cat sat on the mat")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "the cat sat on the mat")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestDeterministic_DifferentTextDifferentVector(t *testing.T) {
	p := NewDeterministic(16)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "cats are great")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "dogs are great")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeterministic_EmptyInputRejected(t *testing.T) {
	p := NewDeterministic(16)
	ctx := context.Background()

	_, err := p.EmbedQuery(ctx, "")
	assert.Error(t, err)

	_, err = p.EmbedDocuments(ctx, nil)
	assert.Error(t, err)
}

func TestDeterministic_DocumentsBatch(t *testing.T) {
	p := NewDeterministic(8)
	ctx := context.Background()

	out, err := p.EmbedDocuments(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Len(t, v, 8)
	}
}
