package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexical_ScoresByOverlap(t *testing.T) {
	r := NewLexical()
	ctx := context.Background()

	scores, err := r.Score(ctx, "favorite programming language", []string{
		"my favorite programming language is Go",
		"the weather today is sunny",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
}

func TestLexical_EmptyQueryYieldsZeroScores(t *testing.T) {
	r := NewLexical()
	ctx := context.Background()

	scores, err := r.Score(ctx, "", []string{"anything", "something else"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scores)
}
