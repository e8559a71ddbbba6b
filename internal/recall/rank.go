package recall

import (
	"context"
	"fmt"
	"math"

	"github.com/hindsightdb/hindsight/internal/model"
)

// scoredUnit pairs a unit with its blended cross-encoder/activation score.
type scoredUnit struct {
	unit  model.MemoryUnit
	final float64
}

// rerankAndBlend cross-encodes the shortlist against query and blends
// cross-encoder and activation scores.
func (e *Engine) rerankAndBlend(ctx context.Context, query string, shortlist []model.MemoryUnit, activation map[string]float64) ([]scoredUnit, error) {
	if len(shortlist) == 0 {
		return nil, nil
	}
	passages := make([]string, len(shortlist))
	for i, u := range shortlist {
		passages[i] = u.Text
	}
	crossScores, err := e.reranker.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder rerank: %w", err)
	}

	maxCross := 0.0
	for _, s := range crossScores {
		if s > maxCross {
			maxCross = s
		}
	}

	blend := e.cfg.CrossEncoderBlend
	if blend <= 0 {
		blend = 0.6
	}

	out := make([]scoredUnit, len(shortlist))
	for i, u := range shortlist {
		normCross := 0.0
		if maxCross > 0 {
			normCross = crossScores[i] / maxCross
		}
		out[i] = scoredUnit{unit: u, final: blend*normCross + (1-blend)*activation[u.ID]}
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// mmrSelect greedily picks units maximizing marginal relevance until the
// token budget is spent or candidates are exhausted. Token cost is
// estimated as len(text)*tokensPerChar + tokenConstant, matching the
// estimator recall's callers are told to expect.
func mmrSelect(candidates []scoredUnit, lambda float64, maxTokens int, tokensPerChar float64, tokenConstant float64) []model.MemoryUnit {
	remaining := append([]scoredUnit{}, candidates...)
	var selected []model.MemoryUnit
	usedTokens := 0.0

	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := -math.MaxFloat64
		for i, c := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := cosine(c.unit.Embedding, s.Embedding); sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*c.final - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}

		pick := remaining[bestIdx]
		cost := float64(len(pick.unit.Text))*tokensPerChar + tokenConstant
		if maxTokens > 0 && usedTokens+cost > float64(maxTokens) && len(selected) > 0 {
			break
		}
		selected = append(selected, pick.unit)
		usedTokens += cost
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}
