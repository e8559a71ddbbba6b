package recall

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hindsightdb/hindsight/internal/model"
)

// seedSignal is one of the four seed-gathering signals, normalized to
// [0,1] within itself.
type seedSignal struct {
	name   string
	scores map[string]float64 // unit id -> normalized score
}

func normalizeSignal(raw map[string]float64) map[string]float64 {
	max := 0.0
	for _, v := range raw {
		if v > max {
			max = v
		}
	}
	out := make(map[string]float64, len(raw))
	if max <= 0 {
		for k := range raw {
			out[k] = 0
		}
		return out
	}
	for k, v := range raw {
		out[k] = v / max
	}
	return out
}

func factTypeAllowed(ft model.FactType, allowed []model.FactType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == ft {
			return true
		}
	}
	return false
}

func keysOf(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// gatherSeeds runs the four seed signals concurrently and returns every
// unit touched, the weighted-and-normalized per-unit seed score, and the
// per-signal detail used for tracing.
func (e *Engine) gatherSeeds(ctx context.Context, bankID, query string, factTypes []model.FactType, candidateK int) (map[string]model.MemoryUnit, map[string]float64, []seedSignal, error) {
	units := make(map[string]model.MemoryUnit)
	var mu sync.Mutex

	var vecRaw, lexRaw, entityRaw, recentRaw map[string]float64
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		qEmb, err := e.embedder.EmbedQuery(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		hits, err := e.store.VectorSearchUnits(gctx, bankID, qEmb, candidateK, factTypes)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		raw := make(map[string]float64, len(hits))
		mu.Lock()
		for _, h := range hits {
			raw[h.Unit.ID] = h.Score
			units[h.Unit.ID] = h.Unit
		}
		mu.Unlock()
		vecRaw = raw
		return nil
	})

	g.Go(func() error {
		hits, err := e.store.LexicalSearchUnits(gctx, bankID, query, candidateK, factTypes)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		raw := make(map[string]float64, len(hits))
		mu.Lock()
		for _, h := range hits {
			raw[h.Unit.ID] = h.Score
			units[h.Unit.ID] = h.Unit
		}
		mu.Unlock()
		lexRaw = raw
		return nil
	})

	g.Go(func() error {
		matches, err := e.lookupEntityCandidates(gctx, bankID, query)
		if err != nil {
			return fmt.Errorf("entity lookup: %w", err)
		}
		raw := map[string]float64{}
		for entityID, score := range matches {
			unitIDs, err := e.store.UnitsForEntity(gctx, bankID, entityID, "")
			if err != nil {
				return fmt.Errorf("units for entity: %w", err)
			}
			for _, uid := range unitIDs {
				if existing, ok := raw[uid]; !ok || score > existing {
					raw[uid] = score
				}
			}
		}
		if len(raw) > 0 {
			fetched, err := e.store.GetUnitsByIDs(gctx, bankID, keysOf(raw))
			if err != nil {
				return fmt.Errorf("fetch entity-matched units: %w", err)
			}
			mu.Lock()
			for _, u := range fetched {
				if !factTypeAllowed(u.FactType, factTypes) {
					delete(raw, u.ID)
					continue
				}
				units[u.ID] = u
			}
			mu.Unlock()
		}
		entityRaw = raw
		return nil
	})

	g.Go(func() error {
		k := candidateK / 4
		if k <= 0 {
			k = 1
		}
		recent, err := e.store.RecentUnits(gctx, bankID, k, factTypes)
		if err != nil {
			return fmt.Errorf("recent units: %w", err)
		}
		raw := make(map[string]float64, len(recent))
		mu.Lock()
		for i, u := range recent {
			raw[u.ID] = float64(len(recent) - i)
			units[u.ID] = u
		}
		mu.Unlock()
		recentRaw = raw
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	signals := []seedSignal{
		{name: "vector", scores: normalizeSignal(vecRaw)},
		{name: "lexical", scores: normalizeSignal(lexRaw)},
		{name: "entity", scores: normalizeSignal(entityRaw)},
		{name: "recent", scores: normalizeSignal(recentRaw)},
	}
	weights := map[string]float64{
		"vector":  e.cfg.SeedWeightVector,
		"lexical": e.cfg.SeedWeightLexical,
		"entity":  e.cfg.SeedWeightEntity,
		"recent":  e.cfg.SeedWeightRecent,
	}

	merged := make(map[string]float64)
	for _, sig := range signals {
		w := weights[sig.name]
		for unitID, score := range sig.scores {
			merged[unitID] += w * score
		}
	}

	return units, merged, signals, nil
}
