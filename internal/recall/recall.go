// Package recall implements the multi-signal recall engine: seed
// gathering across four concurrent signals, spreading activation over the
// memory-link graph, tag/temporal filtering, cross-encoder reranking, MMR
// diversification, and token-budget truncation, with an optional
// structured trace of every stage.
package recall

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/queryanalyzer"
	"github.com/hindsightdb/hindsight/internal/reranker"
	"github.com/hindsightdb/hindsight/internal/store"
)

// IncludeOptions selects auxiliary result sets beyond the ranked units.
type IncludeOptions struct {
	Entities     bool
	Reflections  bool
	MentalModels bool
}

// Request configures one recall call.
type Request struct {
	BankID        string
	Query         string
	FactTypes     []model.FactType
	Tags          []string
	TagsMatchMode model.TagMatchMode
	MaxTokens     int
	Budget        config.RecallBudgetLevel
	EnableTrace   bool
	Include       IncludeOptions
	// ReferenceTime anchors temporal-constraint extraction; defaults to
	// time.Now() when zero.
	ReferenceTime time.Time
}

// Result is everything one recall call returns.
type Result struct {
	Results      []model.MemoryUnit
	Entities     []model.Entity
	Reflections  []model.Reflection
	MentalModels []model.MemoryUnit
	Trace        *Trace
}

// Engine implements the recall pipeline end to end.
type Engine struct {
	store    store.Store
	embedder embeddings.Provider
	reranker reranker.Reranker
	analyzer queryanalyzer.Analyzer
	cfg      config.RecallConfig
}

// New builds an Engine.
func New(s store.Store, embedder embeddings.Provider, rr reranker.Reranker, analyzer queryanalyzer.Analyzer, cfg config.RecallConfig) *Engine {
	return &Engine{store: s, embedder: embedder, reranker: rr, analyzer: analyzer, cfg: cfg}
}

// Recall runs the full pipeline. It always returns a result, even for an
// empty bank or a query with no matches; storage errors are the only
// failure mode.
func (e *Engine) Recall(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	params, ok := e.cfg.Budgets[req.Budget]
	if !ok {
		params, ok = e.cfg.Budgets[config.BudgetMid]
		if !ok {
			params = config.RecallBudgetParams{CandidateK: 150, ActivationRounds: 2, Shortlist: 60, MMRLambda: 0.5}
		}
	}

	var trace *Trace
	if req.EnableTrace {
		trace = newTrace()
		trace.QueryInfo = QueryInfo{Query: req.Query, BankID: req.BankID, Budget: string(req.Budget)}
	}

	refTime := req.ReferenceTime
	if refTime.IsZero() {
		refTime = time.Now()
	}
	var constraint *queryanalyzer.Constraint
	if c, found := e.analyzer.Analyze(req.Query, refTime); found {
		constraint = c
		if trace != nil {
			trace.QueryInfo.TemporalStart = &c.Start
			trace.QueryInfo.TemporalEnd = &c.End
		}
	}

	seedStart := time.Now()
	units, seedScores, signals, err := e.gatherSeeds(ctx, req.BankID, req.Query, req.FactTypes, params.CandidateK)
	if err != nil {
		return nil, fmt.Errorf("recall: gather seeds: %w", err)
	}
	if trace != nil {
		recordSeedTrace(trace, signals)
		trace.PhaseMetrics = append(trace.PhaseMetrics, PhaseMetric{Phase: "seed_gathering", DurationMS: time.Since(seedStart).Milliseconds(), OutputCount: len(units)})
	}

	if len(seedScores) == 0 {
		if trace != nil {
			trace.Summary = Summary{TotalDurationMS: time.Since(start).Milliseconds()}
		}
		return &Result{Results: []model.MemoryUnit{}, Trace: trace}, nil
	}

	actStart := time.Now()
	activation, err := e.spreadActivation(ctx, req.BankID, units, seedScores, params.ActivationRounds, params.CandidateK, e.cfg.ActivationDecay, trace)
	if err != nil {
		return nil, fmt.Errorf("recall: spreading activation: %w", err)
	}
	if trace != nil {
		trace.PhaseMetrics = append(trace.PhaseMetrics, PhaseMetric{Phase: "spreading_activation", DurationMS: time.Since(actStart).Milliseconds(), InputCount: len(seedScores), OutputCount: len(activation)})
	}

	var filtered []model.MemoryUnit
	for id := range activation {
		u, ok := units[id]
		if !ok {
			continue
		}
		if !tagsMatch(u.Tags, req.Tags, req.TagsMatchMode) {
			continue
		}
		if constraint != nil && u.EventDate != nil && (u.EventDate.Before(constraint.Start) || u.EventDate.After(constraint.End)) {
			continue
		}
		filtered = append(filtered, u)
	}
	if trace != nil {
		trace.PruningDecisions = append(trace.PruningDecisions, PruningDecision{Stage: "tag_and_temporal_filter", Before: len(activation), After: len(filtered)})
	}

	sort.Slice(filtered, func(i, j int) bool {
		ai, aj := activation[filtered[i].ID], activation[filtered[j].ID]
		if ai != aj {
			return ai > aj
		}
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})

	shortlist := filtered
	if len(shortlist) > params.Shortlist {
		shortlist = shortlist[:params.Shortlist]
	}
	if trace != nil {
		trace.PruningDecisions = append(trace.PruningDecisions, PruningDecision{Stage: "shortlist", Before: len(filtered), After: len(shortlist)})
	}

	rerankStart := time.Now()
	blended, err := e.rerankAndBlend(ctx, req.Query, shortlist, activation)
	if err != nil {
		return nil, fmt.Errorf("recall: rerank: %w", err)
	}
	if trace != nil {
		trace.PhaseMetrics = append(trace.PhaseMetrics, PhaseMetric{Phase: "cross_encoder_rerank", DurationMS: time.Since(rerankStart).Milliseconds(), InputCount: len(shortlist), OutputCount: len(blended)})
	}

	sort.Slice(blended, func(i, j int) bool { return blended[i].final > blended[j].final })

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.cfg.DefaultMaxTokens
	}
	mmrStart := time.Now()
	selected := mmrSelect(blended, params.MMRLambda, maxTokens, e.cfg.TokensPerChar, float64(e.cfg.TokenConstant))
	if selected == nil {
		selected = []model.MemoryUnit{}
	}
	if trace != nil {
		trace.PhaseMetrics = append(trace.PhaseMetrics, PhaseMetric{Phase: "mmr_and_budget", DurationMS: time.Since(mmrStart).Milliseconds(), InputCount: len(blended), OutputCount: len(selected)})
	}

	result := &Result{Results: selected}

	if req.Include.Entities {
		result.Entities = e.collectEntities(ctx, req.BankID, selected)
	}
	if req.Include.Reflections {
		result.Reflections = e.recallReflections(ctx, req.BankID, req.Query, req.Tags, params.Shortlist)
	}
	if req.Include.MentalModels {
		result.MentalModels = e.recallMentalModels(ctx, req.BankID, req.Query, params.Shortlist)
	}

	if trace != nil {
		trace.Summary = Summary{SeedCount: len(seedScores), ShortlistCount: len(shortlist), FinalCount: len(selected), TotalDurationMS: time.Since(start).Milliseconds()}
		result.Trace = trace
	}

	return result, nil
}

// collectEntities unions the entities referenced by the final result set.
// Lookup failures are swallowed: this is a supplementary output, not part
// of recall's critical path.
func (e *Engine) collectEntities(ctx context.Context, bankID string, units []model.MemoryUnit) []model.Entity {
	seen := map[string]bool{}
	out := []model.Entity{}
	for _, u := range units {
		ents, err := e.store.EntitiesForUnit(ctx, bankID, u.ID)
		if err != nil {
			continue
		}
		for _, ent := range ents {
			if seen[ent.ID] {
				continue
			}
			seen[ent.ID] = true
			out = append(out, ent)
		}
	}
	return out
}

func (e *Engine) recallReflections(ctx context.Context, bankID, query string, tags []string, k int) []model.Reflection {
	qEmb, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return []model.Reflection{}
	}
	hits, err := e.store.VectorSearchReflections(ctx, bankID, qEmb, k, tags)
	if err != nil {
		return []model.Reflection{}
	}
	out := make([]model.Reflection, len(hits))
	for i, h := range hits {
		out[i] = h.Reflection
	}
	return out
}

func (e *Engine) recallMentalModels(ctx context.Context, bankID, query string, k int) []model.MemoryUnit {
	qEmb, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return []model.MemoryUnit{}
	}
	hits, err := e.store.MentalModelsByEmbedding(ctx, bankID, qEmb, k)
	if err != nil {
		return []model.MemoryUnit{}
	}
	out := make([]model.MemoryUnit, len(hits))
	for i, h := range hits {
		out[i] = h.Unit
	}
	return out
}
