// Package entityresolver deduplicates extracted entity mentions against
// the canonical entities already known in a bank. Grounded on
// hindsight_api's link_operations.py batch-resolution flow: mentions are
// normalized and grouped so only distinct (text, type) pairs pay for an
// embedding call, candidates come from an exact-match lookup plus an ANN
// neighbor search, and entity links are written back in one batch insert
// rather than one row at a time.
package entityresolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/logging"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

// AcceptThreshold is the minimum cosine similarity for a candidate entity
// to be accepted without disambiguation.
const AcceptThreshold = 0.84

// AmbiguityBand is how close the second-best candidate's score must be to
// the best candidate's score before the resolver treats the mention as
// ambiguous and consults the LLM.
const AmbiguityBand = 0.05

// candidateK is how many ANN neighbors are fetched per distinct mention.
const candidateK = 5

// cacheCapacity bounds the per-process resolution cache.
const cacheCapacity = 8192

// Mention is one entity reference extracted from a fact, carried alongside
// the other mentions found in the same unit so the resolver can offer them
// as disambiguation hints.
type Mention struct {
	Text string
	Type model.EntityType
}

// Resolver implements resolve_batch against a Store, an embeddings
// Provider, and an LLM client for ambiguity consults.
type Resolver struct {
	store    store.EntityStore
	embedder embeddings.Provider
	llmc     llm.Client
	logger   *logging.Logger
	cache    *cache
}

// New builds a Resolver. llmc may be nil, in which case ambiguous mentions
// are resolved to the best-scoring candidate without consulting a model.
func New(s store.EntityStore, embedder embeddings.Provider, llmc llm.Client, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		store:    s,
		embedder: embedder,
		llmc:     llmc,
		logger:   logger,
		cache:    newCache(cacheCapacity),
	}
}

// normalize case-folds, strips punctuation, and trims a mention's surface
// text so that "Melanie," and "melanie" group together.
func normalize(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// group collects the distinct (normalized, type) pairs within mentions,
// preserving first-seen order, and maps each back to every mention index
// that shares it.
type group struct {
	key        cacheKey
	normalized string
	entityType model.EntityType
	sampleText string
	indices    []int
}

func groupMentions(bankID string, mentions []Mention) []*group {
	order := make([]*group, 0, len(mentions))
	index := make(map[cacheKey]*group, len(mentions))
	for i, m := range mentions {
		norm := normalize(m.Text)
		key := cacheKey{bankID: bankID, normalized: norm, entityType: string(m.Type)}
		g, ok := index[key]
		if !ok {
			g = &group{key: key, normalized: norm, entityType: m.Type, sampleText: m.Text}
			index[key] = g
			order = append(order, g)
		}
		g.indices = append(g.indices, i)
	}
	return order
}

// ResolveBatch resolves every mention to a canonical entity id, creating
// new entities where no existing candidate is a confident match, and
// returns ids in the same order as mentions.
func (r *Resolver) ResolveBatch(ctx context.Context, bankID string, mentions []Mention, context_ string, unitEventDate time.Time) ([]string, error) {
	if len(mentions) == 0 {
		return nil, nil
	}

	groups := groupMentions(bankID, mentions)

	// Partition into cache hits and groups that need real resolution.
	resolved := make(map[cacheKey]string, len(groups))
	var pending []*group
	for _, g := range groups {
		if id, ok := r.cache.get(g.key); ok {
			resolved[g.key] = id
			continue
		}
		pending = append(pending, g)
	}

	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, g := range pending {
			texts[i] = g.sampleText
		}
		vectors, err := r.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("entityresolver: embed mentions: %w", err)
		}

		for i, g := range pending {
			id, err := r.resolveOne(ctx, bankID, g, vectors[i], mentions, context_)
			if err != nil {
				return nil, fmt.Errorf("entityresolver: resolve %q: %w", g.sampleText, err)
			}
			resolved[g.key] = id
			r.cache.set(g.key, id)
		}
	}

	ids := make([]string, len(mentions))
	for _, g := range groups {
		id := resolved[g.key]
		for _, idx := range g.indices {
			ids[idx] = id
		}
	}
	return ids, nil
}

// resolveOne decides the entity id for one distinct (normalized, type)
// group: exact match, confident ANN match, LLM-disambiguated match, or a
// freshly created entity.
func (r *Resolver) resolveOne(ctx context.Context, bankID string, g *group, embedding []float32, mentions []Mention, context_ string) (string, error) {
	var candidates []store.ScoredEntity

	exact, err := r.store.GetEntityByNormalizedName(ctx, bankID, g.normalized, g.entityType)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return "", fmt.Errorf("exact match lookup: %w", err)
	}
	if exact != nil {
		candidates = append(candidates, store.ScoredEntity{Entity: *exact, Score: 1.0})
	}

	ann, err := r.store.VectorSearchEntities(ctx, bankID, embedding, candidateK, g.entityType)
	if err != nil {
		return "", fmt.Errorf("ann candidate lookup: %w", err)
	}
	candidates = append(candidates, dedupeCandidates(candidates, ann)...)

	if len(candidates) == 0 {
		return r.createEntity(ctx, bankID, g, embedding)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	best := candidates[0]

	if best.Score < AcceptThreshold {
		return r.createEntity(ctx, bankID, g, embedding)
	}

	ambiguous := len(candidates) > 1 && (best.Score-candidates[1].Score) <= AmbiguityBand
	if !ambiguous || r.llmc == nil {
		return best.Entity.ID, nil
	}

	chosen, err := r.disambiguate(ctx, g, candidates, mentions, context_)
	if err != nil {
		r.logger.Warn(ctx, "entity disambiguation failed, accepting best candidate",
			zap.String("bank_id", bankID), zap.Error(err))
		return best.Entity.ID, nil
	}
	if chosen == "" {
		return r.createEntity(ctx, bankID, g, embedding)
	}
	return chosen, nil
}

// dedupeCandidates drops any ann result whose id already appears in have.
func dedupeCandidates(have []store.ScoredEntity, ann []store.ScoredEntity) []store.ScoredEntity {
	seen := make(map[string]bool, len(have))
	for _, c := range have {
		seen[c.Entity.ID] = true
	}
	out := make([]store.ScoredEntity, 0, len(ann))
	for _, c := range ann {
		if seen[c.Entity.ID] {
			continue
		}
		seen[c.Entity.ID] = true
		out = append(out, c)
	}
	return out
}

func (r *Resolver) createEntity(ctx context.Context, bankID string, g *group, embedding []float32) (string, error) {
	e := model.Entity{
		ID:            uuid.NewString(),
		BankID:        bankID,
		CanonicalName: g.sampleText,
		Type:          g.entityType,
		Embedding:     embedding,
		Aliases:       []string{},
	}
	if err := r.store.InsertEntity(ctx, bankID, e); err != nil {
		return "", fmt.Errorf("create entity: %w", err)
	}
	return e.ID, nil
}

type disambiguateResult struct {
	SelectedID string `json:"selected_id"`
}

// disambiguate asks the LLM to pick among near-tied candidates, returning
// "" when it decides none of them is the right referent.
func (r *Resolver) disambiguate(ctx context.Context, g *group, candidates []store.ScoredEntity, mentions []Mention, context_ string) (string, error) {
	var nearby strings.Builder
	for _, m := range mentions {
		fmt.Fprintf(&nearby, "- %s (%s)\n", m.Text, m.Type)
	}

	var opts strings.Builder
	top := candidates
	if len(top) > 3 {
		top = top[:3]
	}
	for _, c := range top {
		fmt.Fprintf(&opts, "- id=%s name=%q similarity=%.3f\n", c.Entity.ID, c.Entity.CanonicalName, c.Score)
	}

	prompt := fmt.Sprintf(
		"Mention %q (type %s) appears in this context:\n%s\n\nNearby entities mentioned in the same fact:\n%s\n"+
			"Candidate existing entities:\n%s\n"+
			"Pick the candidate id that refers to the same real-world entity as the mention, "+
			"or leave selected_id empty if none of them do.",
		g.sampleText, g.entityType, context_, nearby.String(), opts.String(),
	)

	resp, err := r.llmc.Call(ctx, llm.CallOptions{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		Scope:    "entityresolver.disambiguate",
		ResponseSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"selected_id": map[string]any{"type": "string"}},
			"required":   []string{"selected_id"},
		},
	})
	if err != nil {
		return "", err
	}

	var parsed disambiguateResult
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return "", fmt.Errorf("parse disambiguation response: %w", err)
	}
	for _, c := range candidates {
		if c.Entity.ID == parsed.SelectedID {
			return c.Entity.ID, nil
		}
	}
	return "", nil
}

// LinkUnitsToEntitiesBatch records that each (unit, entity) pair co-occurs,
// in one batched insert.
func (r *Resolver) LinkUnitsToEntitiesBatch(ctx context.Context, bankID string, pairs []model.UnitEntityLink) error {
	if len(pairs) == 0 {
		return nil
	}
	return r.store.LinkUnitsToEntities(ctx, bankID, pairs)
}
