// Package retain implements the retention pipeline: document upsert,
// chunking, parallel fact extraction, deduplication, bulk insertion, and
// the link-synthesis phases (entity, temporal, semantic, causal).
// Grounded on original_source/memory/operations/link_operations.py for
// the batched link-synthesis shape.
package retain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/entityresolver"
	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/logging"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
	"github.com/hindsightdb/hindsight/internal/taskqueue"
)

// Item is one piece of content to retain.
type Item struct {
	Text      string
	Context   string
	EventDate *time.Time
	Tags      []string
	Metadata  map[string]string
}

// BatchOptions configures a retain_batch call.
type BatchOptions struct {
	DocumentID   string
	DocumentTags []string
	Upsert       bool
}

// Consolidator is the subset of consolidation.Engine the pipeline needs,
// kept as an interface here so retain doesn't import consolidation
// directly and tests can inject a stub.
type Consolidator interface {
	Run(ctx context.Context, bankID string) error
}

// Pipeline implements the retention pipeline end to end.
type Pipeline struct {
	store        store.Store
	embedder     embeddings.Provider
	llmc         llm.Client
	resolver     *entityresolver.Resolver
	tasks        taskqueue.Backend
	consolidator Consolidator
	cfg          config.RetainConfig
	logger       *logging.Logger
}

// New builds a Pipeline.
func New(s store.Store, embedder embeddings.Provider, llmc llm.Client, resolver *entityresolver.Resolver, tasks taskqueue.Backend, consolidator Consolidator, cfg config.RetainConfig, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{store: s, embedder: embedder, llmc: llmc, resolver: resolver, tasks: tasks, consolidator: consolidator, cfg: cfg, logger: logger}
}

// Retain is the single-item convenience wrapper over RetainBatch.
func (p *Pipeline) Retain(ctx context.Context, bankID string, item Item) (string, error) {
	return p.RetainBatch(ctx, bankID, []Item{item}, BatchOptions{Upsert: true})
}

// RetainBatch creates an operation row, submits the batch to the task
// backend, and returns the operation id. A sync backend blocks until the
// batch (and the consolidation it schedules) finish; an async backend
// returns as soon as the operation is queued.
func (p *Pipeline) RetainBatch(ctx context.Context, bankID string, items []Item, opts BatchOptions) (string, error) {
	if bankID == "" {
		return "", errs.New(errs.KindInvalidInput, "bank_id is required")
	}
	if len(items) == 0 {
		return "", errs.New(errs.KindInvalidInput, "at least one item is required")
	}

	op := model.Operation{ID: uuid.NewString(), BankID: bankID, Type: model.OperationRetain, Status: model.OperationPending}
	if err := p.store.CreateOperation(ctx, op); err != nil {
		return "", fmt.Errorf("retain: create operation: %w", err)
	}

	err := p.tasks.Submit(ctx, taskqueue.Task{
		Kind:   "retain",
		BankID: bankID,
		Run: func(ctx context.Context) error {
			return p.runOperation(ctx, bankID, op.ID, items, opts)
		},
	})
	if err != nil {
		_ = p.store.UpdateOperationStatus(ctx, bankID, op.ID, model.OperationFailed, "", err.Error())
		return "", fmt.Errorf("retain: submit: %w", err)
	}
	return op.ID, nil
}

func (p *Pipeline) runOperation(ctx context.Context, bankID, operationID string, items []Item, opts BatchOptions) error {
	_ = p.store.UpdateOperationStatus(ctx, bankID, operationID, model.OperationRunning, "", "")

	unitIDs, err := p.run(ctx, bankID, items, opts)
	if err != nil {
		_ = p.store.UpdateOperationStatus(ctx, bankID, operationID, model.OperationFailed, "", err.Error())
		return err
	}

	result := fmt.Sprintf(`{"unit_ids":%q}`, unitIDs)
	_ = p.store.UpdateOperationStatus(ctx, bankID, operationID, model.OperationCompleted, result, "")

	if p.consolidator != nil {
		_ = p.tasks.Submit(ctx, taskqueue.Task{
			Kind:   taskqueue.KindConsolidation,
			BankID: bankID,
			Run:    func(ctx context.Context) error { return p.consolidator.Run(ctx, bankID) },
		})
	}
	return nil
}

// chunkRef ties an extracted fact back to the item and event date it came
// from.
type chunkRef struct {
	item  Item
	index int
}

// factCandidate pairs one extracted fact with the item it was extracted
// from, before dedup/insertion decides its final unit id.
type factCandidate struct {
	fact extractedFact
	item Item
}

// run performs the actual pipeline stages synchronously and returns the
// ids of every unit the batch resolved to (new or deduped-existing).
func (p *Pipeline) run(ctx context.Context, bankID string, items []Item, opts BatchOptions) ([]string, error) {
	// Stage 1: document upsert.
	if opts.DocumentID != "" {
		if _, err := p.store.GetDocument(ctx, bankID, opts.DocumentID); err == nil {
			if err := p.store.DeleteUnitsByDocument(ctx, bankID, opts.DocumentID); err != nil {
				return nil, fmt.Errorf("retain: delete prior units: %w", err)
			}
		}
		var combined string
		for i, it := range items {
			if i > 0 {
				combined += "\n\n"
			}
			combined += it.Text
		}
		meta := map[string]string{}
		doc := model.Document{ID: opts.DocumentID, BankID: bankID, OriginalText: combined, Metadata: meta}
		if err := p.store.UpsertDocument(ctx, bankID, doc); err != nil {
			return nil, fmt.Errorf("retain: upsert document: %w", err)
		}
	}

	// Stage 2: chunking.
	maxChars := p.cfg.ChunkMaxChars
	if maxChars <= 0 {
		maxChars = 50_000
	}
	type chunk struct {
		text string
		ref  chunkRef
	}
	var chunks []chunk
	for i, it := range items {
		for _, c := range splitText(it.Text, maxChars) {
			chunks = append(chunks, chunk{text: c, ref: chunkRef{item: it, index: i}})
		}
	}

	// Stage 3: parallel fact extraction.
	concurrency := p.cfg.MaxExtractionConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([][]extractedFact, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			facts, err := p.extractFacts(gctx, c.text, c.ref.item.Context)
			if err != nil {
				p.logger.Error(gctx, "chunk extraction failed, isolating", zap.Error(err))
				return nil // isolate per-chunk failures; other chunks still persist
			}
			results[i] = facts
			return nil
		})
	}
	_ = g.Wait()

	// Flatten extracted facts into candidate units, carrying the owning
	// item's event date/tags/metadata and document id forward.
	var candidates []factCandidate
	for i, facts := range results {
		for _, f := range facts {
			candidates = append(candidates, factCandidate{fact: f, item: chunks[i].ref.item})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Stage 4: batch embedding.
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.fact.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("retain: embed facts: %w", err)
	}

	dedupThreshold := p.cfg.DedupThreshold
	if dedupThreshold <= 0 {
		dedupThreshold = 0.95
	}

	// Stage 5+6: dedup against existing units, then bulk insert the rest.
	finalIDs := make([]string, len(candidates))
	var newUnits []model.MemoryUnit
	for i, c := range candidates {
		ft := factTypeOf(c.fact.FactType)
		hits, err := p.store.VectorSearchUnits(ctx, bankID, vectors[i], 1, []model.FactType{ft})
		if err != nil {
			return nil, fmt.Errorf("retain: dedup search: %w", err)
		}
		if len(hits) > 0 && hits[0].Score >= dedupThreshold {
			finalIDs[i] = hits[0].Unit.ID
			continue
		}

		id := uuid.NewString()
		finalIDs[i] = id
		u := model.MemoryUnit{
			ID:        id,
			BankID:    bankID,
			Text:      c.fact.Text,
			FactType:  ft,
			Context:   c.item.Context,
			EventDate: eventDateOf(c.fact.EventDate, c.item.EventDate),
			Embedding: vectors[i],
			Tags:      mergedTags(c.item.Tags, opts.DocumentTags),
			Metadata:  c.item.Metadata,
		}
		if opts.DocumentID != "" {
			u.DocumentID = opts.DocumentID
		}
		newUnits = append(newUnits, u)
	}

	if len(newUnits) > 0 {
		if err := p.store.InsertUnits(ctx, bankID, newUnits); err != nil {
			return nil, fmt.Errorf("retain: insert units: %w", err)
		}
	}

	// Entity resolution: resolve every mention across every candidate fact
	// (new or deduped) in one batch, then link each fact's final unit id
	// to its resolved entity ids.
	if err := p.resolveAndLinkEntities(ctx, bankID, candidates, finalIDs); err != nil {
		return nil, fmt.Errorf("retain: resolve entities: %w", err)
	}

	// Causal links, straight from the extraction output, scoped within
	// each chunk's own fact index space.
	if err := p.synthesizeCausalLinks(ctx, bankID, results, finalIDs); err != nil {
		return nil, fmt.Errorf("retain: causal links: %w", err)
	}

	if len(newUnits) > 0 {
		if err := p.synthesizeLinks(ctx, bankID, newUnits); err != nil {
			return nil, fmt.Errorf("retain: synthesize links: %w", err)
		}
	}

	return dedupeStrings(finalIDs), nil
}

func eventDateOf(factDate string, fallback *time.Time) *time.Time {
	if factDate != "" {
		if t, err := time.Parse(time.RFC3339, factDate); err == nil {
			return &t
		}
	}
	return fallback
}

func mergedTags(itemTags, documentTags []string) []string {
	seen := make(map[string]bool, len(itemTags)+len(documentTags))
	var out []string
	for _, t := range append(append([]string{}, itemTags...), documentTags...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func dedupeStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
