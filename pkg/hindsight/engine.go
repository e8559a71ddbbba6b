// Package hindsight is the top-level facade: it wires every internal
// component into an Engine and exposes the external operation surface
// (bank lifecycle, retain, recall, reflect, and the reflection/directive/
// document/entity/operation CRUD and lookup surfaces) as plain Go methods.
// Grounded on fyrsmithlabs-contextd's top-level service wiring: one
// constructor builds every collaborator from a Config and closes over
// them, and callers never touch the internal packages directly.
package hindsight

import (
	"context"
	"fmt"

	"github.com/hindsightdb/hindsight/internal/annindex"
	"github.com/hindsightdb/hindsight/internal/bank"
	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/consolidation"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/entityresolver"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/logging"
	"github.com/hindsightdb/hindsight/internal/queryanalyzer"
	"github.com/hindsightdb/hindsight/internal/recall"
	"github.com/hindsightdb/hindsight/internal/reflectagent"
	"github.com/hindsightdb/hindsight/internal/reranker"
	"github.com/hindsightdb/hindsight/internal/retain"
	"github.com/hindsightdb/hindsight/internal/store"
	"github.com/hindsightdb/hindsight/internal/store/pg"
	"github.com/hindsightdb/hindsight/internal/taskqueue"
)

// Engine is a running hindsight instance: every subsystem wired together
// behind the operations in this package.
type Engine struct {
	store        store.Store
	bank         *bank.Service
	retain       *retain.Pipeline
	recall       *recall.Engine
	consolidator *consolidation.Engine
	reflect      *reflectagent.Agent
	tasks        taskqueue.Backend
	logger       *logging.Logger
}

// Option customizes engine construction beyond what Config describes,
// chiefly for tests that want an in-memory store or a scripted LLM.
type Option func(*buildState)

type buildState struct {
	store store.Store
	llmc  llm.Client
}

// WithStore overrides the store the engine is built against. When unset,
// New connects to Postgres/Qdrant per cfg.Postgres/cfg.Qdrant.
func WithStore(s store.Store) Option {
	return func(b *buildState) { b.store = s }
}

// WithLLMClient overrides the LLM client, e.g. to inject llm.Mock in
// tests. When unset, New builds an AnthropicClient from cfg.LLM.
func WithLLMClient(c llm.Client) Option {
	return func(b *buildState) { b.llmc = c }
}

// New builds an Engine from cfg, connecting to every configured backend.
// Close must be called to release them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("hindsight: build logger: %w", err)
	}

	b := &buildState{}
	for _, opt := range opts {
		opt(b)
	}

	s := b.store
	if s == nil {
		annCfg := annindex.Config{Host: cfg.Qdrant.Host, Port: cfg.Qdrant.Port, UseTLS: cfg.Qdrant.UseTLS, APIKey: string(cfg.Qdrant.APIKey)}
		ann, err := annindex.New(annCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("hindsight: build ann index: %w", err)
		}
		pgCfg := pg.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns, EmbeddingDim: cfg.Embeddings.Dimension}
		pgStore, err := pg.Open(ctx, pgCfg, ann, logger)
		if err != nil {
			return nil, fmt.Errorf("hindsight: open store: %w", err)
		}
		s = pgStore
	}

	embedder, err := buildEmbedder(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("hindsight: build embedder: %w", err)
	}

	rr := buildReranker(cfg.Reranker)

	llmc := b.llmc
	if llmc == nil {
		llmc = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:            string(cfg.LLM.APIKey),
			Model:             cfg.LLM.Model,
			BaseURL:           cfg.LLM.BaseURL,
			RequestsPerSecond: cfg.LLM.RateLimitPerSecond,
			Burst:             cfg.LLM.RateBurst,
		}, logger)
	}

	var tasks taskqueue.Backend
	if cfg.TaskQueue.Mode == "sync" {
		tasks = taskqueue.NewSyncBackend(logger)
	} else {
		tasks = taskqueue.NewAsyncBackend(ctx, cfg.TaskQueue.Workers, cfg.TaskQueue.QueueDepth, logger)
	}

	resolver := entityresolver.New(s, embedder, llmc, logger)
	consolidator := consolidation.New(s, embedder, llmc, cfg.Consolidation, logger)
	retainPipeline := retain.New(s, embedder, llmc, resolver, tasks, consolidator, cfg.Retain, logger)
	recallEngine := recall.New(s, embedder, rr, queryanalyzer.New(), cfg.Recall)
	bankSvc := bank.New(s)
	reflectAgent := reflectagent.New(s, embedder, llmc, recallEngine, bankSvc, retainPipeline, tasks, cfg.Reflect, logger)

	return &Engine{
		store:        s,
		bank:         bankSvc,
		retain:       retainPipeline,
		recall:       recallEngine,
		consolidator: consolidator,
		reflect:      reflectAgent,
		tasks:        tasks,
		logger:       logger,
	}, nil
}

func buildEmbedder(cfg config.EmbeddingsConfig) (embeddings.Provider, error) {
	if cfg.Provider == "mock" {
		dim := cfg.Dimension
		if dim <= 0 {
			dim = 384
		}
		return embeddings.NewDeterministic(dim), nil
	}
	return embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
}

// buildReranker always returns the lexical scorer: no cross-encoder model
// library is part of this stack, so cfg.Reranker.Provider is presently
// advisory only (see DESIGN.md).
func buildReranker(cfg config.RerankerConfig) reranker.Reranker {
	return reranker.NewLexical()
}

// Close releases every backend connection.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.tasks.Close(ctx); err != nil {
		return err
	}
	return e.store.Close()
}
