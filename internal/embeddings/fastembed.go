package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the local-ONNX embedding provider.
type FastEmbedConfig struct {
	// Model is a friendly model name, e.g. "BAAI/bge-small-en-v1.5".
	Model string
	// CacheDir is where downloaded model weights are cached. Defaults to
	// "./local_cache".
	CacheDir string
	// MaxLength is the maximum input token length. Defaults to 512.
	MaxLength int
}

var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGEBaseENV15:  768,
	fastembed.AllMiniLML6V2: 384,
}

// FastEmbedProvider generates embeddings with a local ONNX model, no
// network call required per batch.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	dimension int
	mu        sync.RWMutex
}

// NewFastEmbedProvider loads (and if needed downloads) the configured
// model and returns a ready Provider.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		model = fastembed.EmbeddingModel(cfg.Model)
		if _, known := modelDimensions[model]; !known {
			return nil, fmt.Errorf("embeddings: unsupported model %q", cfg.Model)
		}
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: init fastembed: %w", err)
	}

	return &FastEmbedProvider{model: flagEmbed, dimension: modelDimensions[model]}, nil
}

// EmbedDocuments uses the model's passage-embedding mode.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errEmptyInput("texts")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, errEmbeddingFailed(err)
	}
	return out, nil
}

// EmbedQuery uses the model's query-embedding mode.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errEmptyInput("text")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, errEmbeddingFailed(err)
	}
	return out, nil
}

// Dimension returns the fixed vector length this provider produces.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases the underlying ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.Destroy()
}

var _ Provider = (*FastEmbedProvider)(nil)
