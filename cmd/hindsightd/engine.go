package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/pkg/hindsight"
)

// buildEngine loads config from configPath (if set) and env vars, then
// constructs an Engine against the real Postgres/Qdrant/Anthropic
// backends it describes.
func buildEngine(ctx context.Context) (*hindsight.Engine, error) {
	var yamlDoc []byte
	if configPath != "" {
		doc, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		yamlDoc = doc
	}

	cfg, err := config.Load(yamlDoc)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return hindsight.New(ctx, cfg)
}
