package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config starting from Default(), then layering a YAML
// document (if yamlDoc is non-empty) and finally environment variables
// (highest precedence), mirroring the teacher's env > file > defaults order.
//
// In environment variable names the first "_" after the prefix separates
// the section from the field name, e.g. HINDSIGHT_POSTGRES_DSN,
// HINDSIGHT_LLM_API_KEY (section "llm", field "api_key").
func Load(yamlDoc []byte) (*Config, error) {
	k := koanf.New(".")

	if len(yamlDoc) > 0 {
		if err := k.Load(rawbytes.Provider(yamlDoc), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider("HINDSIGHT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "HINDSIGHT_")
		return strings.ToLower(strings.Replace(s, "_", ".", 1))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
