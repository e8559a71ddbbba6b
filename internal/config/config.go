package config

// Config holds the complete, immutable configuration threaded through every
// component. Per-call
// overrides (e.g. recall's budget parameter) layer on top of these defaults
// rather than mutating them.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Qdrant   QdrantConfig
	Embeddings EmbeddingsConfig
	Reranker RerankerConfig
	LLM      LLMConfig
	Retain   RetainConfig
	Recall   RecallConfig
	Consolidation ConsolidationConfig
	Reflect  ReflectConfig
	TaskQueue TaskQueueConfig
	Logging  LoggingConfig
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	Environment string `koanf:"environment"` // "development" or "production"
}

// PostgresConfig configures the relational store (C1).
type PostgresConfig struct {
	DSN             string   `koanf:"dsn"`
	MaxConns        int32    `koanf:"max_conns"`
	MinConns        int32    `koanf:"min_conns"`
	ConnectTimeout  Duration `koanf:"connect_timeout"`
}

// QdrantConfig configures the ANN index backend (C1).
type QdrantConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool `koanf:"use_tls"`
}

// EmbeddingsConfig configures the embedder (C2).
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // "fastembed" or "mock"
	Model     string `koanf:"model"`
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
}

// RerankerConfig configures the cross-encoder (C3).
type RerankerConfig struct {
	Provider string `koanf:"provider"` // "crossencoder" or "lexical"
}

// LLMConfig configures the LLM wrapper (C5).
type LLMConfig struct {
	Provider   string   `koanf:"provider"` // "anthropic"
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	MaxRetries int      `koanf:"max_retries"`
	BaseBackoff Duration `koanf:"base_backoff"`
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateBurst  int      `koanf:"rate_burst"`
}

// RetainConfig tunes the retention pipeline (C7).
type RetainConfig struct {
	ChunkMaxChars         int     `koanf:"chunk_max_chars"`          // default 50_000
	DedupThreshold        float64 `koanf:"dedup_threshold"`         // default 0.95
	SemanticLinkThreshold float64 `koanf:"semantic_link_threshold"` // default 0.78
	SemanticK             int     `koanf:"semantic_k"`              // default 10
	TemporalK             int     `koanf:"temporal_k"`              // default 10
	TemporalWindowHours   float64 `koanf:"temporal_window_hours"`   // default 72
	MaxExtractionConcurrency int  `koanf:"max_extraction_concurrency"`
}

// RecallBudgetLevel is one of low/mid/high.
type RecallBudgetLevel string

const (
	BudgetLow  RecallBudgetLevel = "low"
	BudgetMid  RecallBudgetLevel = "mid"
	BudgetHigh RecallBudgetLevel = "high"
)

// RecallBudgetParams is the numeric profile a budget level maps to.
type RecallBudgetParams struct {
	CandidateK        int
	ActivationRounds  int
	Shortlist         int
	MMRLambda         float64
}

// RecallConfig tunes the recall engine (C8).
type RecallConfig struct {
	Budgets map[RecallBudgetLevel]RecallBudgetParams

	SeedWeightVector float64 `koanf:"seed_weight_vector"` // 0.5
	SeedWeightLexical float64 `koanf:"seed_weight_lexical"` // 0.2
	SeedWeightEntity float64 `koanf:"seed_weight_entity"` // 0.2
	SeedWeightRecent float64 `koanf:"seed_weight_recent"` // 0.1

	ActivationDecay float64 `koanf:"activation_decay"` // 0.5
	CrossEncoderBlend float64 `koanf:"cross_encoder_blend"` // 0.6 cross, 0.4 activation

	DefaultMaxTokens int `koanf:"default_max_tokens"`
	TokensPerChar    float64 `koanf:"tokens_per_char"` // ~0.25 (1/4)
	TokenConstant    int     `koanf:"token_constant"`
}

// DefaultBudgets returns the recall budget table.
func DefaultBudgets() map[RecallBudgetLevel]RecallBudgetParams {
	return map[RecallBudgetLevel]RecallBudgetParams{
		BudgetLow:  {CandidateK: 50, ActivationRounds: 1, Shortlist: 20, MMRLambda: 0.5},
		BudgetMid:  {CandidateK: 150, ActivationRounds: 2, Shortlist: 60, MMRLambda: 0.5},
		BudgetHigh: {CandidateK: 400, ActivationRounds: 3, Shortlist: 150, MMRLambda: 0.5},
	}
}

// ConsolidationConfig tunes the consolidation engine (C9).
type ConsolidationConfig struct {
	Enabled             bool `koanf:"enabled"`
	CandidateModelK     int  `koanf:"candidate_model_k"` // ANN top-k mental models considered per unit
	AmbiguityBand       float64 `koanf:"ambiguity_band"`
}

// ReflectConfig tunes the reflect agent (C10).
type ReflectConfig struct {
	MaxAgentSteps map[RecallBudgetLevel]int `koanf:"max_agent_steps"`
	SchemaRetries int `koanf:"schema_retries"` // 2
}

// DefaultMaxAgentSteps returns the reflect agent step budget table.
func DefaultMaxAgentSteps() map[RecallBudgetLevel]int {
	return map[RecallBudgetLevel]int{
		BudgetLow:  3,
		BudgetMid:  6,
		BudgetHigh: 10,
	}
}

// TaskQueueConfig selects the task backend (C11).
type TaskQueueConfig struct {
	Mode       string `koanf:"mode"` // "async" or "sync"
	Workers    int    `koanf:"workers"`
	QueueDepth int    `koanf:"queue_depth"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Environment: "development"},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			ConnectTimeout: Duration(toSeconds(10)),
		},
		Qdrant: QdrantConfig{Host: "localhost", Port: 6334},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			Model:     "BAAI/bge-small-en-v1.5",
			Dimension: 384,
		},
		Reranker: RerankerConfig{Provider: "crossencoder"},
		LLM: LLMConfig{
			Provider:           "anthropic",
			Model:              "claude-3-5-sonnet-20241022",
			MaxRetries:         3,
			BaseBackoff:        Duration(toSeconds(1)),
			RateLimitPerSecond: 50.0 / 60.0,
			RateBurst:          5,
		},
		Retain: RetainConfig{
			ChunkMaxChars:            50_000,
			DedupThreshold:           0.95,
			SemanticLinkThreshold:    0.78,
			SemanticK:                10,
			TemporalK:                10,
			TemporalWindowHours:      72,
			MaxExtractionConcurrency: 4,
		},
		Recall: RecallConfig{
			Budgets:           DefaultBudgets(),
			SeedWeightVector:  0.5,
			SeedWeightLexical: 0.2,
			SeedWeightEntity:  0.2,
			SeedWeightRecent:  0.1,
			ActivationDecay:   0.5,
			CrossEncoderBlend: 0.6,
			DefaultMaxTokens:  4000,
			TokensPerChar:     0.25,
			TokenConstant:     4,
		},
		Consolidation: ConsolidationConfig{
			Enabled:         true,
			CandidateModelK: 5,
			AmbiguityBand:   0.05,
		},
		Reflect: ReflectConfig{
			MaxAgentSteps: DefaultMaxAgentSteps(),
			SchemaRetries: 2,
		},
		TaskQueue: TaskQueueConfig{
			Mode:       "async",
			Workers:    4,
			QueueDepth: 256,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func toSeconds(n int) (d int64) {
	return int64(n) * 1_000_000_000
}
