package store

import "github.com/hindsightdb/hindsight/internal/model"

// ScoredUnit pairs a memory unit with a signal-specific raw score, used by
// recall's seed-gathering phase.
type ScoredUnit struct {
	Unit  model.MemoryUnit
	Score float64
}

// ScoredEntity pairs an entity with a similarity score, used by entity
// resolution and recall's entity-match seed signal.
type ScoredEntity struct {
	Entity model.Entity
	Score  float64
}

// ScoredReflection pairs a reflection with a similarity score.
type ScoredReflection struct {
	Reflection model.Reflection
	Score      float64
}
