// Package store defines the persistence contract every engine component
// (C7 retain, C8 recall, C9 consolidation, C10 reflect) is written against.
// The production implementation (internal/store/pg) backs relational data
// with Postgres via pgx and ANN search with Qdrant; internal/store/memstore
// is a process-local fake used by tests.
package store

import (
	"context"
	"time"

	"github.com/hindsightdb/hindsight/internal/model"
)

// Store is the full persistence contract. All methods except the
// bank-lifecycle ones are bank-scoped: implementations must never let a
// query cross bank boundaries.
type Store interface {
	BankStore
	UnitStore
	EntityStore
	LinkStore
	DocumentStore
	ReflectionStore
	DirectiveStore
	OperationStore

	// WithTx runs fn against a transaction-scoped Store. All writes inside
	// fn commit atomically, or roll back if fn returns an error or ctx is
	// canceled.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Close releases underlying connections.
	Close() error
}

// BankStore covers bank lifecycle.
type BankStore interface {
	CreateBank(ctx context.Context, bank model.Bank) error
	GetBank(ctx context.Context, bankID string) (*model.Bank, error)
	SetBankMission(ctx context.Context, bankID, mission string) error
	SetBankDisposition(ctx context.Context, bankID string, d model.Disposition) error
	DeleteBank(ctx context.Context, bankID string) error
}

// UnitStore covers memory_units, and the indices recall/consolidation need.
type UnitStore interface {
	InsertUnits(ctx context.Context, bankID string, units []model.MemoryUnit) error
	GetUnit(ctx context.Context, bankID, unitID string) (*model.MemoryUnit, error)
	GetUnitsByIDs(ctx context.Context, bankID string, unitIDs []string) ([]model.MemoryUnit, error)
	DeleteUnitsByDocument(ctx context.Context, bankID, documentID string) error
	SetConsolidatedAt(ctx context.Context, bankID, unitID string, at time.Time) error

	// WatermarkScan returns experience/world units with consolidated_at IS
	// NULL, ordered by created_at ascending.
	WatermarkScan(ctx context.Context, bankID string) ([]model.MemoryUnit, error)

	// VectorSearchUnits returns the top-k units by cosine similarity to
	// embedding, restricted to factTypes when non-empty.
	VectorSearchUnits(ctx context.Context, bankID string, embedding []float32, k int, factTypes []model.FactType) ([]ScoredUnit, error)

	// LexicalSearchUnits returns the top-k units by full-text match score
	// (ts_rank in Postgres, term hits over sqrt(length) in memstore); neither
	// implementation weights terms by document frequency.
	LexicalSearchUnits(ctx context.Context, bankID, query string, k int, factTypes []model.FactType) ([]ScoredUnit, error)

	// RecentUnits returns the newest k units (freshness seed signal).
	RecentUnits(ctx context.Context, bankID string, k int, factTypes []model.FactType) ([]model.MemoryUnit, error)

	// UnitsByEntityIDs returns units that mention any of entityIDs.
	UnitsByEntityIDs(ctx context.Context, bankID string, entityIDs []string, factTypes []model.FactType) ([]model.MemoryUnit, error)

	// UnitsNearTime returns up to k units with event_date within the
	// [center-window, center+window] range, excluding excludeUnitID.
	UnitsNearTime(ctx context.Context, bankID string, center time.Time, window time.Duration, k int, excludeUnitID string) ([]model.MemoryUnit, error)

	// MentalModelsByEmbedding ANN-searches mental_model units only.
	MentalModelsByEmbedding(ctx context.Context, bankID string, embedding []float32, k int) ([]ScoredUnit, error)

	// InsertMentalModel inserts a newly created mental-model unit.
	InsertMentalModel(ctx context.Context, bankID string, unit model.MemoryUnit) error

	// UpdateMentalModel overwrites an existing mental-model unit's mutable
	// fields (text, embedding, proof_count, source_memory_ids, history).
	UpdateMentalModel(ctx context.Context, bankID string, unit model.MemoryUnit) error
}

// EntityStore covers entities and their resolution support.
type EntityStore interface {
	InsertEntity(ctx context.Context, bankID string, e model.Entity) error
	GetEntitiesByIDs(ctx context.Context, bankID string, ids []string) ([]model.Entity, error)
	// GetEntityByNormalizedName performs the exact-match candidate lookup
	// of resolver step 3(a).
	GetEntityByNormalizedName(ctx context.Context, bankID, normalizedName string, t model.EntityType) (*model.Entity, error)
	// VectorSearchEntities performs the ANN candidate lookup of resolver
	// step 3(b).
	VectorSearchEntities(ctx context.Context, bankID string, embedding []float32, k int, t model.EntityType) ([]ScoredEntity, error)
	LinkUnitsToEntities(ctx context.Context, bankID string, pairs []model.UnitEntityLink) error
	EntitiesForUnit(ctx context.Context, bankID, unitID string) ([]model.Entity, error)
	// UnitsForEntity returns ids of units (other than excludeUnitID) that
	// mention entityID, for entity-link synthesis.
	UnitsForEntity(ctx context.Context, bankID, entityID, excludeUnitID string) ([]string, error)
}

// LinkStore covers memory_links.
type LinkStore interface {
	// UpsertLinks inserts links, treating a unique-constraint collision as
	// success.
	UpsertLinks(ctx context.Context, bankID string, links []model.MemoryLink) error
	// OutgoingLinks returns every link whose FromUnitID is in unitIDs, used
	// to expand one round of spreading activation.
	OutgoingLinks(ctx context.Context, bankID string, unitIDs []string) ([]model.MemoryLink, error)
}

// DocumentStore covers documents and upsert-replace semantics.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, bankID string, doc model.Document) error
	GetDocument(ctx context.Context, bankID, documentID string) (*model.Document, error)
	DeleteDocument(ctx context.Context, bankID, documentID string) error
}

// ReflectionStore covers reflections.
type ReflectionStore interface {
	CreateReflection(ctx context.Context, r model.Reflection) error
	GetReflection(ctx context.Context, bankID, id string) (*model.Reflection, error)
	UpdateReflection(ctx context.Context, r model.Reflection) error
	DeleteReflection(ctx context.Context, bankID, id string) error
	ListReflections(ctx context.Context, bankID string, tags []string) ([]model.Reflection, error)
	VectorSearchReflections(ctx context.Context, bankID string, embedding []float32, k int, tags []string) ([]ScoredReflection, error)
}

// DirectiveStore covers directives.
type DirectiveStore interface {
	CreateDirective(ctx context.Context, d model.Directive) error
	GetDirective(ctx context.Context, bankID, id string) (*model.Directive, error)
	UpdateDirective(ctx context.Context, d model.Directive) error
	DeleteDirective(ctx context.Context, bankID, id string) error
	// ListActiveDirectives returns active directives tag-filtered and
	// ordered by priority descending.
	ListActiveDirectives(ctx context.Context, bankID string, tags []string) ([]model.Directive, error)
}

// OperationStore covers operation rows.
type OperationStore interface {
	CreateOperation(ctx context.Context, op model.Operation) error
	GetOperation(ctx context.Context, bankID, id string) (*model.Operation, error)
	UpdateOperationStatus(ctx context.Context, bankID, id string, status model.OperationStatus, result, errMsg string) error
}
