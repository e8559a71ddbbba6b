// Package model defines the persistent data model shared by every
// component. Types here carry only ids and values — no owning
// references between nodes of the bank/unit/entity graph.
package model

import "time"

// FactType is the kind of a memory unit.
type FactType string

const (
	FactWorld       FactType = "world"
	FactExperience  FactType = "experience"
	FactOpinion     FactType = "opinion"
	FactObservation FactType = "observation"
	FactMentalModel FactType = "mental_model"
)

// Valid reports whether f is one of the defined fact types.
func (f FactType) Valid() bool {
	switch f {
	case FactWorld, FactExperience, FactOpinion, FactObservation, FactMentalModel:
		return true
	}
	return false
}

// EntityType is the kind of a canonical entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityPlace        EntityType = "place"
	EntityProduct      EntityType = "product"
	EntityConcept      EntityType = "concept"
	EntityOther        EntityType = "other"
)

// LinkType is the kind of a directed memory-to-memory edge.
type LinkType string

const (
	LinkTemporal LinkType = "temporal"
	LinkSemantic LinkType = "semantic"
	LinkEntity   LinkType = "entity"
	LinkCausal   LinkType = "causal"
)

// CausalRelation is the subtype of a LinkCausal edge.
type CausalRelation string

const (
	CausedBy   CausalRelation = "caused_by"
	EnabledBy  CausalRelation = "enabled_by"
	PreventedBy CausalRelation = "prevented_by"
)

// TagMatchMode controls tag-filter semantics for recall.
type TagMatchMode string

const (
	TagMatchAny        TagMatchMode = "any"
	TagMatchAll        TagMatchMode = "all"
	TagMatchAnyStrict  TagMatchMode = "any_strict"
	TagMatchAllStrict  TagMatchMode = "all_strict"
)

// ZeroEntityID is the sentinel used in place of a NULL entity_id so that
// (from, to, type, entity_id) uniqueness can be enforced with a plain
// composite key.
const ZeroEntityID = "00000000-0000-0000-0000-000000000000"

// Bank is the tenant unit.
type Bank struct {
	BankID      string
	Name        string
	Mission     string
	Disposition Disposition
	CreatedAt   time.Time
}

// Disposition holds the per-bank agent-style bias vector used to shape
// reflect's tone.
type Disposition struct {
	// Traits maps trait name (e.g. "openness", "caution") to a value in
	// [0,1].
	Traits map[string]float64
	// Strength governs how strongly traits are expressed in phrasing,
	// in [0,1].
	Strength float64
}

// HistoryEntry records one mutation of a mental-model unit.
type HistoryEntry struct {
	Timestamp     time.Time
	BeforeText    string
	AfterText     string
	TriggerUnitID string
}

// MemoryUnit is the atomic fact.
type MemoryUnit struct {
	ID     string
	BankID string
	Text   string
	FactType FactType
	Context  string

	CreatedAt     time.Time
	EventDate     *time.Time
	OccurredStart *time.Time
	OccurredEnd   *time.Time
	MentionedAt   *time.Time
	ConsolidatedAt *time.Time

	DocumentID string

	Embedding []float32

	Tags     []string
	Metadata map[string]string

	// Mental-model-only fields; zero-valued for raw units.
	ProofCount      int
	SourceMemoryIDs []string
	History         []HistoryEntry
}

// IsMentalModel reports whether this unit is a consolidated mental model.
func (u *MemoryUnit) IsMentalModel() bool {
	return u.FactType == FactMentalModel
}

// Entity is a canonical referent.
type Entity struct {
	ID            string
	BankID        string
	CanonicalName string
	Type          EntityType
	Embedding     []float32
	Aliases       []string
}

// MemoryLink is a directed, typed, weighted edge between two memory units
// in the same bank.
type MemoryLink struct {
	FromUnitID string
	ToUnitID   string
	Type       LinkType
	Weight     float64
	// EntityID is "" (coalesced to ZeroEntityID for storage uniqueness)
	// unless Type == LinkEntity.
	EntityID string
	// Relation is set only when Type == LinkCausal; empty for every other link type.
	Relation CausalRelation
}

// Document is a batch unit of ingestion.
type Document struct {
	ID           string
	BankID       string
	OriginalText string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reflection is a user-curated summary document.
type Reflection struct {
	ID              string
	BankID          string
	Name            string
	SourceQuery     string
	Content         string
	Embedding       []float32
	ReflectResponse string // JSON-encoded ReflectResult from a prior call, if any
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Directive is a hard rule injected into reflect prompts.
type Directive struct {
	ID        string
	BankID    string
	Name      string
	Content   string
	Priority  int
	IsActive  bool
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OperationStatus is the lifecycle state of an async job.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationRunning   OperationStatus = "running"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// OperationType distinguishes the kind of async job tracked.
type OperationType string

const (
	OperationRetain       OperationType = "retain"
	OperationConsolidation OperationType = "consolidation"
)

// Operation tracks the lifecycle of an async job visible to external callers
//.
type Operation struct {
	ID        string
	BankID    string
	Type      OperationType
	Status    OperationStatus
	Result    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnitEntityLink records that a unit mentions an entity.
type UnitEntityLink struct {
	UnitID   string
	EntityID string
}
