package hindsight

import (
	"context"

	"github.com/google/uuid"

	"github.com/hindsightdb/hindsight/internal/consolidation"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/recall"
	"github.com/hindsightdb/hindsight/internal/reflectagent"
	"github.com/hindsightdb/hindsight/internal/retain"
)

// --- bank lifecycle ---

// CreateBank registers a new bank. name and mission default to empty;
// disposition defaults to an empty trait map.
func (e *Engine) CreateBank(ctx context.Context, bankID, name, mission string, disposition model.Disposition) (*model.Bank, error) {
	return e.bank.Create(ctx, bankID, name, mission, disposition)
}

// DeleteBank removes a bank and, by store-level cascade, everything it owns.
func (e *Engine) DeleteBank(ctx context.Context, bankID string) error {
	return e.bank.Delete(ctx, bankID)
}

// GetBankProfile returns the bank, auto-creating an empty one on first use.
func (e *Engine) GetBankProfile(ctx context.Context, bankID string) (*model.Bank, error) {
	return e.bank.GetProfile(ctx, bankID)
}

// SetBankMission updates the bank's mission statement.
func (e *Engine) SetBankMission(ctx context.Context, bankID, mission string) error {
	return e.bank.SetMission(ctx, bankID, mission)
}

// SetBankDisposition updates the bank's disposition vector.
func (e *Engine) SetBankDisposition(ctx context.Context, bankID string, d model.Disposition) error {
	return e.bank.SetDisposition(ctx, bankID, d)
}

// --- retention ---

// RetainItem is one piece of content submitted to Retain or RetainBatch.
type RetainItem = retain.Item

// Retain submits a single item and returns the tracking operation id.
func (e *Engine) Retain(ctx context.Context, bankID string, item RetainItem) (string, error) {
	return e.retain.Retain(ctx, bankID, item)
}

// RetainBatchOptions configures a RetainBatch call.
type RetainBatchOptions = retain.BatchOptions

// RetainBatch submits many items as one document-scoped batch and returns
// the tracking operation id.
func (e *Engine) RetainBatch(ctx context.Context, bankID string, items []RetainItem, opts RetainBatchOptions) (string, error) {
	return e.retain.RetainBatch(ctx, bankID, items, opts)
}

// GetOperation looks up an async job's status.
func (e *Engine) GetOperation(ctx context.Context, bankID, operationID string) (*model.Operation, error) {
	return e.store.GetOperation(ctx, bankID, operationID)
}

// --- recall ---

// RecallRequest configures a Recall call.
type RecallRequest = recall.Request

// RecallResult is everything one Recall call returns.
type RecallResult = recall.Result

// Recall runs the multi-signal recall pipeline.
func (e *Engine) Recall(ctx context.Context, req RecallRequest) (*RecallResult, error) {
	return e.recall.Recall(ctx, req)
}

// --- reflect ---

// ReflectRequest configures a Reflect call.
type ReflectRequest = reflectagent.Request

// ReflectResult is what one Reflect call returns.
type ReflectResult = reflectagent.Result

// Reflect runs the bounded tool-calling reflect agent.
func (e *Engine) Reflect(ctx context.Context, req ReflectRequest) (*ReflectResult, error) {
	return e.reflect.Reflect(ctx, req)
}

// --- consolidation ---

// ConsolidateNow runs one consolidation pass for bankID synchronously,
// independent of the watermark-scan scheduling normally triggered by
// retain. Exposed for operators and the CLI's "consolidate run" command.
func (e *Engine) ConsolidateNow(ctx context.Context, bankID string) (consolidation.Result, error) {
	return e.consolidator.Consolidate(ctx, bankID)
}

// --- reflections ---

// CreateReflection saves a user-curated reflection document. ID is
// generated when empty.
func (e *Engine) CreateReflection(ctx context.Context, r model.Reflection) (*model.Reflection, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := e.store.CreateReflection(ctx, r); err != nil {
		return nil, err
	}
	return e.store.GetReflection(ctx, r.BankID, r.ID)
}

// GetReflection looks up a reflection by id.
func (e *Engine) GetReflection(ctx context.Context, bankID, id string) (*model.Reflection, error) {
	return e.store.GetReflection(ctx, bankID, id)
}

// UpdateReflection overwrites a reflection's mutable fields.
func (e *Engine) UpdateReflection(ctx context.Context, r model.Reflection) error {
	return e.store.UpdateReflection(ctx, r)
}

// DeleteReflection removes a reflection.
func (e *Engine) DeleteReflection(ctx context.Context, bankID, id string) error {
	return e.store.DeleteReflection(ctx, bankID, id)
}

// ListReflections lists a bank's reflections, optionally tag-filtered.
func (e *Engine) ListReflections(ctx context.Context, bankID string, tags []string) ([]model.Reflection, error) {
	return e.store.ListReflections(ctx, bankID, tags)
}

// --- directives ---

// CreateDirective saves a hard rule injected into future reflect prompts.
// ID is generated when empty.
func (e *Engine) CreateDirective(ctx context.Context, d model.Directive) (*model.Directive, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if err := e.store.CreateDirective(ctx, d); err != nil {
		return nil, err
	}
	return e.store.GetDirective(ctx, d.BankID, d.ID)
}

// GetDirective looks up a directive by id.
func (e *Engine) GetDirective(ctx context.Context, bankID, id string) (*model.Directive, error) {
	return e.store.GetDirective(ctx, bankID, id)
}

// UpdateDirective overwrites a directive's mutable fields.
func (e *Engine) UpdateDirective(ctx context.Context, d model.Directive) error {
	return e.store.UpdateDirective(ctx, d)
}

// DeleteDirective removes a directive.
func (e *Engine) DeleteDirective(ctx context.Context, bankID, id string) error {
	return e.store.DeleteDirective(ctx, bankID, id)
}

// ListActiveDirectives lists a bank's active directives, tag-filtered and
// priority-ordered, the same set reflect injects into its system prompt.
func (e *Engine) ListActiveDirectives(ctx context.Context, bankID string, tags []string) ([]model.Directive, error) {
	return e.store.ListActiveDirectives(ctx, bankID, tags)
}

// --- documents ---

// UpsertDocument replaces a document and re-chunks it through retain
// when called via RetainBatch with the same document_id; this method
// alone only touches the document row, for metadata-only updates.
func (e *Engine) UpsertDocument(ctx context.Context, bankID string, doc model.Document) error {
	return e.store.UpsertDocument(ctx, bankID, doc)
}

// GetDocument looks up a document by id.
func (e *Engine) GetDocument(ctx context.Context, bankID, documentID string) (*model.Document, error) {
	return e.store.GetDocument(ctx, bankID, documentID)
}

// DeleteDocument removes a document. The memory units chunked from it are
// not deleted; the Postgres store clears their document_id.
func (e *Engine) DeleteDocument(ctx context.Context, bankID, documentID string) error {
	return e.store.DeleteDocument(ctx, bankID, documentID)
}

// --- entities (read-only) ---

// GetEntitiesByIDs looks up canonical entities by id.
func (e *Engine) GetEntitiesByIDs(ctx context.Context, bankID string, ids []string) ([]model.Entity, error) {
	return e.store.GetEntitiesByIDs(ctx, bankID, ids)
}

// GetEntityByName looks up a canonical entity by its normalized name and
// type, the same exact-match lookup entity resolution uses.
func (e *Engine) GetEntityByName(ctx context.Context, bankID, normalizedName string, t model.EntityType) (*model.Entity, error) {
	return e.store.GetEntityByNormalizedName(ctx, bankID, normalizedName, t)
}

// EntitiesForUnit returns the entities a memory unit mentions.
func (e *Engine) EntitiesForUnit(ctx context.Context, bankID, unitID string) ([]model.Entity, error) {
	return e.store.EntitiesForUnit(ctx, bankID, unitID)
}
