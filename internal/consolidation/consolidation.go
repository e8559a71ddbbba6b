// Package consolidation implements the watermark-driven consolidation
// engine: it scans experience/world units that haven't been folded into
// a mental model yet, asks the LLM whether each one refines an existing
// model, starts a new one, or is noise, and applies whichever action it
// picks atomically per unit. Grounded on retain's chunk-extract-embed
// staging for the per-item loop shape and on entityresolver's
// accept/ambiguous banding for the candidate-then-decide structure.
package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/logging"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

// Status reports how a Run concluded.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusNoNewMemories Status = "no_new_memories"
	StatusDisabled      Status = "disabled"
)

// Result summarizes one consolidation pass.
type Result struct {
	Status            Status
	MemoriesProcessed int
}

// Engine runs consolidation for a bank.
type Engine struct {
	store    store.Store
	embedder embeddings.Provider
	llmc     llm.Client
	cfg      config.ConsolidationConfig
	logger   *logging.Logger
}

// New builds an Engine.
func New(s store.Store, embedder embeddings.Provider, llmc llm.Client, cfg config.ConsolidationConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{store: s, embedder: embedder, llmc: llmc, cfg: cfg, logger: logger}
}

// Run implements the Consolidator contract retain schedules after a
// retention batch finishes.
func (e *Engine) Run(ctx context.Context, bankID string) error {
	_, err := e.Consolidate(ctx, bankID)
	return err
}

// Consolidate scans the watermark and routes every unfolded unit to
// UPDATE, CREATE, or NONE. A single unit's failure doesn't abort the
// pass: its consolidated_at stays null so the next run retries it, and
// the loop continues with the rest of the batch.
func (e *Engine) Consolidate(ctx context.Context, bankID string) (Result, error) {
	if !e.cfg.Enabled {
		return Result{Status: StatusDisabled}, nil
	}

	units, err := e.store.WatermarkScan(ctx, bankID)
	if err != nil {
		return Result{}, fmt.Errorf("consolidation: watermark scan: %w", err)
	}
	if len(units) == 0 {
		return Result{Status: StatusNoNewMemories}, nil
	}

	processed := 0
	for _, u := range units {
		if err := e.consolidateOne(ctx, bankID, u); err != nil {
			e.logger.Error(ctx, "consolidation failed for unit, will retry on next run",
				zap.String("bank_id", bankID), zap.String("unit_id", u.ID), zap.Error(err))
			continue
		}
		processed++
	}

	return Result{Status: StatusCompleted, MemoriesProcessed: processed}, nil
}

func (e *Engine) consolidateOne(ctx context.Context, bankID string, u model.MemoryUnit) error {
	candidates, err := e.gatherCandidates(ctx, bankID, u)
	if err != nil {
		return fmt.Errorf("gather candidates: %w", err)
	}

	action, err := e.decide(ctx, u, candidates)
	if err != nil {
		return fmt.Errorf("decide action: %w", err)
	}

	action, err = e.enforceTagRouting(ctx, bankID, u, candidates, action)
	if err != nil {
		return fmt.Errorf("enforce tag routing: %w", err)
	}

	if err := e.apply(ctx, bankID, u, candidates, action); err != nil {
		return fmt.Errorf("apply action: %w", err)
	}

	return e.store.SetConsolidatedAt(ctx, bankID, u.ID, time.Now())
}

// gatherCandidates fetches the nearest mental models by embedding
// similarity. Tag-incompatible candidates are still offered to the LLM
// (it needs the full picture to write a good summary) and are filtered
// out only at routing-enforcement time.
func (e *Engine) gatherCandidates(ctx context.Context, bankID string, u model.MemoryUnit) ([]store.ScoredUnit, error) {
	if len(u.Embedding) == 0 {
		return nil, nil
	}
	k := e.cfg.CandidateModelK
	if k <= 0 {
		k = 5
	}
	return e.store.MentalModelsByEmbedding(ctx, bankID, u.Embedding, k)
}

func findCandidate(candidates []store.ScoredUnit, id string) *model.MemoryUnit {
	for _, c := range candidates {
		if c.Unit.ID == id {
			u := c.Unit
			return &u
		}
	}
	return nil
}

type actionType string

const (
	actionUpdate actionType = "update"
	actionCreate actionType = "create"
	actionNone   actionType = "none"
)

type consolidationAction struct {
	Type    actionType
	ModelID string
	Name    string
	Summary string
	Tags    []string
}

type llmActionResponse struct {
	Action  string   `json:"action"`
	ModelID string   `json:"model_id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

var decisionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action":   map[string]any{"type": "string", "enum": []string{"update", "create", "none"}},
		"model_id": map[string]any{"type": "string"},
		"name":     map[string]any{"type": "string"},
		"summary":  map[string]any{"type": "string"},
		"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []string{"action"},
}

const decisionSystemPrompt = `You maintain a set of durable mental models (opinions, preferences, recurring patterns) derived from raw memories.
Given one new memory and a list of candidate mental models, decide:
- action=update, model_id=<id>: the memory refines or corrects an existing model. Write the model's complete, updated summary in "summary".
- action=create: none of the candidates fit. Supply a short "name", a "summary", and "tags" to scope the new model.
- action=none: the memory adds nothing durable enough to keep.
Never propose a model_id that wasn't in the candidate list.`

func (e *Engine) decide(ctx context.Context, u model.MemoryUnit, candidates []store.ScoredUnit) (consolidationAction, error) {
	resp, err := e.llmc.Call(ctx, llm.CallOptions{
		Messages: []llm.Message{
			{Role: "system", Content: decisionSystemPrompt},
			{Role: "user", Content: buildDecisionPrompt(u, candidates)},
		},
		Scope:          "consolidation.decide",
		ResponseSchema: decisionSchema,
	})
	if err != nil {
		return consolidationAction{}, fmt.Errorf("llm call: %w", err)
	}

	var parsed llmActionResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return consolidationAction{}, fmt.Errorf("parse decision: %w", err)
	}
	return consolidationAction{
		Type:    actionType(parsed.Action),
		ModelID: parsed.ModelID,
		Name:    parsed.Name,
		Summary: parsed.Summary,
		Tags:    parsed.Tags,
	}, nil
}

func buildDecisionPrompt(u model.MemoryUnit, candidates []store.ScoredUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New memory: %q\n", u.Text)
	fmt.Fprintf(&b, "Memory tags: [%s]\n\n", strings.Join(u.Tags, ", "))
	if len(candidates) == 0 {
		b.WriteString("No candidate mental models exist yet.\n")
		return b.String()
	}
	b.WriteString("Candidate mental models:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s tags=[%s] proof_count=%d: %s\n", c.Unit.ID, strings.Join(c.Unit.Tags, ", "), c.Unit.ProofCount, c.Unit.Text)
	}
	return b.String()
}

// scopeClass classifies how a unit's tags relate to a model's tags for
// the purpose of deciding whether an UPDATE may cross between them.
type scopeClass int

const (
	scopeSame scopeClass = iota
	scopeUnitScopedModelGlobal
	scopeUnitGlobalModelScoped
	scopeDifferent
)

func classifyScope(unitTags, modelTags []string) scopeClass {
	switch {
	case tagSetEqual(unitTags, modelTags):
		return scopeSame
	case len(unitTags) > 0 && len(modelTags) == 0:
		return scopeUnitScopedModelGlobal
	case len(unitTags) == 0 && len(modelTags) > 0:
		return scopeUnitGlobalModelScoped
	default:
		// Partial overlap and fully disjoint non-empty sets are both
		// treated as different scopes: the routing rules only carve out
		// exact-match and one-sided-global as safe to merge across.
		return scopeDifferent
	}
}

func tagSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}

func updateAllowed(class scopeClass) bool {
	return class != scopeDifferent
}

// enforceTagRouting re-validates an UPDATE decision against the tag
// routing rules and the person-disjointness veto, redirecting to CREATE
// when the merge isn't allowed. CREATE and NONE pass through unchanged.
func (e *Engine) enforceTagRouting(ctx context.Context, bankID string, u model.MemoryUnit, candidates []store.ScoredUnit, action consolidationAction) (consolidationAction, error) {
	if action.Type != actionUpdate {
		return action, nil
	}

	target := findCandidate(candidates, action.ModelID)
	if target == nil {
		return consolidationAction{Type: actionCreate, Name: action.Name, Summary: action.Summary, Tags: u.Tags}, nil
	}

	if class := classifyScope(u.Tags, target.Tags); !updateAllowed(class) {
		return consolidationAction{Type: actionCreate, Name: action.Name, Summary: action.Summary, Tags: nil}, nil
	}

	veto, err := e.personDisjointVeto(ctx, bankID, u, *target)
	if err != nil {
		return consolidationAction{}, err
	}
	if veto {
		return consolidationAction{Type: actionCreate, Name: action.Name, Summary: action.Summary, Tags: u.Tags}, nil
	}

	return action, nil
}

// personDisjointVeto vetoes a merge when both the unit and the target
// model name at least one person entity and those sets share nobody:
// a model about one person should not silently absorb a memory about
// an unrelated one just because the text reads similarly.
func (e *Engine) personDisjointVeto(ctx context.Context, bankID string, u, target model.MemoryUnit) (bool, error) {
	unitEntities, err := e.store.EntitiesForUnit(ctx, bankID, u.ID)
	if err != nil {
		return false, fmt.Errorf("entities for unit: %w", err)
	}
	modelEntities, err := e.store.EntitiesForUnit(ctx, bankID, target.ID)
	if err != nil {
		return false, fmt.Errorf("entities for model: %w", err)
	}

	unitPersons := personIDs(unitEntities)
	modelPersons := personIDs(modelEntities)
	if len(unitPersons) == 0 || len(modelPersons) == 0 {
		return false, nil
	}
	for id := range unitPersons {
		if modelPersons[id] {
			return false, nil
		}
	}
	return true, nil
}

func personIDs(entities []model.Entity) map[string]bool {
	out := make(map[string]bool, len(entities))
	for _, ent := range entities {
		if ent.Type == model.EntityPerson {
			out[ent.ID] = true
		}
	}
	return out
}

func (e *Engine) apply(ctx context.Context, bankID string, u model.MemoryUnit, candidates []store.ScoredUnit, action consolidationAction) error {
	switch action.Type {
	case actionNone:
		return nil
	case actionCreate:
		return e.applyCreate(ctx, bankID, u, action)
	case actionUpdate:
		target := findCandidate(candidates, action.ModelID)
		if target == nil {
			return fmt.Errorf("update target %q not found among candidates", action.ModelID)
		}
		return e.applyUpdate(ctx, bankID, u, *target, action)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e *Engine) applyCreate(ctx context.Context, bankID string, u model.MemoryUnit, action consolidationAction) error {
	summary := action.Summary
	if summary == "" {
		summary = u.Text
	}
	emb, err := e.embedder.EmbedDocuments(ctx, []string{summary})
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}

	newModel := model.MemoryUnit{
		ID:              uuid.NewString(),
		BankID:          bankID,
		Text:            summary,
		FactType:        model.FactMentalModel,
		EventDate:       u.EventDate,
		OccurredStart:   u.OccurredStart,
		Embedding:       emb[0],
		Tags:            action.Tags,
		ProofCount:      1,
		SourceMemoryIDs: []string{u.ID},
		CreatedAt:       time.Now(),
	}
	if err := e.store.InsertMentalModel(ctx, bankID, newModel); err != nil {
		return fmt.Errorf("insert mental model: %w", err)
	}

	if err := e.linkUnitToModel(ctx, bankID, u.ID, newModel.ID); err != nil {
		return err
	}
	return e.inheritEntities(ctx, bankID, u.ID, newModel.ID)
}

func (e *Engine) applyUpdate(ctx context.Context, bankID string, u, target model.MemoryUnit, action consolidationAction) error {
	newText := action.Summary
	if newText == "" {
		newText = target.Text
	}
	emb, err := e.embedder.EmbedDocuments(ctx, []string{newText})
	if err != nil {
		return fmt.Errorf("embed updated summary: %w", err)
	}

	updated := target
	updated.Text = newText
	updated.Embedding = emb[0]
	updated.ProofCount = target.ProofCount + 1
	updated.SourceMemoryIDs = append(append([]string{}, target.SourceMemoryIDs...), u.ID)
	updated.History = append(append([]model.HistoryEntry{}, target.History...), model.HistoryEntry{
		Timestamp:     time.Now(),
		BeforeText:    target.Text,
		AfterText:     newText,
		TriggerUnitID: u.ID,
	})

	if err := e.store.UpdateMentalModel(ctx, bankID, updated); err != nil {
		return fmt.Errorf("update mental model: %w", err)
	}

	if err := e.linkUnitToModel(ctx, bankID, u.ID, target.ID); err != nil {
		return err
	}
	return e.inheritEntities(ctx, bankID, u.ID, target.ID)
}

func (e *Engine) linkUnitToModel(ctx context.Context, bankID, unitID, modelID string) error {
	links := []model.MemoryLink{
		{FromUnitID: unitID, ToUnitID: modelID, Type: model.LinkSemantic, Weight: 1.0},
		{FromUnitID: modelID, ToUnitID: unitID, Type: model.LinkSemantic, Weight: 1.0},
	}
	if err := e.store.UpsertLinks(ctx, bankID, links); err != nil {
		return fmt.Errorf("link unit to model: %w", err)
	}
	return nil
}

func (e *Engine) inheritEntities(ctx context.Context, bankID, unitID, modelID string) error {
	entities, err := e.store.EntitiesForUnit(ctx, bankID, unitID)
	if err != nil {
		return fmt.Errorf("entities for unit: %w", err)
	}
	if len(entities) == 0 {
		return nil
	}
	pairs := make([]model.UnitEntityLink, len(entities))
	for i, ent := range entities {
		pairs[i] = model.UnitEntityLink{UnitID: modelID, EntityID: ent.ID}
	}
	if err := e.store.LinkUnitsToEntities(ctx, bankID, pairs); err != nil {
		return fmt.Errorf("link model to entities: %w", err)
	}
	return nil
}
