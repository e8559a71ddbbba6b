package reflectagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/recall"
)

const (
	toolSearchReflections  = "search_reflections"
	toolSearchMentalModels = "search_mental_models"
	toolRecall             = "recall"
	toolExpand             = "expand"
)

var toolSchemas = []llm.ToolSchema{
	{
		Name:        toolSearchReflections,
		Description: "Search prior reflections (ANN, tag-filtered) and return the top matches with content.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
	},
	{
		Name:        toolSearchMentalModels,
		Description: "Search consolidated mental models (ANN, tag-filtered) and return text, proof_count, and source_memory_ids.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
	},
	{
		Name:        toolRecall,
		Description: "Run the recall engine over raw memories, optionally restricted to given fact types.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":      map[string]any{"type": "string"},
				"fact_types": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        toolExpand,
		Description: "Expand memory ids to their full text, at chunk or document depth.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"memory_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"depth":      map[string]any{"type": "string", "enum": []string{"chunk", "document"}},
			},
			"required": []string{"memory_ids"},
		},
	},
}

// toolResult is what each tool dispatch returns: the JSON observation fed
// back to the model, and the memory/reflection/model ids it surfaced so
// the final answer's based_on list stays complete.
type toolResult struct {
	observation string
	touched     []touchedUnit
}

type touchedUnit struct {
	id       string
	factType model.FactType
}

func (a *Agent) dispatchTool(ctx context.Context, bankID string, call llm.ToolCall, tags []string, budget config.RecallBudgetLevel) (toolResult, error) {
	switch call.Name {
	case toolSearchReflections:
		return a.runSearchReflections(ctx, bankID, call.Args, tags)
	case toolSearchMentalModels:
		return a.runSearchMentalModels(ctx, bankID, call.Args, tags)
	case toolRecall:
		return a.runRecall(ctx, bankID, call.Args, tags, budget)
	case toolExpand:
		return a.runExpand(ctx, bankID, call.Args)
	default:
		return toolResult{observation: fmt.Sprintf("unknown tool %q", call.Name)}, nil
	}
}

func (a *Agent) runSearchReflections(ctx context.Context, bankID string, args []byte, tags []string) (toolResult, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolResult{}, fmt.Errorf("parse %s args: %w", toolSearchReflections, err)
	}
	qEmb, err := a.embedder.EmbedQuery(ctx, in.Query)
	if err != nil {
		return toolResult{}, fmt.Errorf("embed query: %w", err)
	}
	hits, err := a.store.VectorSearchReflections(ctx, bankID, qEmb, searchK, tags)
	if err != nil {
		return toolResult{}, fmt.Errorf("search reflections: %w", err)
	}

	type item struct {
		ID      string  `json:"id"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	}
	out := make([]item, len(hits))
	touched := make([]touchedUnit, 0, len(hits))
	for i, h := range hits {
		out[i] = item{ID: h.Reflection.ID, Content: h.Reflection.Content, Score: h.Score}
		touched = append(touched, touchedUnit{id: h.Reflection.ID})
	}
	body, _ := json.Marshal(out)
	return toolResult{observation: string(body), touched: touched}, nil
}

func (a *Agent) runSearchMentalModels(ctx context.Context, bankID string, args []byte, tags []string) (toolResult, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolResult{}, fmt.Errorf("parse %s args: %w", toolSearchMentalModels, err)
	}
	qEmb, err := a.embedder.EmbedQuery(ctx, in.Query)
	if err != nil {
		return toolResult{}, fmt.Errorf("embed query: %w", err)
	}
	hits, err := a.store.MentalModelsByEmbedding(ctx, bankID, qEmb, searchK)
	if err != nil {
		return toolResult{}, fmt.Errorf("search mental models: %w", err)
	}

	type item struct {
		ID              string   `json:"id"`
		Text            string   `json:"text"`
		ProofCount      int      `json:"proof_count"`
		SourceMemoryIDs []string `json:"source_memory_ids"`
	}
	var out []item
	touched := make([]touchedUnit, 0, len(hits))
	for _, h := range hits {
		if !tagsCompatible(h.Unit.Tags, tags) {
			continue
		}
		out = append(out, item{ID: h.Unit.ID, Text: h.Unit.Text, ProofCount: h.Unit.ProofCount, SourceMemoryIDs: h.Unit.SourceMemoryIDs})
		touched = append(touched, touchedUnit{id: h.Unit.ID, factType: model.FactMentalModel})
	}
	body, _ := json.Marshal(out)
	return toolResult{observation: string(body), touched: touched}, nil
}

func (a *Agent) runRecall(ctx context.Context, bankID string, args []byte, tags []string, budget config.RecallBudgetLevel) (toolResult, error) {
	var in struct {
		Query     string   `json:"query"`
		FactTypes []string `json:"fact_types"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolResult{}, fmt.Errorf("parse %s args: %w", toolRecall, err)
	}
	var factTypes []model.FactType
	for _, s := range in.FactTypes {
		factTypes = append(factTypes, model.FactType(s))
	}

	res, err := a.recaller.Recall(ctx, recall.Request{
		BankID: bankID, Query: in.Query, FactTypes: factTypes, Tags: tags, Budget: budget,
	})
	if err != nil {
		return toolResult{}, fmt.Errorf("recall: %w", err)
	}

	type item struct {
		ID       string   `json:"id"`
		Text     string   `json:"text"`
		FactType string   `json:"fact_type"`
		Tags     []string `json:"tags"`
	}
	out := make([]item, len(res.Results))
	touched := make([]touchedUnit, len(res.Results))
	for i, u := range res.Results {
		out[i] = item{ID: u.ID, Text: u.Text, FactType: string(u.FactType), Tags: u.Tags}
		touched[i] = touchedUnit{id: u.ID, factType: u.FactType}
	}
	body, _ := json.Marshal(out)
	return toolResult{observation: string(body), touched: touched}, nil
}

func (a *Agent) runExpand(ctx context.Context, bankID string, args []byte) (toolResult, error) {
	var in struct {
		MemoryIDs []string `json:"memory_ids"`
		Depth     string   `json:"depth"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolResult{}, fmt.Errorf("parse %s args: %w", toolExpand, err)
	}
	units, err := a.store.GetUnitsByIDs(ctx, bankID, in.MemoryIDs)
	if err != nil {
		return toolResult{}, fmt.Errorf("expand: get units: %w", err)
	}

	type item struct {
		ID           string `json:"id"`
		Text         string `json:"text"`
		DocumentText string `json:"document_text,omitempty"`
	}
	out := make([]item, len(units))
	touched := make([]touchedUnit, len(units))
	for i, u := range units {
		it := item{ID: u.ID, Text: u.Text}
		if in.Depth == "document" && u.DocumentID != "" {
			if doc, err := a.store.GetDocument(ctx, bankID, u.DocumentID); err == nil && doc != nil {
				it.DocumentText = doc.OriginalText
			}
		}
		out[i] = it
		touched[i] = touchedUnit{id: u.ID, factType: u.FactType}
	}
	body, _ := json.Marshal(out)
	return toolResult{observation: string(body), touched: touched}, nil
}

// tagsCompatible mirrors the "any" tag match: an untagged model matches
// any filter, and a tagged one must share at least one tag when a
// filter is given.
func tagsCompatible(modelTags, filter []string) bool {
	if len(filter) == 0 || len(modelTags) == 0 {
		return true
	}
	set := make(map[string]bool, len(modelTags))
	for _, t := range modelTags {
		set[t] = true
	}
	for _, t := range filter {
		if set[t] {
			return true
		}
	}
	return false
}
