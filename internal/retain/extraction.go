package retain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/model"
)

// extractedEntity is one entity mention as emitted by the extraction call.
type extractedEntity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// extractedRelation is one causal edge between two facts in the same
// extraction response, by index.
type extractedRelation struct {
	TargetFactIndex int    `json:"target_fact_index"`
	RelationType    string `json:"relation_type"`
}

// extractedFact is one fact as emitted by the extraction call, before
// hard validation.
type extractedFact struct {
	Text            string              `json:"text"`
	EventDate       string              `json:"event_date"`
	FactType        string              `json:"fact_type"`
	Entities        []extractedEntity   `json:"entities"`
	CausalRelations []extractedRelation `json:"causal_relations"`
}

type extractionResponse struct {
	Facts []extractedFact `json:"facts"`
}

var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"facts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":       map[string]any{"type": "string"},
					"event_date": map[string]any{"type": "string"},
					"fact_type":  map[string]any{"type": "string", "enum": []string{"world", "experience", "opinion"}},
					"entities": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"text": map[string]any{"type": "string"},
								"type": map[string]any{"type": "string"},
							},
						},
					},
					"causal_relations": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"target_fact_index": map[string]any{"type": "integer"},
								"relation_type":     map[string]any{"type": "string", "enum": []string{"caused_by", "enabled_by", "prevented_by"}},
							},
						},
					},
				},
				"required": []string{"text", "fact_type"},
			},
		},
	},
	"required": []string{"facts"},
}

const extractionSystemPrompt = "Extract discrete, atomic facts from the supplied text. " +
	"Classify each fact as world (about someone other than the narrator), experience " +
	"(first-person, about the narrator), or opinion (a first-person belief or preference). " +
	"Rewrite experience facts in first person (\"I ...\"); keep world facts in third person. " +
	"List every named entity mentioned in each fact. When one fact is caused by, enabled by, " +
	"or prevented by an earlier fact in this same response, record that as a causal_relation " +
	"pointing at the earlier fact's index (0-based, strictly less than this fact's own index). " +
	"The first fact can never have a causal relation."

// extractFacts calls the LLM against chunk, splitting and recursing on
// OutputTooLongError, and returns hard-validated facts in
// order.
func (p *Pipeline) extractFacts(ctx context.Context, chunkText, context_ string) ([]extractedFact, error) {
	resp, err := p.llmc.Call(ctx, llm.CallOptions{
		Messages: []llm.Message{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context: %s\n\nText:\n%s", context_, chunkText)},
		},
		Scope:          "retain.extract",
		ResponseSchema: extractionSchema,
	})

	if errors.Is(err, errs.OutputTooLong) {
		left, right := splitMidpoint(chunkText)
		var leftFacts, rightFacts []extractedFact
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			facts, err := p.extractFacts(gctx, left, context_)
			leftFacts = facts
			return err
		})
		g.Go(func() error {
			facts, err := p.extractFacts(gctx, right, context_)
			rightFacts = facts
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return append(leftFacts, rightFacts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("retain: extract facts: %w", err)
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("retain: parse extraction response: %w", err)
	}

	return validateCausalRelations(parsed.Facts), nil
}

// validateCausalRelations drops any causal relation whose target index is
// not strictly less than its own fact's index, or negative.
func validateCausalRelations(facts []extractedFact) []extractedFact {
	for i := range facts {
		var kept []extractedRelation
		for _, r := range facts[i].CausalRelations {
			if r.TargetFactIndex >= 0 && r.TargetFactIndex < i {
				kept = append(kept, r)
			}
		}
		facts[i].CausalRelations = kept
	}
	return facts
}

func factTypeOf(s string) model.FactType {
	switch model.FactType(s) {
	case model.FactWorld, model.FactExperience, model.FactOpinion:
		return model.FactType(s)
	default:
		return model.FactWorld
	}
}

func causalRelationOf(s string) model.CausalRelation {
	switch model.CausalRelation(s) {
	case model.CausedBy, model.EnabledBy, model.PreventedBy:
		return model.CausalRelation(s)
	default:
		return model.CausedBy
	}
}
