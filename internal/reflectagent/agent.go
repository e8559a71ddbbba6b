// Package reflectagent implements the bounded tool-calling agent behind
// the reflect operation: it composes a system prompt from the bank's
// profile, directives, and disposition, runs a step-limited loop giving
// the model search/recall/expand tools, and emits a final answer. When the
// caller asked for structured output, the answer is checked to parse as
// JSON and re-requested if it does not; it is not validated against the
// caller's schema. Grounded on entityresolver's "gather, call the LLM, validate"
// shape and retain's task-scheduling pattern for the post-reflection
// opinion-extraction hook.
package reflectagent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hindsightdb/hindsight/internal/bank"
	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/logging"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/recall"
	"github.com/hindsightdb/hindsight/internal/retain"
	"github.com/hindsightdb/hindsight/internal/store"
	"github.com/hindsightdb/hindsight/internal/taskqueue"
)

const searchK = 10

// Recaller is the narrow slice of recall.Engine the agent's recall tool
// needs, kept as an interface so tests can substitute a stub.
type Recaller interface {
	Recall(ctx context.Context, req recall.Request) (*recall.Result, error)
}

// OpinionRetainer is the narrow slice of retain.Pipeline the agent's
// post-reflection opinion extraction needs.
type OpinionRetainer interface {
	Retain(ctx context.Context, bankID string, item retain.Item) (string, error)
}

// Request configures one reflect call.
type Request struct {
	BankID         string
	Query          string
	Budget         config.RecallBudgetLevel
	Tags           []string
	Context        string
	ResponseSchema map[string]any
}

// Result is what one reflect call returns.
type Result struct {
	Text             string
	StructuredOutput json.RawMessage
	BasedOn          []string
	Steps            int
}

// Agent runs the reflect tool loop.
type Agent struct {
	store    store.Store
	embedder embeddings.Provider
	llmc     llm.Client
	recaller Recaller
	bank     *bank.Service
	retainer OpinionRetainer
	tasks    taskqueue.Backend
	cfg      config.ReflectConfig
	logger   *logging.Logger
}

// New builds an Agent. retainer and tasks may both be nil to disable
// post-reflection opinion extraction entirely.
func New(s store.Store, embedder embeddings.Provider, llmc llm.Client, recaller Recaller, bankSvc *bank.Service, retainer OpinionRetainer, tasks taskqueue.Backend, cfg config.ReflectConfig, logger *logging.Logger) *Agent {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Agent{
		store: s, embedder: embedder, llmc: llmc, recaller: recaller,
		bank: bankSvc, retainer: retainer, tasks: tasks, cfg: cfg, logger: logger,
	}
}

func (a *Agent) maxSteps(budget config.RecallBudgetLevel) int {
	if n, ok := a.cfg.MaxAgentSteps[budget]; ok && n > 0 {
		return n
	}
	if n, ok := a.cfg.MaxAgentSteps[config.BudgetMid]; ok && n > 0 {
		return n
	}
	return 6
}

// Reflect runs the bounded tool loop and returns the final answer.
func (a *Agent) Reflect(ctx context.Context, req Request) (*Result, error) {
	profile, err := a.bank.GetProfile(ctx, req.BankID)
	if err != nil {
		return nil, fmt.Errorf("reflect: get bank profile: %w", err)
	}
	directives, err := a.store.ListActiveDirectives(ctx, req.BankID, req.Tags)
	if err != nil {
		return nil, fmt.Errorf("reflect: list directives: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: buildSystemPrompt(profile, directives)},
		{Role: "user", Content: userMessage(req)},
	}

	maxSteps := a.maxSteps(req.Budget)
	touched := map[string]touchedUnit{}
	draftText := ""
	steps := 0
	finalized := false

	for steps = 0; steps < maxSteps; steps++ {
		resp, err := a.llmc.Call(ctx, llm.CallOptions{Messages: messages, Tools: toolSchemas, Scope: "reflect.step"})
		if err != nil {
			return nil, fmt.Errorf("reflect: step %d: %w", steps, err)
		}
		messages = append(messages, resp)

		if len(resp.ToolCalls) == 0 {
			draftText = resp.Content
			finalized = true
			steps++
			break
		}

		for _, tc := range resp.ToolCalls {
			tr, terr := a.dispatchTool(ctx, req.BankID, tc, req.Tags, req.Budget)
			obs := tr.observation
			if terr != nil {
				obs = fmt.Sprintf(`{"error": %q}`, terr.Error())
			}
			for _, t := range tr.touched {
				touched[t.id] = t
			}
			messages = append(messages, llm.Message{Role: "tool", Content: obs, ToolCallID: tc.ID})
		}
	}

	if !finalized {
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: "Step budget exhausted. Give your best-effort answer now from whatever has been gathered so far.",
		})
		resp, err := a.llmc.Call(ctx, llm.CallOptions{Messages: messages, Scope: "reflect.finalize"})
		if err != nil {
			return nil, fmt.Errorf("reflect: best-effort finalize: %w", err)
		}
		draftText = resp.Content
		messages = append(messages, resp)
	}

	result := &Result{Text: draftText, BasedOn: idsOf(touched), Steps: steps}

	if req.ResponseSchema != nil {
		structured, fallbackText, err := a.finalizeStructured(ctx, messages, req.ResponseSchema)
		if err != nil {
			return nil, fmt.Errorf("reflect: structured finalize: %w", err)
		}
		if structured != nil {
			result.StructuredOutput = structured
		} else {
			result.Text = fallbackText
		}
	}

	a.maybeScheduleOpinionExtraction(ctx, req.BankID, req.Query, draftText, touched)

	return result, nil
}

func userMessage(req Request) string {
	if req.Context == "" {
		return req.Query
	}
	return fmt.Sprintf("%s\n\nAdditional context:\n%s", req.Query, req.Context)
}

func idsOf(touched map[string]touchedUnit) []string {
	out := make([]string, 0, len(touched))
	for id := range touched {
		out = append(out, id)
	}
	return out
}

// finalizeStructured asks for a schema-matching final answer, re-prompting
// on invalid JSON up to cfg.SchemaRetries times before giving up and
// returning the last raw text instead.
func (a *Agent) finalizeStructured(ctx context.Context, messages []llm.Message, schema map[string]any) (json.RawMessage, string, error) {
	attempts := a.cfg.SchemaRetries
	if attempts <= 0 {
		attempts = 2
	}
	convo := append([]llm.Message{}, messages...)
	var lastText string
	for i := 0; i <= attempts; i++ {
		resp, err := a.llmc.Call(ctx, llm.CallOptions{Messages: convo, Scope: "reflect.structured", ResponseSchema: schema})
		if err != nil {
			return nil, "", err
		}
		lastText = resp.Content
		var probe any
		if json.Unmarshal([]byte(resp.Content), &probe) == nil {
			return json.RawMessage(resp.Content), "", nil
		}
		convo = append(convo, llm.Message{Role: "user", Content: "That wasn't valid JSON for the required schema. Try again."})
	}
	return nil, lastText, nil
}

func dominantFactType(touched map[string]touchedUnit) model.FactType {
	counts := map[model.FactType]int{}
	for _, t := range touched {
		if t.factType == "" {
			continue
		}
		counts[t.factType]++
	}
	var best model.FactType
	bestCount := 0
	for ft, c := range counts {
		if c > bestCount {
			best, bestCount = ft, c
		}
	}
	return best
}

// maybeScheduleOpinionExtraction schedules opinion extraction as a
// fire-and-forget task when the reflection was dominated by experience
// or opinion facts, mirroring the watermark-scan recovery story: a task
// lost to a crash just never gets scheduled again, which is acceptable
// for a best-effort enrichment, not a correctness requirement.
func (a *Agent) maybeScheduleOpinionExtraction(ctx context.Context, bankID, query, answer string, touched map[string]touchedUnit) {
	if a.retainer == nil || a.tasks == nil {
		return
	}
	dominant := dominantFactType(touched)
	if dominant != model.FactExperience && dominant != model.FactOpinion {
		return
	}

	_ = a.tasks.Submit(ctx, taskqueue.Task{
		Kind:   taskqueue.KindOpinionExtract,
		BankID: bankID,
		Run: func(ctx context.Context) error {
			return a.extractAndRetainOpinions(ctx, bankID, query, answer)
		},
	})
}

type extractedOpinion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

var opinionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"opinions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":       map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
				"required": []string{"text", "confidence"},
			},
		},
	},
	"required": []string{"opinions"},
}

const opinionSystemPrompt = "From the answer below, extract any new first-person opinions it states or implies, each with a confidence in [0,1]. Return an empty list if there are none."

func (a *Agent) extractAndRetainOpinions(ctx context.Context, bankID, query, answer string) error {
	resp, err := a.llmc.Call(ctx, llm.CallOptions{
		Messages: []llm.Message{
			{Role: "system", Content: opinionSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Query: %s\nAnswer: %s", query, answer)},
		},
		Scope:          "reflect.opinion_extract",
		ResponseSchema: opinionSchema,
	})
	if err != nil {
		return fmt.Errorf("opinion extraction call: %w", err)
	}

	var parsed struct {
		Opinions []extractedOpinion `json:"opinions"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return fmt.Errorf("parse opinions: %w", err)
	}

	for _, op := range parsed.Opinions {
		if op.Confidence < 0 || op.Confidence > 1 {
			continue
		}
		item := retain.Item{
			Text:     op.Text,
			Context:  "extracted from a reflection answer",
			Metadata: map[string]string{"confidence": fmt.Sprintf("%.2f", op.Confidence)},
		}
		if _, err := a.retainer.Retain(ctx, bankID, item); err != nil {
			a.logger.Error(ctx, "opinion retention failed", zap.String("bank_id", bankID), zap.Error(err))
		}
	}
	return nil
}

var _ Recaller = (*recall.Engine)(nil)
var _ OpinionRetainer = (*retain.Pipeline)(nil)
