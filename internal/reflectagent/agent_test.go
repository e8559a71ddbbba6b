package reflectagent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/bank"
	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/queryanalyzer"
	"github.com/hindsightdb/hindsight/internal/recall"
	"github.com/hindsightdb/hindsight/internal/reranker"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
	"github.com/hindsightdb/hindsight/internal/taskqueue"
)

func newTestAgent(t *testing.T, mock *llm.Mock, retainer OpinionRetainer) (*Agent, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.CreateBank(context.Background(), model.Bank{BankID: "b1", Name: "b1", Mission: "help the user"}))
	embedder := embeddings.NewDeterministic(16)
	recaller := recall.New(s, embedder, reranker.NewLexical(), queryanalyzer.New(), config.Default().Recall)
	bankSvc := bank.New(s)
	tasks := taskqueue.NewSyncBackend(nil)
	a := New(s, embedder, mock, recaller, bankSvc, retainer, tasks, config.Default().Reflect, nil)
	return a, s
}

func toolCallMsg(id, name string, args map[string]any) llm.Message {
	body, _ := json.Marshal(args)
	return llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: id, Name: name, Args: body}}}
}

func finalAnswerMsg(text string) llm.MockFunc {
	return func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		return llm.Message{Role: "assistant", Content: text}, nil
	}
}

func TestReflect_ToolLoopThenFinalAnswer(t *testing.T) {
	stepOne := func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		return toolCallMsg("c1", toolRecall, map[string]any{"query": "the cat"}), nil
	}
	mock := llm.NewMock(stepOne, finalAnswerMsg("the cat sat on the mat"))

	a, store := newTestAgent(t, mock, nil)
	emb, err := a.embedder.EmbedDocuments(context.Background(), []string{"the cat sat on the mat"})
	require.NoError(t, err)
	require.NoError(t, store.InsertUnits(context.Background(), "b1", []model.MemoryUnit{
		{ID: "u1", BankID: "b1", Text: "the cat sat on the mat", FactType: model.FactWorld, Embedding: emb[0], CreatedAt: time.Now()},
	}))

	res, err := a.Reflect(context.Background(), Request{BankID: "b1", Query: "where did the cat sit?", Budget: config.BudgetLow})
	require.NoError(t, err)
	assert.Equal(t, "the cat sat on the mat", res.Text)
	assert.Contains(t, res.BasedOn, "u1")
}

func TestReflect_MaxStepsExhaustedReturnsBestEffort(t *testing.T) {
	alwaysToolCall := func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		if len(opts.Tools) == 0 {
			return llm.Message{Role: "assistant", Content: "best effort answer"}, nil
		}
		return toolCallMsg("c", toolRecall, map[string]any{"query": "x"}), nil
	}
	mock := &llm.Mock{Default: alwaysToolCall}

	a, _ := newTestAgent(t, mock, nil)
	res, err := a.Reflect(context.Background(), Request{BankID: "b1", Query: "anything", Budget: config.BudgetLow})
	require.NoError(t, err)
	assert.Equal(t, "best effort answer", res.Text)
}

func TestReflect_StructuredOutputValidatesJSON(t *testing.T) {
	stepOne := finalAnswerMsg("here is the answer")
	structured := func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		return llm.Message{Role: "assistant", Content: `{"summary":"ok"}`}, nil
	}
	mock := llm.NewMock(stepOne, structured)

	a, _ := newTestAgent(t, mock, nil)
	res, err := a.Reflect(context.Background(), Request{
		BankID: "b1", Query: "q", Budget: config.BudgetLow,
		ResponseSchema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.StructuredOutput)
	assert.JSONEq(t, `{"summary":"ok"}`, string(res.StructuredOutput))
}

func TestRenderDisposition(t *testing.T) {
	d := model.Disposition{Traits: map[string]float64{"openness": 0.9}, Strength: 1.0}
	assert.Contains(t, renderDisposition(d), "openness")
}

func TestBuildSystemPrompt_IncludesDirectivesAndRules(t *testing.T) {
	b := &model.Bank{BankID: "b1", Name: "b1", Mission: "assist"}
	directives := []model.Directive{
		{ID: "d1", Name: "low", Content: "be terse", Priority: 1},
		{ID: "d2", Name: "high", Content: "be safe", Priority: 5},
	}
	prompt := buildSystemPrompt(b, directives)
	assert.Contains(t, prompt, "be safe")
	assert.Contains(t, prompt, fixedRules)
	hiIdx := indexOf(prompt, "be safe")
	loIdx := indexOf(prompt, "be terse")
	assert.Less(t, hiIdx, loIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
