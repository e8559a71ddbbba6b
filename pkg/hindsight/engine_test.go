package hindsight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
)

func newTestEngine(t *testing.T, mock *llm.Mock) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Embeddings.Provider = "mock"
	cfg.Embeddings.Dimension = 16
	cfg.TaskQueue.Mode = "sync"
	if mock == nil {
		mock = llm.NewMock()
	}
	e, err := New(context.Background(), cfg, WithStore(memstore.New()), WithLLMClient(mock))
	require.NoError(t, err)
	return e
}

func TestNew_BuildsEngineWithMockStoreAndLLM(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NotNil(t, e)
	require.NoError(t, e.Close(context.Background()))
}

func TestCreateBank_ThenGetBankProfile(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	b, err := e.CreateBank(ctx, "b1", "My Bank", "remember everything", model.Disposition{})
	require.NoError(t, err)
	assert.Equal(t, "My Bank", b.Name)

	got, err := e.GetBankProfile(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "remember everything", got.Mission)
}

func TestGetBankProfile_AutoCreatesUnknownBank(t *testing.T) {
	e := newTestEngine(t, nil)
	b, err := e.GetBankProfile(context.Background(), "new-bank")
	require.NoError(t, err)
	assert.Equal(t, "new-bank", b.BankID)
}

func TestRetainThenRecall_RoundTrips(t *testing.T) {
	extractReply := func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		return llm.Message{Role: "assistant", Content: `{"facts":[{"text":"the cat sat on the mat","fact_type":"world"}]}`}, nil
	}
	mock := llm.NewMock(extractReply)
	e := newTestEngine(t, mock)
	ctx := context.Background()

	_, err := e.CreateBank(ctx, "b1", "b1", "", model.Disposition{})
	require.NoError(t, err)

	_, err = e.Retain(ctx, "b1", RetainItem{Text: "the cat sat on the mat"})
	require.NoError(t, err)

	res, err := e.Recall(ctx, RecallRequest{BankID: "b1", Query: "where did the cat sit?", Budget: config.BudgetLow})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
}

func TestDirectiveCRUD(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	_, err := e.CreateBank(ctx, "b1", "b1", "", model.Disposition{})
	require.NoError(t, err)

	d, err := e.CreateDirective(ctx, model.Directive{BankID: "b1", Name: "tone", Content: "be terse", Priority: 1, IsActive: true})
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)

	active, err := e.ListActiveDirectives(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, e.DeleteDirective(ctx, "b1", d.ID))
	active, err = e.ListActiveDirectives(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Empty(t, active)
}
