package consolidation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
)

func decisionReply(action, modelID, name, summary string, tags []string) llm.MockFunc {
	return func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		body, _ := json.Marshal(llmActionResponse{Action: action, ModelID: modelID, Name: name, Summary: summary, Tags: tags})
		return llm.Message{Role: "assistant", Content: string(body)}, nil
	}
}

func newTestEngine(t *testing.T, mock *llm.Mock) (*Engine, *memstore.Store, embeddings.Provider) {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.CreateBank(context.Background(), model.Bank{BankID: "b1", Name: "b1"}))
	embedder := embeddings.NewDeterministic(16)
	cfg := config.Default().Consolidation
	e := New(s, embedder, mock, cfg, nil)
	return e, s, embedder
}

func insertUnit(t *testing.T, s *memstore.Store, embedder embeddings.Provider, id, text string, tags []string) model.MemoryUnit {
	t.Helper()
	emb, err := embedder.EmbedDocuments(context.Background(), []string{text})
	require.NoError(t, err)
	u := model.MemoryUnit{
		ID: id, BankID: "b1", Text: text, FactType: model.FactExperience, Tags: tags,
		Embedding: emb[0], CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertUnits(context.Background(), "b1", []model.MemoryUnit{u}))
	return u
}

func TestConsolidate_Disabled(t *testing.T) {
	e, _, _ := newTestEngine(t, llm.NewMock())
	e.cfg.Enabled = false
	res, err := e.Consolidate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, res.Status)
}

func TestConsolidate_NoNewMemories(t *testing.T) {
	e, _, _ := newTestEngine(t, llm.NewMock())
	res, err := e.Consolidate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusNoNewMemories, res.Status)
}

func TestConsolidate_CreatesNewMentalModel(t *testing.T) {
	mock := llm.NewMock(decisionReply("create", "", "prefers tea", "consistently prefers tea over coffee", []string{"preferences"}))
	e, s, embedder := newTestEngine(t, mock)
	u := insertUnit(t, s, embedder, "u1", "ordered tea again instead of coffee", []string{"preferences"})

	res, err := e.Consolidate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.MemoriesProcessed)

	models, err := s.MentalModelsByEmbedding(context.Background(), "b1", u.Embedding, 5)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "consistently prefers tea over coffee", models[0].Unit.Text)
	assert.Equal(t, 1, models[0].Unit.ProofCount)
	assert.Contains(t, models[0].Unit.SourceMemoryIDs, u.ID)

	links, err := s.OutgoingLinks(context.Background(), "b1", []string{u.ID})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.LinkSemantic, links[0].Type)
}

func TestConsolidate_UpdatesExistingModel(t *testing.T) {
	e, s, embedder := newTestEngine(t, llm.NewMock())
	existing := insertMentalModel(t, s, embedder, "m1", "prefers tea over coffee", []string{"preferences"}, 1)

	mock := llm.NewMock(decisionReply("update", existing.ID, "", "strongly prefers tea over coffee, confirmed twice", nil))
	e.llmc = mock
	u := insertUnit(t, s, embedder, "u1", "chose tea again", []string{"preferences"})

	res, err := e.Consolidate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MemoriesProcessed)

	updated, err := s.GetUnitsByIDs(context.Background(), "b1", []string{existing.ID})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "strongly prefers tea over coffee, confirmed twice", updated[0].Text)
	assert.Equal(t, 2, updated[0].ProofCount)
	assert.Len(t, updated[0].History, 1)
	assert.Equal(t, u.ID, updated[0].History[0].TriggerUnitID)
}

func TestConsolidate_DifferentScopeRedirectsToCreate(t *testing.T) {
	e, s, embedder := newTestEngine(t, llm.NewMock())
	existing := insertMentalModel(t, s, embedder, "m1", "work habits summary", []string{"work"}, 1)

	mock := llm.NewMock(decisionReply("update", existing.ID, "", "merged summary", nil))
	e.llmc = mock
	insertUnit(t, s, embedder, "u1", "a personal habit unrelated to work", []string{"personal"})

	res, err := e.Consolidate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MemoriesProcessed)

	unchanged, err := s.GetUnitsByIDs(context.Background(), "b1", []string{existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "work habits summary", unchanged[0].Text)
}

func TestClassifyScope(t *testing.T) {
	assert.Equal(t, scopeSame, classifyScope([]string{"a"}, []string{"a"}))
	assert.Equal(t, scopeUnitScopedModelGlobal, classifyScope([]string{"a"}, nil))
	assert.Equal(t, scopeUnitGlobalModelScoped, classifyScope(nil, []string{"a"}))
	assert.Equal(t, scopeDifferent, classifyScope([]string{"a"}, []string{"b"}))
}

func insertMentalModel(t *testing.T, s *memstore.Store, embedder embeddings.Provider, id, text string, tags []string, proofCount int) model.MemoryUnit {
	t.Helper()
	emb, err := embedder.EmbedDocuments(context.Background(), []string{text})
	require.NoError(t, err)
	u := model.MemoryUnit{
		ID: id, BankID: "b1", Text: text, FactType: model.FactMentalModel, Tags: tags,
		Embedding: emb[0], ProofCount: proofCount, CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertMentalModel(context.Background(), "b1", u))
	return u
}
