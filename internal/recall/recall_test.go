package recall

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/queryanalyzer"
	"github.com/hindsightdb/hindsight/internal/reranker"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.Store, embeddings.Provider) {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.CreateBank(context.Background(), model.Bank{BankID: "b1", Name: "b1"}))
	embedder := embeddings.NewDeterministic(16)
	e := New(s, embedder, reranker.NewLexical(), queryanalyzer.New(), config.Default().Recall)
	return e, s, embedder
}

func insertUnit(t *testing.T, s *memstore.Store, embedder embeddings.Provider, id, text string, factType model.FactType, tags []string, eventDate *time.Time) model.MemoryUnit {
	t.Helper()
	emb, err := embedder.EmbedDocuments(context.Background(), []string{text})
	require.NoError(t, err)
	u := model.MemoryUnit{
		ID: id, BankID: "b1", Text: text, FactType: factType, Tags: tags,
		Embedding: emb[0], EventDate: eventDate, CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertUnits(context.Background(), "b1", []model.MemoryUnit{u}))
	return u
}

func TestRecall_EmptyBankReturnsEmptyResult(t *testing.T) {
	e, _, _ := newTestEngine(t)
	res, err := e.Recall(context.Background(), Request{BankID: "b1", Query: "anything", Budget: config.BudgetLow})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestRecall_FindsMatchingUnit(t *testing.T) {
	e, s, embedder := newTestEngine(t)
	insertUnit(t, s, embedder, "u1", "the cat sat on the mat", model.FactWorld, nil, nil)
	insertUnit(t, s, embedder, "u2", "stock markets fell sharply today", model.FactWorld, nil, nil)

	res, err := e.Recall(context.Background(), Request{BankID: "b1", Query: "the cat sat on the mat", Budget: config.BudgetLow})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "u1", res.Results[0].ID)
}

func TestRecall_TagFilterExcludesNonMatching(t *testing.T) {
	e, s, embedder := newTestEngine(t)
	insertUnit(t, s, embedder, "u1", "a tagged fact about gardening", model.FactWorld, []string{"gardening"}, nil)
	insertUnit(t, s, embedder, "u2", "a tagged fact about gardening too", model.FactWorld, []string{"finance"}, nil)

	res, err := e.Recall(context.Background(), Request{
		BankID: "b1", Query: "gardening", Budget: config.BudgetLow,
		Tags: []string{"gardening"}, TagsMatchMode: model.TagMatchAnyStrict,
	})
	require.NoError(t, err)
	for _, u := range res.Results {
		assert.Contains(t, u.Tags, "gardening")
	}
}

func TestRecall_TraceEmitsAllSections(t *testing.T) {
	e, s, embedder := newTestEngine(t)
	insertUnit(t, s, embedder, "u1", "a traced fact", model.FactWorld, nil, nil)

	res, err := e.Recall(context.Background(), Request{BankID: "b1", Query: "a traced fact", Budget: config.BudgetLow, EnableTrace: true})
	require.NoError(t, err)
	require.NotNil(t, res.Trace)
	assert.NotNil(t, res.Trace.EntryPoints)
	assert.NotNil(t, res.Trace.NodeVisits)
	assert.NotNil(t, res.Trace.WeightComponents)
	assert.NotNil(t, res.Trace.LinkInfo)
	assert.NotNil(t, res.Trace.PruningDecisions)
	assert.NotNil(t, res.Trace.PhaseMetrics)
}

func TestRecall_IncludeEntitiesReturnsLinkedEntities(t *testing.T) {
	e, s, embedder := newTestEngine(t)
	u := insertUnit(t, s, embedder, "u1", "marie curie discovered polonium", model.FactWorld, nil, nil)
	require.NoError(t, s.InsertEntity(context.Background(), "b1", model.Entity{ID: "e1", BankID: "b1", CanonicalName: "Curie", Type: model.EntityPerson}))
	require.NoError(t, s.LinkUnitsToEntities(context.Background(), "b1", []model.UnitEntityLink{{UnitID: u.ID, EntityID: "e1"}}))

	res, err := e.Recall(context.Background(), Request{
		BankID: "b1", Query: "marie curie discovered polonium", Budget: config.BudgetLow,
		Include: IncludeOptions{Entities: true},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	require.NotEmpty(t, res.Entities)
	assert.Equal(t, "e1", res.Entities[0].ID)
}

func TestTagsMatch_AnyStrictExcludesUntagged(t *testing.T) {
	assert.False(t, tagsMatch(nil, []string{"x"}, model.TagMatchAnyStrict))
	assert.True(t, tagsMatch(nil, []string{"x"}, model.TagMatchAny))
	assert.True(t, tagsMatch([]string{"x"}, []string{"x"}, model.TagMatchAnyStrict))
}

func TestMMRSelect_RespectsTokenBudget(t *testing.T) {
	candidates := []scoredUnit{
		{unit: model.MemoryUnit{ID: "a", Text: "short"}, final: 0.9},
		{unit: model.MemoryUnit{ID: "b", Text: "also short text here"}, final: 0.8},
		{unit: model.MemoryUnit{ID: "c", Text: "a third candidate unit"}, final: 0.7},
	}
	out := mmrSelect(candidates, 0.5, 10, 0.25, 1)
	assert.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), len(candidates))
}
