package retain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/entityresolver"
	"github.com/hindsightdb/hindsight/internal/llm"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
	"github.com/hindsightdb/hindsight/internal/taskqueue"
)

func extractionReply(facts ...extractedFact) llm.MockFunc {
	return func(ctx context.Context, opts llm.CallOptions) (llm.Message, error) {
		body, _ := json.Marshal(extractionResponse{Facts: facts})
		return llm.Message{Role: "assistant", Content: string(body)}, nil
	}
}

func newTestPipeline(t *testing.T, mock *llm.Mock) (*Pipeline, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	embedder := embeddings.NewDeterministic(16)
	resolver := entityresolver.New(s, embedder, mock, nil)
	tasks := taskqueue.NewSyncBackend(nil)
	cfg := config.Default().Retain
	p := New(s, embedder, mock, resolver, tasks, nil, cfg, nil)
	require.NoError(t, s.CreateBank(context.Background(), model.Bank{BankID: "b1", Name: "b1"}))
	return p, s
}

func TestRetain_InsertsOneFact(t *testing.T) {
	mock := llm.NewMock(extractionReply(extractedFact{Text: "the sky is blue", FactType: "world"}))
	p, s := newTestPipeline(t, mock)

	id, err := p.Retain(context.Background(), "b1", Item{Text: "the sky is blue"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	op, err := s.GetOperation(context.Background(), "b1", id)
	require.NoError(t, err)
	assert.Equal(t, model.OperationCompleted, op.Status)

	units, err := s.WatermarkScan(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "the sky is blue", units[0].Text)
	assert.Equal(t, model.FactWorld, units[0].FactType)
}

func TestRetain_DedupesAgainstExistingUnit(t *testing.T) {
	mock := llm.NewMock(
		extractionReply(extractedFact{Text: "the sky is blue", FactType: "world"}),
		extractionReply(extractedFact{Text: "the sky is blue", FactType: "world"}),
	)
	p, s := newTestPipeline(t, mock)

	_, err := p.Retain(context.Background(), "b1", Item{Text: "first"})
	require.NoError(t, err)
	_, err = p.Retain(context.Background(), "b1", Item{Text: "second"})
	require.NoError(t, err)

	units, err := s.WatermarkScan(context.Background(), "b1")
	require.NoError(t, err)
	assert.Len(t, units, 1, "identical fact text/type should dedup to the existing unit")
}

func TestRetain_PersistsCausalLink(t *testing.T) {
	mock := llm.NewMock(extractionReply(
		extractedFact{Text: "it rained", FactType: "world"},
		extractedFact{Text: "the picnic was canceled", FactType: "world", CausalRelations: []extractedRelation{
			{TargetFactIndex: 0, RelationType: "caused_by"},
		}},
	))
	p, s := newTestPipeline(t, mock)

	_, err := p.Retain(context.Background(), "b1", Item{Text: "it rained, so the picnic was canceled"})
	require.NoError(t, err)

	units, err := s.WatermarkScan(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, units, 2)

	var rainedID, canceledID string
	for _, u := range units {
		if u.Text == "it rained" {
			rainedID = u.ID
		} else {
			canceledID = u.ID
		}
	}
	links, err := s.OutgoingLinks(context.Background(), "b1", []string{canceledID})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.LinkCausal, links[0].Type)
	assert.Equal(t, model.CausedBy, links[0].Relation)
	assert.Equal(t, rainedID, links[0].ToUnitID)
}

func TestValidateCausalRelations_DropsForwardAndSelfReferences(t *testing.T) {
	facts := []extractedFact{
		{Text: "a", CausalRelations: []extractedRelation{{TargetFactIndex: 0, RelationType: "caused_by"}}},
		{Text: "b", CausalRelations: []extractedRelation{{TargetFactIndex: 5, RelationType: "caused_by"}}},
		{Text: "c", CausalRelations: []extractedRelation{{TargetFactIndex: 1, RelationType: "enabled_by"}}},
	}
	out := validateCausalRelations(facts)
	assert.Empty(t, out[0].CausalRelations)
	assert.Empty(t, out[1].CausalRelations)
	require.Len(t, out[2].CausalRelations, 1)
	assert.Equal(t, 1, out[2].CausalRelations[0].TargetFactIndex)
}

func TestRetainBatch_RejectsEmptyInput(t *testing.T) {
	mock := llm.NewMock()
	p, _ := newTestPipeline(t, mock)
	_, err := p.RetainBatch(context.Background(), "b1", nil, BatchOptions{})
	assert.Error(t, err)
}
