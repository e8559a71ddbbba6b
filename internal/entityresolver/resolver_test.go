package entityresolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/embeddings"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
)

func TestResolveBatch_CreatesNewEntityWhenNoCandidate(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.CreateBank(context.Background(), model.Bank{BankID: "b1", Name: "b1"}))
	r := New(s, embeddings.NewDeterministic(32), nil, nil)

	ids, err := r.ResolveBatch(context.Background(), "b1", []Mention{{Text: "Melanie", Type: model.EntityPerson}}, "dinner with Melanie", time.Now())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])

	got, err := s.GetEntityByNormalizedName(context.Background(), "b1", "melanie", model.EntityPerson)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ids[0], got.ID)
}

func TestResolveBatch_ReusesExactNormalizedMatch(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.CreateBank(ctx, model.Bank{BankID: "b1", Name: "b1"}))
	r := New(s, embeddings.NewDeterministic(32), nil, nil)

	first, err := r.ResolveBatch(ctx, "b1", []Mention{{Text: "Melanie", Type: model.EntityPerson}}, "", time.Now())
	require.NoError(t, err)

	second, err := r.ResolveBatch(ctx, "b1", []Mention{{Text: "melanie,", Type: model.EntityPerson}}, "", time.Now())
	require.NoError(t, err)

	assert.Equal(t, first[0], second[0])
}

func TestResolveBatch_GroupsDuplicateMentionsInOneCall(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.CreateBank(ctx, model.Bank{BankID: "b1", Name: "b1"}))
	r := New(s, embeddings.NewDeterministic(32), nil, nil)

	mentions := []Mention{
		{Text: "Melanie", Type: model.EntityPerson},
		{Text: "Paris", Type: model.EntityPlace},
		{Text: "melanie", Type: model.EntityPerson},
	}
	ids, err := r.ResolveBatch(ctx, "b1", mentions, "", time.Now())
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestResolveBatch_EmptyInputReturnsNil(t *testing.T) {
	s := memstore.New()
	r := New(s, embeddings.NewDeterministic(32), nil, nil)
	ids, err := r.ResolveBatch(context.Background(), "b1", nil, "", time.Now())
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestLinkUnitsToEntitiesBatch_Delegates(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.CreateBank(ctx, model.Bank{BankID: "b1", Name: "b1"}))
	r := New(s, embeddings.NewDeterministic(32), nil, nil)

	require.NoError(t, s.InsertEntity(ctx, "b1", model.Entity{ID: "e1", BankID: "b1", CanonicalName: "Melanie", Type: model.EntityPerson}))
	err := r.LinkUnitsToEntitiesBatch(ctx, "b1", []model.UnitEntityLink{{UnitID: "u1", EntityID: "e1"}})
	require.NoError(t, err)

	ents, err := s.EntitiesForUnit(ctx, "b1", "u1")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "e1", ents[0].ID)
}
