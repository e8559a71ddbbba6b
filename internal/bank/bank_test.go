package bank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store/memstore"
)

func TestGetProfile_AutoCreates(t *testing.T) {
	s := New(memstore.New())
	b, err := s.GetProfile(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.BankID)
	assert.Equal(t, "b1", b.Name)
}

func TestGetProfile_ReturnsExisting(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()
	_, err := s.Create(ctx, "b1", "My Bank", "remember everything", model.Disposition{})
	require.NoError(t, err)

	b, err := s.GetProfile(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "My Bank", b.Name)
	assert.Equal(t, "remember everything", b.Mission)
}

func TestCreate_RejectsEmptyBankID(t *testing.T) {
	s := New(memstore.New())
	_, err := s.Create(context.Background(), "", "", "", model.Disposition{})
	assert.Error(t, err)
}

func TestSetMission_UpdatesExistingBank(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()
	_, err := s.Create(ctx, "b1", "", "", model.Disposition{})
	require.NoError(t, err)

	require.NoError(t, s.SetMission(ctx, "b1", "new mission"))
	b, err := s.GetProfile(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "new mission", b.Mission)
}

func TestDelete_RemovesBank(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()
	_, err := s.Create(ctx, "b1", "", "", model.Disposition{})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "b1"))

	_, err = s.store.GetBank(ctx, "b1")
	assert.Error(t, err)
}
