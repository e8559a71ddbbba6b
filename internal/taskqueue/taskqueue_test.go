package taskqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncBackend_RunsInline(t *testing.T) {
	b := NewSyncBackend(nil)
	var ran int32
	err := b.Submit(context.Background(), Task{
		Kind: KindConsolidation,
		Run: func(ctx context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestSyncBackend_SwallowsTaskError(t *testing.T) {
	b := NewSyncBackend(nil)
	err := b.Submit(context.Background(), Task{
		Run: func(ctx context.Context) error { return assert.AnError },
	})
	assert.NoError(t, err)
}

func TestAsyncBackend_RunsAllSubmittedTasks(t *testing.T) {
	ctx := context.Background()
	b := NewAsyncBackend(ctx, 3, 16, nil)

	var count int32
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Submit(ctx, Task{
			Kind: KindOpinionExtract,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&count, 1)
				return nil
			},
		}))
	}

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, b.Close(closeCtx))
	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestAsyncBackend_RecoversPanickingTask(t *testing.T) {
	ctx := context.Background()
	b := NewAsyncBackend(ctx, 1, 4, nil)

	var after int32
	require.NoError(t, b.Submit(ctx, Task{Run: func(ctx context.Context) error { panic("boom") }}))
	require.NoError(t, b.Submit(ctx, Task{Run: func(ctx context.Context) error {
		atomic.StoreInt32(&after, 1)
		return nil
	}}))

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, b.Close(closeCtx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}
