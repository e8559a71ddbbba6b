package taskqueue

import (
	"context"

	"go.uber.org/zap"

	"github.com/hindsightdb/hindsight/internal/logging"
)

// SyncBackend runs every task inline on the submitting goroutine. Used by
// tests and the CLI's synchronous mode where deterministic completion
// matters more than throughput.
type SyncBackend struct {
	logger *logging.Logger
}

// NewSyncBackend builds a SyncBackend.
func NewSyncBackend(logger *logging.Logger) *SyncBackend {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SyncBackend{logger: logger}
}

func (b *SyncBackend) Submit(ctx context.Context, task Task) error {
	if err := task.Run(ctx); err != nil {
		b.logger.Error(ctx, "task failed", zap.String("kind", string(task.Kind)), zap.String("bank_id", task.BankID), zap.Error(err))
	}
	return nil
}

func (b *SyncBackend) Close(ctx context.Context) error { return nil }

var _ Backend = (*SyncBackend)(nil)
