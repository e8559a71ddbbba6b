package taskqueue

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hindsightdb/hindsight/internal/logging"
)

// AsyncBackend runs tasks on a small bounded worker pool. Submit enqueues
// onto a buffered channel and returns as soon as the task is queued; when
// the queue is full it blocks until there is room, or errors once ctx is
// done.
type AsyncBackend struct {
	queue   chan Task
	group   *errgroup.Group
	groupCtx context.Context
	cancel  context.CancelFunc
	logger  *logging.Logger
}

// NewAsyncBackend starts workers workers, each consuming from a queue of
// depth queueSize.
func NewAsyncBackend(ctx context.Context, workers, queueSize int, logger *logging.Logger) *AsyncBackend {
	if logger == nil {
		logger = logging.NewNop()
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	groupCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(groupCtx)

	b := &AsyncBackend{
		queue:    make(chan Task, queueSize),
		group:    g,
		groupCtx: gctx,
		cancel:   cancel,
		logger:   logger,
	}

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			b.worker(gctx)
			return nil
		})
	}

	return b
}

func (b *AsyncBackend) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-b.queue:
			if !ok {
				return
			}
			b.run(ctx, task)
		}
	}
}

func (b *AsyncBackend) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "task panicked",
				zap.String("kind", string(task.Kind)), zap.String("bank_id", task.BankID),
				zap.Any("panic", r))
		}
	}()
	if err := task.Run(ctx); err != nil {
		b.logger.Error(ctx, "task failed",
			zap.String("kind", string(task.Kind)), zap.String("bank_id", task.BankID), zap.Error(err))
	}
}

// Submit enqueues task, blocking only until there's room in the queue or
// ctx is canceled.
func (b *AsyncBackend) Submit(ctx context.Context, task Task) error {
	select {
	case b.queue <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("taskqueue: submit canceled: %w", ctx.Err())
	}
}

// Close stops accepting new work and waits for the worker pool to drain,
// bounded by ctx.
func (b *AsyncBackend) Close(ctx context.Context) error {
	close(b.queue)
	done := make(chan error, 1)
	go func() { done <- b.group.Wait() }()

	select {
	case err := <-done:
		b.cancel()
		return err
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

var _ Backend = (*AsyncBackend)(nil)
