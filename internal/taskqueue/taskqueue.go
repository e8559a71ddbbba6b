// Package taskqueue schedules fire-and-forget work after retain and
// reflect complete — consolidation runs, opinion extraction.
// Two implementations share one contract: AsyncBackend queues work onto a
// bounded worker pool and returns immediately; SyncBackend runs the task
// inline, for tests and synchronous CLI invocations. Neither persists
// tasks across a process restart — at-least-once execution only holds
// within one process's lifetime, and lost work is recovered by the next
// watermark scan, not by the queue.
package taskqueue

import (
	"context"
)

// Kind distinguishes the task types the engine schedules.
type Kind string

const (
	KindConsolidation    Kind = "consolidation"
	KindOpinionExtract   Kind = "opinion_extraction"
)

// Task is one unit of scheduled work.
type Task struct {
	Kind   Kind
	BankID string
	// Run performs the work. Errors are logged but never propagated to the
	// submitter.
	Run func(ctx context.Context) error
}

// Backend accepts tasks for eventual execution.
type Backend interface {
	Submit(ctx context.Context, task Task) error
	// Close stops accepting new tasks and waits for in-flight ones to
	// finish (bounded by ctx).
	Close(ctx context.Context) error
}
