package scheduler

import (
	"context"
	"time"

	"github.com/MiSTer-devel/downloader/lib/job"
)

// Worker executes the jobs of exactly one kind.
//
// Operate may be called concurrently with other workers, and with itself
// for different jobs, but never twice at the same time for the same job
// instance. The returned jobs are enqueued as follow-ups. Workers are
// side-effecting and retries may re-run them, so they are expected to be
// idempotent or to validate what they produce.
type Worker interface {
	TypeID() job.TypeID
	Operate(ctx context.Context, j job.Job) ([]job.Job, error)
}

// WorkerFunc adapts a function into a Worker for one job kind.
func WorkerFunc(tp job.TypeID, fn func(ctx context.Context, j job.Job) ([]job.Job, error)) Worker {
	return &funcWorker{tp: tp, fn: fn}
}

type funcWorker struct {
	tp job.TypeID
	fn func(ctx context.Context, j job.Job) ([]job.Job, error)
}

func (w *funcWorker) TypeID() job.TypeID {
	return w.tp
}

func (w *funcWorker) Operate(ctx context.Context, j job.Job) ([]job.Job, error) {
	return w.fn(ctx, j)
}

// JobContext is the part of the scheduler workers are allowed to use.
type JobContext interface {
	PushJob(j job.Job)
	PushJobs(jobs []job.Job)
	CancelPendingJobs()
	// WaitForOtherJobs yields for one poll increment so that the caller can
	// re-check a condition, typically AnyInProgress. A zero interval uses
	// the configured poll interval.
	WaitForOtherJobs(interval time.Duration) error
	TimedOut() bool
	AnyInProgress(tags ...job.Tag) bool
}

var _ JobContext = (*Scheduler)(nil)
