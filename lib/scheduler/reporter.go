package scheduler

import (
	"github.com/MiSTer-devel/downloader/lib/job"
)

// Reporter observes the lifecycle of every job. Each job gets OnStarted
// before exactly one terminal event: OnCompleted, OnFailed, OnRetried into
// a different job, or OnCancelled. Jobs cancelled before they ever ran
// only get OnCancelled.
//
// Reporters are called from the goroutine that owns the job, outside the
// scheduler lock, so they must be safe for concurrent use.
type Reporter interface {
	OnStarted(j job.Job)
	OnCompleted(j job.Job, next []job.Job)
	OnFailed(j job.Job, err error)
	OnRetried(j job.Job, retry job.Job, err error)
	OnCancelled(jobs []job.Job)
	// OnTick is called regularly while the run makes progress or waits.
	OnTick()
}

type nopReporter struct{}

func (nopReporter) OnStarted(job.Job)                 {}
func (nopReporter) OnCompleted(job.Job, []job.Job)    {}
func (nopReporter) OnFailed(job.Job, error)           {}
func (nopReporter) OnRetried(job.Job, job.Job, error) {}
func (nopReporter) OnCancelled([]job.Job)             {}
func (nopReporter) OnTick()                           {}
