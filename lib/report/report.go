// Package report provides stock progress reporters for the scheduler.
package report

import (
	"github.com/MiSTer-devel/downloader/lib/job"
	"github.com/MiSTer-devel/downloader/lib/scheduler"
)

var (
	_ scheduler.Reporter = Nop{}
	_ scheduler.Reporter = (*multi)(nil)
	_ scheduler.Reporter = (*Log)(nil)
	_ scheduler.Reporter = (*Stats)(nil)
	_ scheduler.Reporter = (*Metrics)(nil)
	_ scheduler.Reporter = (*Events)(nil)
)

// Nop discards every event.
type Nop struct{}

func (Nop) OnStarted(job.Job)                 {}
func (Nop) OnCompleted(job.Job, []job.Job)    {}
func (Nop) OnFailed(job.Job, error)           {}
func (Nop) OnRetried(job.Job, job.Job, error) {}
func (Nop) OnCancelled([]job.Job)             {}
func (Nop) OnTick()                           {}

// Multi fans every event out to rs, in order. Nil reporters are skipped.
func Multi(rs ...scheduler.Reporter) scheduler.Reporter {
	m := &multi{}
	for _, r := range rs {
		if r != nil {
			m.rs = append(m.rs, r)
		}
	}
	return m
}

type multi struct {
	rs []scheduler.Reporter
}

func (m *multi) OnStarted(j job.Job) {
	for _, r := range m.rs {
		r.OnStarted(j)
	}
}

func (m *multi) OnCompleted(j job.Job, next []job.Job) {
	for _, r := range m.rs {
		r.OnCompleted(j, next)
	}
}

func (m *multi) OnFailed(j job.Job, err error) {
	for _, r := range m.rs {
		r.OnFailed(j, err)
	}
}

func (m *multi) OnRetried(j job.Job, retry job.Job, err error) {
	for _, r := range m.rs {
		r.OnRetried(j, retry, err)
	}
}

func (m *multi) OnCancelled(jobs []job.Job) {
	for _, r := range m.rs {
		r.OnCancelled(jobs)
	}
}

func (m *multi) OnTick() {
	for _, r := range m.rs {
		r.OnTick()
	}
}
