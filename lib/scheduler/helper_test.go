package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/errors"

	"github.com/MiSTer-devel/downloader/lib/config"
	"github.com/MiSTer-devel/downloader/lib/job"
)

var (
	fetchType  = job.RegisterType("scheduler-test-fetch")
	unzipType  = job.RegisterType("scheduler-test-unzip")
	backupType = job.RegisterType("scheduler-test-backup")
	finalType  = job.RegisterType("scheduler-test-finalize")
)

type testJob struct {
	job.Base
	tp   job.TypeID
	name string

	// selfRetries is how many more times a failure retries the job itself.
	selfRetries int
	retryTo     job.Job
	backup      job.Job
}

func newTestJob(tp job.TypeID, name string, tags ...string) *testJob {
	return job.WithTags(&testJob{tp: tp, name: name}, job.Tags(tags...)...)
}

func (j *testJob) TypeID() job.TypeID {
	return j.tp
}

func (j *testJob) Retry() (job.Job, bool) {
	if j.retryTo != nil {
		return j.retryTo, true
	}
	if j.selfRetries > 0 {
		j.selfRetries--
		return j, true
	}
	return nil, false
}

func (j *testJob) Backup() (job.Job, bool) {
	if j.backup == nil {
		return nil, false
	}
	return j.backup, true
}

func nameOf(j job.Job) string {
	if tj, ok := j.(*testJob); ok {
		return tj.name
	}
	return job.Describe(j)
}

// recorder is a Reporter keeping every event as a short string.
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   map[string]error
	ticks  int
}

func newRecorder() *recorder {
	return &recorder{errs: make(map[string]error)}
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnStarted(j job.Job) {
	r.add("started:%s", nameOf(j))
}

func (r *recorder) OnCompleted(j job.Job, next []job.Job) {
	r.add("completed:%s", nameOf(j))
}

func (r *recorder) OnFailed(j job.Job, err error) {
	r.mu.Lock()
	r.errs[nameOf(j)] = err
	r.mu.Unlock()
	r.add("failed:%s", nameOf(j))
}

func (r *recorder) OnRetried(j job.Job, retry job.Job, err error) {
	r.add("retried:%s->%s", nameOf(j), nameOf(retry))
}

func (r *recorder) OnCancelled(jobs []job.Job) {
	for _, j := range jobs {
		r.add("cancelled:%s", nameOf(j))
	}
}

func (r *recorder) OnTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) Err(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[name]
}

func testConfig(threads int, policy config.FailPolicy) config.Config {
	cfg := config.DefaultConfig()
	cfg.Threads = threads
	cfg.FailPolicy = policy
	return cfg
}

func succeed(next ...job.Job) func(context.Context, job.Job) ([]job.Job, error) {
	return func(context.Context, job.Job) ([]job.Job, error) {
		return next, nil
	}
}

var errBoom = errors.New("boom")

func fail(context.Context, job.Job) ([]job.Job, error) {
	return nil, errBoom
}
