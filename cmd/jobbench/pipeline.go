package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/MiSTer-devel/downloader/lib/job"
	"github.com/MiSTer-devel/downloader/lib/scheduler"
)

var (
	processDBType   = job.RegisterType("process_db")
	fetchFileType   = job.RegisterType("fetch_file")
	mirrorFetchType = job.RegisterType("fetch_file_mirror")
	verifyFileType  = job.RegisterType("verify_file")
	finalizeDBType  = job.RegisterType("finalize_db")
)

var finalizeTag = job.StringTag("finalize")

var errInjected = errors.New("injected failure")

type processDBJob struct {
	job.Base
	db int
}

func (j *processDBJob) TypeID() job.TypeID { return processDBType }

type fetchFileJob struct {
	job.Base
	db, file   int
	attempts   int
	maxRetries int
}

func (j *fetchFileJob) TypeID() job.TypeID { return fetchFileType }

func (j *fetchFileJob) Retry() (job.Job, bool) {
	if j.attempts >= j.maxRetries {
		return nil, false
	}
	j.attempts++
	return j, true
}

func (j *fetchFileJob) Backup() (job.Job, bool) {
	return job.WithTags(&mirrorFetchJob{db: j.db, file: j.file}, j.Tags()...), true
}

type mirrorFetchJob struct {
	job.Base
	db, file int
}

func (j *mirrorFetchJob) TypeID() job.TypeID { return mirrorFetchType }

type verifyFileJob struct {
	job.Base
	db, file int
}

func (j *verifyFileJob) TypeID() job.TypeID { return verifyFileType }

type finalizeDBJob struct {
	job.Base
	db int
}

func (j *finalizeDBJob) TypeID() job.TypeID { return finalizeDBType }

func dbTag(db int) job.Tag {
	return job.IntTag(db)
}

type workloadOptions struct {
	Databases  int
	Files      int
	FailRate   float64
	MaxRetries int
	Seed       int64
	WorkDelay  time.Duration
}

// workload simulates the downloader: every database fans out into file
// fetches, each fetch is verified, and a finalize job per database waits
// for all the work tagged with that database.
type workload struct {
	opts workloadOptions

	randMu sync.Mutex
	rand   *rand.Rand

	verified  []atomic.Int64
	finalized []atomic.Int64
	// seenAtFinalize is the verified count of a database when its finalize
	// job got through the barrier.
	seenAtFinalize []atomic.Int64
}

func newWorkload(opts workloadOptions) *workload {
	return &workload{
		opts:           opts,
		rand:           rand.New(rand.NewSource(opts.Seed)),
		verified:       make([]atomic.Int64, opts.Databases),
		finalized:      make([]atomic.Int64, opts.Databases),
		seenAtFinalize: make([]atomic.Int64, opts.Databases),
	}
}

func (w *workload) roots() []job.Job {
	jobs := make([]job.Job, 0, w.opts.Databases)
	for db := 0; db < w.opts.Databases; db++ {
		jobs = append(jobs, job.WithTags(&processDBJob{db: db}, dbTag(db)))
	}
	return jobs
}

func (w *workload) workers(js scheduler.JobContext) []scheduler.Worker {
	return []scheduler.Worker{
		scheduler.WorkerFunc(processDBType, w.processDB),
		scheduler.WorkerFunc(fetchFileType, w.fetchFile),
		scheduler.WorkerFunc(mirrorFetchType, w.mirrorFetch),
		scheduler.WorkerFunc(verifyFileType, w.verifyFile),
		scheduler.WorkerFunc(finalizeDBType, func(ctx context.Context, j job.Job) ([]job.Job, error) {
			return w.finalizeDB(ctx, js, j.(*finalizeDBJob))
		}),
	}
}

func (w *workload) processDB(_ context.Context, j job.Job) ([]job.Job, error) {
	db := j.(*processDBJob).db
	next := make([]job.Job, 0, w.opts.Files+1)
	for file := 0; file < w.opts.Files; file++ {
		next = append(next, job.WithTags(&fetchFileJob{
			db:         db,
			file:       file,
			maxRetries: w.opts.MaxRetries,
		}, dbTag(db)))
	}
	next = append(next, job.WithTags(&finalizeDBJob{db: db}, finalizeTag))
	return next, nil
}

func (w *workload) fetchFile(ctx context.Context, j job.Job) ([]job.Job, error) {
	f := j.(*fetchFileJob)
	if err := w.work(ctx, w.opts.FailRate); err != nil {
		return nil, errors.Annotatef(err, "fetch file %d of db %d", f.file, f.db)
	}
	return []job.Job{job.WithTags(&verifyFileJob{db: f.db, file: f.file}, f.Tags()...)}, nil
}

func (w *workload) mirrorFetch(ctx context.Context, j job.Job) ([]job.Job, error) {
	f := j.(*mirrorFetchJob)
	if err := w.work(ctx, w.opts.FailRate/2); err != nil {
		return nil, errors.Annotatef(err, "fetch file %d of db %d from mirror", f.file, f.db)
	}
	return []job.Job{job.WithTags(&verifyFileJob{db: f.db, file: f.file}, f.Tags()...)}, nil
}

func (w *workload) verifyFile(ctx context.Context, j job.Job) ([]job.Job, error) {
	if err := w.work(ctx, 0); err != nil {
		return nil, err
	}
	w.verified[j.(*verifyFileJob).db].Inc()
	return nil, nil
}

func (w *workload) finalizeDB(_ context.Context, js scheduler.JobContext, j *finalizeDBJob) ([]job.Job, error) {
	for js.AnyInProgress(dbTag(j.db)) {
		if err := js.WaitForOtherJobs(0); err != nil {
			return nil, errors.Annotatef(err, "finalize db %d", j.db)
		}
	}
	w.seenAtFinalize[j.db].Store(w.verified[j.db].Load())
	w.finalized[j.db].Inc()
	return nil, nil
}

// work pretends to do some I/O and fails with probability failRate.
func (w *workload) work(ctx context.Context, failRate float64) error {
	if w.opts.WorkDelay > 0 {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-time.After(w.opts.WorkDelay):
		}
	}
	w.randMu.Lock()
	roll := w.rand.Float64()
	w.randMu.Unlock()
	if roll < failRate {
		return errInjected
	}
	return nil
}

type dbResult struct {
	DB             int
	Verified       int64
	Finalized      int64
	SeenAtFinalize int64
}

func (r dbResult) String() string {
	return fmt.Sprintf("db %d: verified=%d finalized=%d seen-at-finalize=%d",
		r.DB, r.Verified, r.Finalized, r.SeenAtFinalize)
}

func (w *workload) results() []dbResult {
	ret := make([]dbResult, 0, w.opts.Databases)
	for db := 0; db < w.opts.Databases; db++ {
		ret = append(ret, dbResult{
			DB:             db,
			Verified:       w.verified[db].Load(),
			Finalized:      w.finalized[db].Load(),
			SeenAtFinalize: w.seenAtFinalize[db].Load(),
		})
	}
	return ret
}
