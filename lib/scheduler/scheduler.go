// Package scheduler runs a dynamic graph of jobs. Jobs are queued in FIFO
// order, dispatched to the worker registered for their kind, and may enqueue
// follow-up jobs as they complete. Failures go through a per-job retry and
// backup policy, and the run as a whole can be cancelled, time out, or be
// aborted by a fail-fast failure.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MiSTer-devel/downloader/lib/config"
	"github.com/MiSTer-devel/downloader/lib/job"
	"github.com/MiSTer-devel/downloader/lib/tracker"
	"github.com/MiSTer-devel/downloader/pkg/autoid"
	"github.com/MiSTer-devel/downloader/pkg/clock"
	"github.com/MiSTer-devel/downloader/pkg/containers"
	derror "github.com/MiSTer-devel/downloader/pkg/errors"
	"github.com/MiSTer-devel/downloader/pkg/errctx"
)

// Scheduler owns the pending queue, the worker registry, the tag lifecycle
// tracker and the run-level flags.
type Scheduler struct {
	cfg      config.Config
	clock    clock.Clock
	tracker  *tracker.Tracker
	reporter Reporter
	runID    string

	workersMu sync.RWMutex
	workers   map[job.TypeID]Worker

	// mu guards everything below it, and the tracker transitions that must
	// be atomic with queue mutations.
	mu        sync.Mutex
	idleCond  *sync.Cond
	pending   *containers.Deque[job.Job]
	inFlight  int
	cycles    map[job.TypeID]int
	cancelled bool
	executing bool
	deadline  time.Time
	runCtx    context.Context

	timedOut  atomic.Bool
	errCenter *errctx.ErrCenter
}

// New creates a scheduler. cfg is adjusted with its defaults.
func New(cfg config.Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg.Adjust(),
		clock:     clock.New(),
		tracker:   tracker.New(),
		reporter:  nopReporter{},
		runID:     autoid.NewUUIDAllocator().AllocID(),
		workers:   make(map[job.TypeID]Worker),
		pending:   containers.NewDeque[job.Job](),
		cycles:    make(map[job.TypeID]int),
		runCtx:    context.Background(),
		errCenter: errctx.NewErrCenter(),
	}
	s.idleCond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWorker binds w to the job kind it reports.
func (s *Scheduler) RegisterWorker(w Worker) error {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()

	tp := w.TypeID()
	if _, ok := s.workers[tp]; ok {
		return errors.Annotatef(derror.ErrWorkerAlreadyRegistered, "job type %s", tp)
	}
	s.workers[tp] = w
	return nil
}

// RegisterWorkers registers every worker, stopping at the first duplicate.
func (s *Scheduler) RegisterWorkers(ws ...Worker) error {
	for _, w := range ws {
		if err := s.RegisterWorker(w); err != nil {
			return err
		}
	}
	return nil
}

// MustRegisterWorkers is like RegisterWorkers but panics on error.
func (s *Scheduler) MustRegisterWorkers(ws ...Worker) {
	if err := s.RegisterWorkers(ws...); err != nil {
		log.L().Panic("register workers failed", zap.Error(err))
	}
}

func (s *Scheduler) lookupWorker(tp job.TypeID) (Worker, bool) {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	w, ok := s.workers[tp]
	return w, ok
}

// PushJob enqueues j. See PushJobs.
func (s *Scheduler) PushJob(j job.Job) {
	s.PushJobs([]job.Job{j})
}

// PushJobs appends jobs to the pending queue in order and marks their tags
// active. Once the run has been cancelled the jobs are dropped and reported
// as cancelled instead.
func (s *Scheduler) PushJobs(jobs []job.Job) {
	jobs = compact(jobs)
	if len(jobs) == 0 {
		return
	}

	s.mu.Lock()
	if s.cancelled {
		s.tracker.Cancelled(jobs)
		s.mu.Unlock()
		log.L().Debug("drop jobs pushed after cancellation",
			zap.String("run-id", s.runID), zap.Int("count", len(jobs)))
		s.reporter.OnCancelled(jobs)
		return
	}
	for _, j := range jobs {
		s.tracker.Started(j)
		s.pending.Add(j)
	}
	s.idleCond.Broadcast()
	s.mu.Unlock()
}

// Execute drains the queue until it is empty with nothing in flight, or
// until the run is aborted. It returns nil on a clean drain, including one
// where some jobs failed gracefully, and otherwise an error whose cause is
// ErrCycleDetected or ErrAbortRequested. A Scheduler executes only once.
func (s *Scheduler) Execute(ctx context.Context) error {
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return errors.Trace(derror.ErrAlreadyExecuting)
	}
	s.executing = true
	runCtx, cancel := s.errCenter.DeriveContext(ctx)
	defer cancel()
	s.runCtx = runCtx
	timeout := s.cfg.Timeout.Duration
	if timeout > 0 {
		s.deadline = s.clock.Now().Add(timeout)
	}
	pending := s.pending.Size()
	s.mu.Unlock()

	if timeout > 0 {
		timer := s.clock.AfterFunc(timeout, s.onTimeout)
		defer timer.Stop()
	}

	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.abort(errors.Annotatef(derror.ErrAbortRequested, "caller context done: %s", ctx.Err()))
		case <-stopCh:
		}
	}()
	defer func() {
		close(stopCh)
		wg.Wait()
	}()

	log.L().Info("job system started",
		zap.String("run-id", s.runID),
		zap.Int("threads", s.cfg.Threads),
		zap.String("fail-policy", string(s.cfg.FailPolicy)),
		zap.Duration("timeout", timeout),
		zap.Int("pending", pending))
	start := s.clock.Now()
	if ctx.Err() != nil {
		s.abort(errors.Annotatef(derror.ErrAbortRequested, "caller context done: %s", ctx.Err()))
	}

	var err error
	if s.cfg.SingleThreaded() {
		err = s.drain(runCtx)
	} else {
		var g errgroup.Group
		for i := 0; i < s.cfg.Threads; i++ {
			g.Go(func() error {
				return s.drain(runCtx)
			})
		}
		err = g.Wait()
	}
	if err == nil {
		// The caller context may have been cancelled after the last drain.
		err = s.errCenter.CheckError()
	}
	fields := []zap.Field{
		zap.String("run-id", s.runID),
		zap.Duration("elapsed", s.clock.Since(start)),
		zap.Bool("timed-out", s.timedOut.Load()),
	}
	if err != nil {
		log.L().Warn("job system aborted", append(fields, zap.Error(err))...)
		return err
	}
	log.L().Info("job system finished", fields...)
	return nil
}

// drain runs jobs until there is nothing left to do. It returns the run
// error when it stopped because the run was aborted.
func (s *Scheduler) drain(ctx context.Context) error {
	for {
		j, ok := s.acquire()
		if !ok {
			return s.errCenter.CheckError()
		}
		s.runJob(ctx, j)
	}
}

// acquire pops the next job, blocking while the queue is empty but other
// jobs are still in flight and may push more.
func (s *Scheduler) acquire() (job.Job, bool) {
	s.mu.Lock()
	for {
		if s.deadlineExceededLocked() {
			s.mu.Unlock()
			s.onTimeout()
			s.mu.Lock()
			continue
		}
		if s.cancelled {
			s.mu.Unlock()
			return nil, false
		}
		if j, ok := s.pending.Pop(); ok {
			s.inFlight++
			s.mu.Unlock()
			return j, true
		}
		if s.inFlight == 0 {
			s.idleCond.Broadcast()
			s.mu.Unlock()
			return nil, false
		}
		s.idleCond.Wait()
	}
}

// tryAcquire pops the next job without blocking.
func (s *Scheduler) tryAcquire() (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return nil, false
	}
	j, ok := s.pending.Pop()
	if ok {
		s.inFlight++
	}
	return j, ok
}

func (s *Scheduler) runJob(ctx context.Context, j job.Job) {
	s.mu.Lock()
	s.tracker.Started(j)
	s.mu.Unlock()
	s.reporter.OnStarted(j)

	next, err := s.operate(ctx, j)
	if err != nil {
		s.onJobFailed(j, err)
	} else {
		s.onJobCompleted(j, compact(next))
	}
	s.reporter.OnTick()
}

func (s *Scheduler) operate(ctx context.Context, j job.Job) (next []job.Job, err error) {
	w, ok := s.lookupWorker(j.TypeID())
	if !ok {
		return nil, errors.Annotatef(derror.ErrWorkerNotFound, "job type %s", j.TypeID())
	}
	defer func() {
		if r := recover(); r != nil {
			log.L().Error("worker panicked",
				zap.String("run-id", s.runID),
				zap.String("job", job.Describe(j)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			next, err = nil, errors.Annotatef(derror.ErrWorkerPanic, "%v", r)
		}
	}()
	return w.Operate(ctx, j)
}

func (s *Scheduler) onJobCompleted(j job.Job, next []job.Job) {
	var discarded []job.Job

	s.mu.Lock()
	delete(s.cycles, j.TypeID())
	s.tracker.Completed(j, next)
	if s.cancelled {
		discarded = next
		s.tracker.Cancelled(discarded)
	} else {
		for _, n := range next {
			s.pending.Add(n)
		}
	}
	s.finishLocked()
	s.mu.Unlock()

	s.reporter.OnCompleted(j, next)
	s.reportCancelled(discarded)
}

func (s *Scheduler) onJobFailed(j job.Job, err error) {
	retry, canRetry := j.Retry()
	canRetry = canRetry && retry != nil
	var (
		backup    job.Job
		hasBackup bool
	)
	if !canRetry {
		backup, hasBackup = j.Backup()
		hasBackup = hasBackup && backup != nil
	}
	tp := j.TypeID()

	s.mu.Lock()
	if s.cancelled {
		s.tracker.Failed(j)
		s.finishLocked()
		s.mu.Unlock()
		s.reporter.OnFailed(j, err)
		return
	}

	if canRetry {
		s.cycles[tp]++
		if cycles := s.cycles[tp]; cycles > s.cfg.MaxCycles {
			cycleErr := errors.Annotatef(derror.ErrCycleDetected,
				"job type %s retried %d times in a row, last error: %s", tp, cycles, err)
			s.errCenter.OnError(cycleErr)
			s.tracker.Failed(j)
			dropped := s.cancelLocked()
			s.finishLocked()
			s.mu.Unlock()

			log.L().Error("job retry loop detected",
				zap.String("run-id", s.runID),
				zap.String("job", job.Describe(j)),
				zap.Int("cycles", cycles),
				zap.Error(err))
			s.reporter.OnFailed(j, cycleErr)
			s.reportCancelled(dropped)
			return
		}
		s.tracker.Retried(j, retry)
		s.pending.Add(retry)
		s.finishLocked()
		s.mu.Unlock()
		s.reporter.OnRetried(j, retry, err)
		return
	}

	var dropped []job.Job
	switch {
	case hasBackup:
		delete(s.cycles, tp)
		s.tracker.BackedUp(j, backup)
		s.pending.Add(backup)
	case s.cfg.FailPolicy == config.FailFast:
		s.tracker.Failed(j)
		s.errCenter.OnError(errors.Annotatef(derror.ErrAbortRequested,
			"job %s failed: %s", job.Describe(j), err))
		dropped = s.cancelLocked()
	default:
		s.tracker.Failed(j)
	}
	s.finishLocked()
	s.mu.Unlock()

	s.reporter.OnFailed(j, err)
	s.reportCancelled(dropped)
}

func (s *Scheduler) finishLocked() {
	s.inFlight--
	s.idleCond.Broadcast()
}

// cancelLocked refuses further work and empties the queue, returning the
// dropped jobs so the caller can report them outside the lock.
func (s *Scheduler) cancelLocked() []job.Job {
	if !s.cancelled {
		s.cancelled = true
		log.L().Info("cancel pending jobs",
			zap.String("run-id", s.runID), zap.Int("pending", s.pending.Size()))
	}
	dropped := s.pending.Drain()
	s.tracker.Cancelled(dropped)
	s.idleCond.Broadcast()
	return dropped
}

func (s *Scheduler) reportCancelled(jobs []job.Job) {
	if len(jobs) > 0 {
		s.reporter.OnCancelled(jobs)
	}
}

// abort records err as the run error, unless one is already recorded, and
// cancels the pending work.
func (s *Scheduler) abort(err error) {
	s.errCenter.OnError(err)
	s.mu.Lock()
	dropped := s.cancelLocked()
	s.mu.Unlock()
	s.reportCancelled(dropped)
}

// CancelPendingJobs drops every queued job and refuses new ones. Jobs
// already running finish normally but their follow-ups are discarded.
func (s *Scheduler) CancelPendingJobs() {
	s.abort(errors.Annotate(derror.ErrAbortRequested, "pending jobs cancelled"))
}

func (s *Scheduler) onTimeout() {
	if !s.timedOut.CAS(false, true) {
		return
	}
	log.L().Warn("job system timed out",
		zap.String("run-id", s.runID), zap.Duration("timeout", s.cfg.Timeout.Duration))
	s.abort(errors.Annotatef(derror.ErrAbortRequested, "timed out after %s", s.cfg.Timeout.Duration))
}

func (s *Scheduler) deadlineExceededLocked() bool {
	return !s.deadline.IsZero() && !s.timedOut.Load() && !s.clock.Now().Before(s.deadline)
}

func (s *Scheduler) checkTimedOut() bool {
	if s.timedOut.Load() {
		return true
	}
	s.mu.Lock()
	exceeded := s.deadlineExceededLocked()
	s.mu.Unlock()
	if exceeded {
		s.onTimeout()
	}
	return s.timedOut.Load()
}

// WaitForOtherJobs yields once so that a worker polling a condition lets
// the rest of the run progress. With a single thread it runs one pending
// job inline, since nothing else could; otherwise it sleeps for interval.
func (s *Scheduler) WaitForOtherJobs(interval time.Duration) error {
	if s.checkTimedOut() {
		return errors.Trace(derror.ErrCannotWaitAfterTimeout)
	}
	s.reporter.OnTick()

	if interval <= 0 {
		interval = s.cfg.PollInterval.Duration
	}
	if s.cfg.SingleThreaded() {
		if j, ok := s.tryAcquire(); ok {
			s.mu.Lock()
			ctx := s.runCtx
			s.mu.Unlock()
			s.runJob(ctx, j)
			return nil
		}
	}
	s.clock.Sleep(interval)
	return nil
}

// TimedOut tells whether the run exceeded its timeout. It stays true for
// the rest of the run.
func (s *Scheduler) TimedOut() bool {
	return s.timedOut.Load()
}

// AnyInProgress tells whether any job carrying one of tags is queued or
// running.
func (s *Scheduler) AnyInProgress(tags ...job.Tag) bool {
	return s.tracker.AnyInProgress(tags...)
}

// PendingCount returns the number of queued jobs.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Size()
}

// InFlightCount returns the number of jobs currently being operated.
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Tracker exposes the tag lifecycle tracker for inspection.
func (s *Scheduler) Tracker() *tracker.Tracker {
	return s.tracker
}

// RunID identifies this scheduler in logs and metrics.
func (s *Scheduler) RunID() string {
	return s.runID
}

func compact(jobs []job.Job) []job.Job {
	out := jobs[:0:0]
	for _, j := range jobs {
		if j != nil {
			out = append(out, j)
		}
	}
	return out
}
