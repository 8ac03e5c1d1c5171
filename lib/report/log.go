package report

import (
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MiSTer-devel/downloader/lib/job"
)

const defaultProgressInterval = 5 * time.Second

// Log writes job lifecycle events to the global logger. Per-job events
// are logged at debug level, failures at warn level. OnTick logs a
// progress line at most once per interval.
type Log struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	stats   *Stats
}

// NewLog creates a Log reporter. A non-positive interval uses the default.
// When stats is not nil the progress line carries its totals.
func NewLog(interval time.Duration, stats *Stats) *Log {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &Log{
		logger:  log.L().With(zap.String("component", "job-report")),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		stats:   stats,
	}
}

func (l *Log) OnStarted(j job.Job) {
	l.logger.Debug("job started", jobFields(j)...)
}

func (l *Log) OnCompleted(j job.Job, next []job.Job) {
	l.logger.Debug("job completed", append(jobFields(j), zap.Int("follow-ups", len(next)))...)
}

func (l *Log) OnFailed(j job.Job, err error) {
	l.logger.Warn("job failed", append(jobFields(j), zap.Error(err))...)
}

func (l *Log) OnRetried(j job.Job, retry job.Job, err error) {
	l.logger.Info("job retried",
		append(jobFields(j), zap.String("retry", job.Describe(retry)), zap.Error(err))...)
}

func (l *Log) OnCancelled(jobs []job.Job) {
	if len(jobs) == 0 {
		return
	}
	l.logger.Info("jobs cancelled",
		zap.Int("count", len(jobs)), zap.String("first", job.Describe(jobs[0])))
}

func (l *Log) OnTick() {
	if !l.limiter.Allow() {
		return
	}
	if l.stats == nil {
		l.logger.Info("work in progress")
		return
	}
	total := l.stats.Summary()
	l.logger.Info("work in progress",
		zap.Int64("in-progress", total.InProgress),
		zap.Int64("completed", total.Completed),
		zap.Int64("failed", total.Failed),
		zap.Int64("retried", total.Retried),
		zap.Int64("cancelled", total.Cancelled))
}

func jobFields(j job.Job) []zap.Field {
	return []zap.Field{
		zap.String("job", job.Describe(j)),
		zap.Stringer("job-type", j.TypeID()),
	}
}
