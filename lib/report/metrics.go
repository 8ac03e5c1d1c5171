package report

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MiSTer-devel/downloader/lib/job"
	"github.com/MiSTer-devel/downloader/pkg/clock"
	"github.com/MiSTer-devel/downloader/pkg/promutil"
)

const (
	eventStarted   = "started"
	eventCompleted = "completed"
	eventFailed    = "failed"
	eventRetried   = "retried"
	eventCancelled = "cancelled"
)

// Metrics exports job lifecycle counters, the number of running jobs and
// job durations to prometheus. Every metric is registered on behalf of the
// run id and dropped by Close.
type Metrics struct {
	reg   *promutil.Registry
	owner string
	clock clock.Clock

	events     *prometheus.CounterVec
	inProgress prometheus.Gauge
	duration   *prometheus.HistogramVec

	mu     sync.Mutex
	starts map[job.Job]time.Time
}

// NewMetrics registers the job metrics into reg, labelled with runID.
func NewMetrics(reg *promutil.Registry, runID string, clk clock.Clock) *Metrics {
	if clk == nil {
		clk = clock.New()
	}
	factory := promutil.NewFactory(reg, runID, "downloader", prometheus.Labels{"run_id": runID})
	return &Metrics{
		reg:   reg,
		owner: runID,
		clock: clk,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "job",
			Name:      "events_total",
			Help:      "Number of job lifecycle events by job type and event.",
		}, []string{"job_type", "event"}),
		inProgress: factory.NewGauge(prometheus.GaugeOpts{
			Subsystem: "job",
			Name:      "in_progress",
			Help:      "Number of jobs being operated.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Time spent operating a job, by job type and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"job_type", "outcome"}),
		starts: make(map[job.Job]time.Time),
	}
}

// Close unregisters every metric of the run.
func (m *Metrics) Close() {
	m.reg.Unregister(m.owner)
}

func (m *Metrics) OnStarted(j job.Job) {
	m.events.WithLabelValues(j.TypeID().String(), eventStarted).Inc()
	m.inProgress.Inc()
	m.mu.Lock()
	m.starts[j] = m.clock.Now()
	m.mu.Unlock()
}

func (m *Metrics) OnCompleted(j job.Job, _ []job.Job) {
	m.finish(j, eventCompleted)
}

func (m *Metrics) OnFailed(j job.Job, _ error) {
	m.finish(j, eventFailed)
}

func (m *Metrics) OnRetried(j job.Job, _ job.Job, _ error) {
	m.finish(j, eventRetried)
}

func (m *Metrics) OnCancelled(jobs []job.Job) {
	for _, j := range jobs {
		m.events.WithLabelValues(j.TypeID().String(), eventCancelled).Inc()
	}
}

func (m *Metrics) OnTick() {}

func (m *Metrics) finish(j job.Job, event string) {
	tp := j.TypeID().String()
	m.events.WithLabelValues(tp, event).Inc()
	m.inProgress.Dec()

	m.mu.Lock()
	start, ok := m.starts[j]
	delete(m.starts, j)
	m.mu.Unlock()
	if ok {
		m.duration.WithLabelValues(tp, event).Observe(m.clock.Since(start).Seconds())
	}
}
