package report

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/MiSTer-devel/downloader/lib/job"
)

// TypeStats is a point-in-time view of the counters of one job kind.
type TypeStats struct {
	Type       job.TypeID
	Started    int64
	Completed  int64
	Failed     int64
	Retried    int64
	Cancelled  int64
	InProgress int64
}

func (s TypeStats) String() string {
	return fmt.Sprintf("%s: started=%d completed=%d failed=%d retried=%d cancelled=%d in-progress=%d",
		s.Type, s.Started, s.Completed, s.Failed, s.Retried, s.Cancelled, s.InProgress)
}

func (s *TypeStats) add(o TypeStats) {
	s.Started += o.Started
	s.Completed += o.Completed
	s.Failed += o.Failed
	s.Retried += o.Retried
	s.Cancelled += o.Cancelled
	s.InProgress += o.InProgress
}

type typeCounters struct {
	started    atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	retried    atomic.Int64
	cancelled  atomic.Int64
	inProgress atomic.Int64
}

// Stats counts lifecycle events per job kind.
type Stats struct {
	mu     sync.RWMutex
	byType map[job.TypeID]*typeCounters
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{byType: make(map[job.TypeID]*typeCounters)}
}

func (s *Stats) counters(tp job.TypeID) *typeCounters {
	s.mu.RLock()
	c, ok := s.byType[tp]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.byType[tp]; !ok {
		c = &typeCounters{}
		s.byType[tp] = c
	}
	return c
}

func (s *Stats) OnStarted(j job.Job) {
	c := s.counters(j.TypeID())
	c.started.Inc()
	c.inProgress.Inc()
}

func (s *Stats) OnCompleted(j job.Job, _ []job.Job) {
	c := s.counters(j.TypeID())
	c.completed.Inc()
	c.inProgress.Dec()
}

func (s *Stats) OnFailed(j job.Job, _ error) {
	c := s.counters(j.TypeID())
	c.failed.Inc()
	c.inProgress.Dec()
}

func (s *Stats) OnRetried(j job.Job, _ job.Job, _ error) {
	c := s.counters(j.TypeID())
	c.retried.Inc()
	c.inProgress.Dec()
}

// OnCancelled counts jobs dropped before they ever ran.
func (s *Stats) OnCancelled(jobs []job.Job) {
	for _, j := range jobs {
		s.counters(j.TypeID()).cancelled.Inc()
	}
}

func (s *Stats) OnTick() {}

// Snapshot returns the counters of every kind seen so far, ordered by type.
func (s *Stats) Snapshot() []TypeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]TypeStats, 0, len(s.byType))
	for tp, c := range s.byType {
		ret = append(ret, TypeStats{
			Type:       tp,
			Started:    c.started.Load(),
			Completed:  c.completed.Load(),
			Failed:     c.failed.Load(),
			Retried:    c.retried.Load(),
			Cancelled:  c.cancelled.Load(),
			InProgress: c.inProgress.Load(),
		})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Type < ret[j].Type })
	return ret
}

// Summary returns the counters summed over every kind. Its Type is zero.
func (s *Stats) Summary() TypeStats {
	var total TypeStats
	for _, ts := range s.Snapshot() {
		total.add(ts)
	}
	return total
}

// Get returns the counters of tp.
func (s *Stats) Get(tp job.TypeID) TypeStats {
	for _, ts := range s.Snapshot() {
		if ts.Type == tp {
			return ts
		}
	}
	return TypeStats{Type: tp}
}
