// Package tracker keeps the lifecycle ledger of tagged jobs. For every
// (tag, job) pair it remembers whether the job is active or has ended,
// which lets workers build barriers such as "do not finalize a database
// while any of its archive jobs is in flight" without the scheduler
// knowing about those dependencies.
//
// A terminal state can only be left through an explicit continuation
// (a follow-up or retry job), never through a bare Started call, so late
// or duplicated start events coming from concurrent workers cannot
// resurrect a finished lineage.
package tracker

import (
	"sync"

	"github.com/MiSTer-devel/downloader/lib/job"
)

// State is the lifecycle state of a (tag, job) entry.
type State int32

const (
	// StateUnknown means the pair was never observed.
	StateUnknown = State(iota)
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type entryKey struct {
	tag job.Tag
	job job.Job
}

// Counts summarizes the entries of one tag.
type Counts struct {
	Active int
	Ended  int
}

// Tracker is the tag lifecycle ledger. It is safe for concurrent use.
// Entries are never removed.
type Tracker struct {
	mu      sync.RWMutex
	entries map[entryKey]State
	// counts is kept in sync with entries so that AnyInProgress does not
	// have to scan the ledger.
	counts map[job.Tag]*Counts
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		entries: make(map[entryKey]State),
		counts:  make(map[job.Tag]*Counts),
	}
}

// Started marks every tag of j active, unless the pair already ended.
func (t *Tracker) Started(j job.Job) {
	if j == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tag := range j.Tags() {
		if t.entries[entryKey{tag: tag, job: j}] == StateUnknown {
			t.setLocked(tag, j, StateActive)
		}
	}
}

// Completed ends every tag of j and then activates every tag of the
// follow-up jobs, overriding any previous ended state. A job continuing
// on itself therefore stays active.
func (t *Tracker) Completed(j job.Job, next []job.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endLocked(j)
	for _, n := range next {
		t.activateLocked(n)
	}
}

// Failed ends every tag of j.
func (t *Tracker) Failed(j job.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endLocked(j)
}

// Retried ends every tag of j, unless j is retried as itself, and then
// activates every tag of retry, overriding any previous ended state.
func (t *Tracker) Retried(j job.Job, retry job.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if retry == j {
		return
	}
	t.endLocked(j)
	t.activateLocked(retry)
}

// BackedUp ends every tag of j and then activates every tag of backup.
// The backup is a continuation, so it overrides any previous ended state.
func (t *Tracker) BackedUp(j job.Job, backup job.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endLocked(j)
	t.activateLocked(backup)
}

// Cancelled ends every tag of every job in jobs.
func (t *Tracker) Cancelled(jobs []job.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, j := range jobs {
		t.endLocked(j)
	}
}

// AnyInProgress tells whether any job carrying one of tags is active.
func (t *Tracker) AnyInProgress(tags ...job.Tag) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, tag := range tags {
		if c, ok := t.counts[tag]; ok && c.Active > 0 {
			return true
		}
	}
	return false
}

// State returns the state of the (tag, j) entry.
func (t *Tracker) State(tag job.Tag, j job.Job) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.entries[entryKey{tag: tag, job: j}]
}

// ActiveCount returns how many jobs are active under tag.
func (t *Tracker) ActiveCount(tag job.Tag) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if c, ok := t.counts[tag]; ok {
		return c.Active
	}
	return 0
}

// Snapshot returns the entry counts of every tag ever observed.
func (t *Tracker) Snapshot() map[job.Tag]Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ret := make(map[job.Tag]Counts, len(t.counts))
	for tag, c := range t.counts {
		ret[tag] = *c
	}
	return ret
}

func (t *Tracker) endLocked(j job.Job) {
	if j == nil {
		return
	}
	for _, tag := range j.Tags() {
		t.setLocked(tag, j, StateEnded)
	}
}

func (t *Tracker) activateLocked(j job.Job) {
	if j == nil {
		return
	}
	for _, tag := range j.Tags() {
		t.setLocked(tag, j, StateActive)
	}
}

// setLocked should be called with t.mu taken.
func (t *Tracker) setLocked(tag job.Tag, j job.Job, state State) {
	key := entryKey{tag: tag, job: j}
	prev := t.entries[key]
	if prev == state {
		return
	}
	t.entries[key] = state

	c, ok := t.counts[tag]
	if !ok {
		c = &Counts{}
		t.counts[tag] = c
	}
	switch prev {
	case StateActive:
		c.Active--
	case StateEnded:
		c.Ended--
	}
	switch state {
	case StateActive:
		c.Active++
	case StateEnded:
		c.Ended++
	}
}
