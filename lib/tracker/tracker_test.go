package tracker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MiSTer-devel/downloader/lib/job"
)

var (
	testFetchType = job.RegisterType("tracker-test-fetch")
	testUnzipType = job.RegisterType("tracker-test-unzip")
)

type testJob struct {
	job.Base
	tp job.TypeID
}

func (j *testJob) TypeID() job.TypeID {
	return j.tp
}

func newJob(tags ...string) *testJob {
	return job.WithTags(&testJob{tp: testFetchType}, job.Tags(tags...)...)
}

var (
	tagA = job.StringTag("a")
	tagB = job.StringTag("b")
)

func TestStartedActivatesUnknown(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a", "b")
	require.False(t, tr.AnyInProgress(tagA))

	tr.Started(j)
	require.Equal(t, StateActive, tr.State(tagA, j))
	require.Equal(t, StateActive, tr.State(tagB, j))
	require.True(t, tr.AnyInProgress(tagA))
	require.True(t, tr.AnyInProgress(job.StringTag("zzz"), tagB))

	// Idempotent.
	tr.Started(j)
	require.Equal(t, 1, tr.ActiveCount(tagA))
}

func TestStartedNeverResurrects(t *testing.T) {
	t.Parallel()

	endings := map[string]func(tr *Tracker, j job.Job){
		"failed": func(tr *Tracker, j job.Job) {
			tr.Failed(j)
		},
		"completed-without-follow-ups": func(tr *Tracker, j job.Job) {
			tr.Completed(j, nil)
		},
		"cancelled": func(tr *Tracker, j job.Job) {
			tr.Cancelled([]job.Job{j})
		},
		"retried-into-another-job": func(tr *Tracker, j job.Job) {
			tr.Retried(j, newJob("other"))
		},
	}

	for name, end := range endings {
		end := end
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for _, startFirst := range []bool{true, false} {
				tr := New()
				j := newJob("a")
				if startFirst {
					tr.Started(j)
				}
				end(tr, j)
				require.Equal(t, StateEnded, tr.State(tagA, j))

				tr.Started(j)
				require.Equal(t, StateEnded, tr.State(tagA, j))
				require.False(t, tr.AnyInProgress(tagA))
			}
		})
	}
}

func TestCompletedEndsEvenIfNeverStarted(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	tr.Completed(j, nil)
	require.Equal(t, StateEnded, tr.State(tagA, j))
	require.False(t, tr.AnyInProgress(tagA))
}

func TestCompletedActivatesFollowUps(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	next := newJob("a", "b")
	tr.Started(j)
	tr.Completed(j, []job.Job{next})

	require.Equal(t, StateEnded, tr.State(tagA, j))
	require.Equal(t, StateActive, tr.State(tagA, next))
	require.Equal(t, StateActive, tr.State(tagB, next))
	require.True(t, tr.AnyInProgress(tagA))

	tr.Completed(next, nil)
	require.False(t, tr.AnyInProgress(tagA, tagB))
}

func TestCompletedUnrelatedFollowUpsEndTags(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	tr.Started(j)
	tr.Completed(j, []job.Job{newJob("b"), newJob()})
	require.False(t, tr.AnyInProgress(tagA))
	require.True(t, tr.AnyInProgress(tagB))
}

func TestCompletedResurrectsEndedFollowUp(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	next := newJob("a")
	tr.Failed(next)
	require.Equal(t, StateEnded, tr.State(tagA, next))

	tr.Completed(j, []job.Job{next})
	require.Equal(t, StateActive, tr.State(tagA, next))
	require.True(t, tr.AnyInProgress(tagA))
}

func TestCompletedSelfContinuation(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	tr.Started(j)
	tr.Completed(j, []job.Job{j})
	require.Equal(t, StateActive, tr.State(tagA, j))
	require.True(t, tr.AnyInProgress(tagA))

	tr.Completed(j, nil)
	require.False(t, tr.AnyInProgress(tagA))
}

func TestRetriedSelfIsNoop(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	tr.Started(j)
	tr.Retried(j, j)
	require.Equal(t, StateActive, tr.State(tagA, j))

	// Also a no-op when the job was never seen.
	other := newJob("b")
	tr.Retried(other, other)
	require.Equal(t, StateUnknown, tr.State(tagB, other))
}

func TestRetriedIntoAnotherJob(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	retry := newJob("b")
	tr.Cancelled([]job.Job{retry})
	tr.Started(j)

	tr.Retried(j, retry)
	require.Equal(t, StateEnded, tr.State(tagA, j))
	require.Equal(t, StateActive, tr.State(tagB, retry))
	require.False(t, tr.AnyInProgress(tagA))
	require.True(t, tr.AnyInProgress(tagB))
}

func TestBackedUpResurrectsEndedBackup(t *testing.T) {
	t.Parallel()

	tr := New()
	j := newJob("a")
	backup := newJob("b")
	tr.Started(backup)
	tr.Completed(backup, nil)
	tr.Started(j)

	tr.BackedUp(j, backup)
	require.Equal(t, StateEnded, tr.State(tagA, j))
	require.Equal(t, StateActive, tr.State(tagB, backup))
	require.True(t, tr.AnyInProgress(tagB))
	require.False(t, tr.AnyInProgress(tagA))

	// A bare Started on the same ended identity would not have.
	other := newJob("b")
	tr.Completed(other, nil)
	tr.Started(other)
	require.Equal(t, StateEnded, tr.State(tagB, other))
	require.Equal(t, 1, tr.ActiveCount(tagB))
}

func TestCancelledEndsAll(t *testing.T) {
	t.Parallel()

	tr := New()
	jobs := []job.Job{newJob("a"), newJob("a", "b"), newJob()}
	for _, j := range jobs {
		tr.Started(j)
	}
	require.Equal(t, 2, tr.ActiveCount(tagA))

	tr.Cancelled(jobs)
	require.False(t, tr.AnyInProgress(tagA, tagB))
	require.Equal(t, map[job.Tag]Counts{
		tagA: {Ended: 2},
		tagB: {Ended: 1},
	}, tr.Snapshot())
}

func TestAnyInProgressWithNoTags(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Started(newJob("a"))
	require.False(t, tr.AnyInProgress())
}

func TestIntAndStringTagsAreDistinct(t *testing.T) {
	t.Parallel()

	tr := New()
	j := job.WithTags(&testJob{tp: testFetchType}, job.IntTag(1))
	tr.Started(j)
	require.True(t, tr.AnyInProgress(job.IntTag(1)))
	require.False(t, tr.AnyInProgress(job.StringTag("1")))
}

func TestIdentityNotValue(t *testing.T) {
	t.Parallel()

	tr := New()
	j1, j2 := newJob("a"), newJob("a")
	tr.Started(j1)
	tr.Started(j2)
	tr.Completed(j1, nil)
	require.True(t, tr.AnyInProgress(tagA))
	tr.Failed(j2)
	require.False(t, tr.AnyInProgress(tagA))
}

// The archive pipeline of a database: fetch -> validate -> open -> process
// -> fetch content -> validate content -> unzip, where validation failures
// loop back a few stages. The tag must stay in progress for the whole
// chain and only quiesce once the last stage produces nothing.
func TestDeepChainWithMidStreamRetries(t *testing.T) {
	t.Parallel()

	tr := New()
	zip := job.StringTag("zip:1")
	stages := make([]job.Job, 7)
	for i := range stages {
		stages[i] = job.WithTags(&testJob{tp: testUnzipType}, zip)
	}

	tr.Started(stages[0])
	for i := 0; i < len(stages)-1; i++ {
		tr.Started(stages[i])
		require.True(t, tr.AnyInProgress(zip), "stage %d", i)

		if i == 3 || i == 5 {
			// Fail validation once, loop back to the first stage. The stage
			// already ended earlier in the chain and must come back.
			tr.Retried(stages[i], stages[0])
			require.True(t, tr.AnyInProgress(zip))
			tr.Started(stages[0])
			tr.Completed(stages[0], []job.Job{stages[1]})
			require.True(t, tr.AnyInProgress(zip))
			for k := 1; k < i; k++ {
				tr.Started(stages[k])
				tr.Completed(stages[k], []job.Job{stages[k+1]})
				require.True(t, tr.AnyInProgress(zip))
			}
			tr.Started(stages[i])
		}

		tr.Completed(stages[i], []job.Job{stages[i+1]})
		require.True(t, tr.AnyInProgress(zip), "after stage %d", i)
	}

	last := stages[len(stages)-1]
	tr.Started(last)
	require.True(t, tr.AnyInProgress(zip))
	tr.Completed(last, nil)
	require.False(t, tr.AnyInProgress(zip))
	require.Equal(t, Counts{Ended: len(stages)}, tr.Snapshot()[zip])
}

func TestBranchingChain(t *testing.T) {
	t.Parallel()

	tr := New()
	db := job.StringTag("db:1")
	root := job.WithTags(&testJob{tp: testFetchType}, db)
	left := job.WithTags(&testJob{tp: testFetchType}, db)
	right := job.WithTags(&testJob{tp: testUnzipType}, db)

	tr.Started(root)
	tr.Completed(root, []job.Job{left, right})
	require.Equal(t, 2, tr.ActiveCount(db))

	tr.Started(left)
	tr.Completed(left, nil)
	require.True(t, tr.AnyInProgress(db))

	// A duplicate late start of the finished branch changes nothing.
	tr.Started(left)
	require.Equal(t, 1, tr.ActiveCount(db))

	tr.Started(right)
	tr.Failed(right)
	require.False(t, tr.AnyInProgress(db))
}

func TestConcurrentTransitions(t *testing.T) {
	t.Parallel()

	const (
		numChains = 32
		depth     = 50
	)
	tr := New()
	tag := job.StringTag("shared")

	var wg sync.WaitGroup
	for i := 0; i < numChains; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cur := job.WithTags(&testJob{tp: testFetchType}, tag, job.StringTag(fmt.Sprintf("chain:%d", i)))
			tr.Started(cur)
			for d := 0; d < depth; d++ {
				next := job.WithTags(&testJob{tp: testFetchType}, cur.Tags()...)
				tr.Completed(cur, []job.Job{next})
				tr.Started(next)
				// Late duplicate start of the finished job.
				tr.Started(cur)
				cur = next
			}
			tr.Completed(cur, nil)
		}(i)
	}
	wg.Wait()

	require.False(t, tr.AnyInProgress(tag))
	require.Equal(t, Counts{Ended: numChains * (depth + 1)}, tr.Snapshot()[tag])
}
