package containers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testQueueBasics(t *testing.T, q Queue[int]) {
	_, ok := q.Pop()
	require.False(t, ok)
	_, ok = q.Peek()
	require.False(t, ok)

	for i := 0; i < 100; i++ {
		q.Add(i)
	}
	require.Equal(t, 100, q.Size())

	head, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, 0, head)

	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, q.Size())
}

func TestDequeBasics(t *testing.T) {
	t.Parallel()

	testQueueBasics(t, NewDeque[int]())
}

func TestSliceQueueBasics(t *testing.T) {
	t.Parallel()

	testQueueBasics(t, NewSliceQueue[int]())
}

func TestDequeDrain(t *testing.T) {
	t.Parallel()

	q := NewDeque[string]()
	require.Empty(t, q.Drain())

	q.Add("a")
	q.Add("b")
	q.Add("c")
	require.Equal(t, []string{"a", "b", "c"}, q.Drain())
	require.Equal(t, 0, q.Size())
}

func TestSliceQueueSignal(t *testing.T) {
	t.Parallel()

	q := NewSliceQueue[int]()
	q.Add(1)
	q.Add(2)

	// Two adds collapse into one pending signal.
	<-q.C
	select {
	case <-q.C:
		t.Fatal("unexpected second signal")
	default:
	}
	require.Equal(t, 2, q.Size())
}

func TestDequeConcurrentProducers(t *testing.T) {
	t.Parallel()

	const (
		numProducers = 16
		numElems     = 1000
	)
	q := NewDeque[int]()

	var wg sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numElems; j++ {
				q.Add(j)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, numProducers*numElems, q.Size())
	require.Len(t, q.Drain(), numProducers*numElems)
}
