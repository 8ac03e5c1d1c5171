package notifier

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/MiSTer-devel/downloader/pkg/containers"
)

type receiverID = int64

const receiverBufferSize = 64

// Notifier is the sending endpoint of a single-producer-multiple-consumer
// notification mechanism. Events are delivered to every open receiver in
// the order they were notified.
type Notifier[T any] struct {
	mu        sync.Mutex
	receivers map[receiverID]*Receiver[T]
	nextID    atomic.Int64

	queue *containers.SliceQueue[T]

	closeCh   chan struct{}
	syncCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Receiver is the receiving endpoint of a single-producer-multiple-consumer
// notification mechanism.
type Receiver[T any] struct {
	id receiverID
	C  chan T

	closeOnce sync.Once
	closed    atomic.Bool

	notifier *Notifier[T]
}

// NewNotifier creates a new Notifier and starts its dispatching goroutine.
// Close must be called to release it.
func NewNotifier[T any]() *Notifier[T] {
	n := &Notifier[T]{
		receivers: make(map[receiverID]*Receiver[T]),
		queue:     containers.NewSliceQueue[T](),
		closeCh:   make(chan struct{}),
		syncCh:    make(chan struct{}),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.run()
	}()
	return n
}

// NewReceiver creates a new Receiver associated with the Notifier.
// Only events notified after this call are delivered to it.
func (n *Notifier[T]) NewReceiver() *Receiver[T] {
	r := &Receiver[T]{
		id:       n.nextID.Add(1),
		C:        make(chan T, receiverBufferSize),
		notifier: n,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.receivers[r.id] = r
	return r
}

// Notify sends a new notification event. It never blocks.
func (n *Notifier[T]) Notify(event T) {
	n.queue.Add(event)
}

// Flush blocks until every event notified before the call has been
// handed to the receivers.
func (n *Notifier[T]) Flush(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case _, ok := <-n.syncCh:
			if !ok {
				return errors.New("notifier closed")
			}
		}

		if n.queue.Size() == 0 {
			return nil
		}
	}
}

// Close stops the dispatching goroutine and closes every receiver.
func (n *Notifier[T]) Close() {
	n.closeOnce.Do(func() {
		close(n.closeCh)
		n.wg.Wait()

		n.mu.Lock()
		defer n.mu.Unlock()
		for id, r := range n.receivers {
			r.close()
			delete(n.receivers, id)
		}
	})
}

func (n *Notifier[T]) run() {
	defer close(n.syncCh)

	for {
		select {
		case <-n.closeCh:
			return
		case n.syncCh <- struct{}{}:
			// A synchronization barrier for Flush and Receiver.Close.
		case <-n.queue.C:
			for {
				event, ok := n.queue.Pop()
				if !ok {
					break
				}
				if !n.dispatch(event) {
					return
				}
			}
		}
	}
}

func (n *Notifier[T]) dispatch(event T) bool {
	n.mu.Lock()
	receivers := make([]*Receiver[T], 0, len(n.receivers))
	for _, r := range n.receivers {
		receivers = append(receivers, r)
	}
	n.mu.Unlock()

	for _, r := range receivers {
		if r.closed.Load() {
			continue
		}
		select {
		case <-n.closeCh:
			return false
		case r.C <- event:
		}
	}
	return true
}

func (n *Notifier[T]) removeReceiver(id receiverID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.receivers, id)
}

func (r *Receiver[T]) close() {
	r.closed.Store(true)
	r.closeOnce.Do(func() {
		close(r.C)
	})
}

// Close detaches the receiver. Events still buffered in C are dropped.
func (r *Receiver[T]) Close() {
	r.closed.Store(true)

	// The dispatcher may be blocked sending to us, so keep draining
	// until it reaches the synchronization point.
wait:
	for {
		select {
		case <-r.C:
		case <-r.notifier.syncCh:
			break wait
		case <-r.notifier.closeCh:
			break wait
		}
	}

	r.notifier.removeReceiver(r.id)
	r.close()
}
