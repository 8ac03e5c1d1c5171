package report

import (
	"context"

	"github.com/MiSTer-devel/downloader/lib/job"
	"github.com/MiSTer-devel/downloader/pkg/notifier"
)

// EventKind is the lifecycle event an Event carries.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventCompleted
	EventFailed
	EventRetried
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return eventStarted
	case EventCompleted:
		return eventCompleted
	case EventFailed:
		return eventFailed
	case EventRetried:
		return eventRetried
	case EventCancelled:
		return eventCancelled
	}
	return "unknown"
}

// Event is one lifecycle event. Next holds the follow-ups of a completed
// job or the retry job of a retried one. Err is set on failures and
// retries.
type Event struct {
	Kind EventKind
	Job  job.Job
	Next []job.Job
	Err  error
}

// Events publishes every lifecycle event to any number of subscribers.
// Ticks are not published.
type Events struct {
	n *notifier.Notifier[Event]
}

// NewEvents creates an Events reporter. Close must be called to release it.
func NewEvents() *Events {
	return &Events{n: notifier.NewNotifier[Event]()}
}

// Subscribe returns a receiver of the events reported from now on.
func (e *Events) Subscribe() *notifier.Receiver[Event] {
	return e.n.NewReceiver()
}

// Flush waits until every reported event reached the subscribers.
func (e *Events) Flush(ctx context.Context) error {
	return e.n.Flush(ctx)
}

// Close stops publishing and closes every subscriber.
func (e *Events) Close() {
	e.n.Close()
}

func (e *Events) OnStarted(j job.Job) {
	e.n.Notify(Event{Kind: EventStarted, Job: j})
}

func (e *Events) OnCompleted(j job.Job, next []job.Job) {
	e.n.Notify(Event{Kind: EventCompleted, Job: j, Next: next})
}

func (e *Events) OnFailed(j job.Job, err error) {
	e.n.Notify(Event{Kind: EventFailed, Job: j, Err: err})
}

func (e *Events) OnRetried(j job.Job, retry job.Job, err error) {
	e.n.Notify(Event{Kind: EventRetried, Job: j, Next: []job.Job{retry}, Err: err})
}

func (e *Events) OnCancelled(jobs []job.Job) {
	for _, j := range jobs {
		e.n.Notify(Event{Kind: EventCancelled, Job: j})
	}
}

func (e *Events) OnTick() {}
