package scheduler

import (
	"github.com/MiSTer-devel/downloader/lib/tracker"
	"github.com/MiSTer-devel/downloader/pkg/clock"
)

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithReporter sets the progress reporter. The default discards events.
func WithReporter(r Reporter) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithClock sets the time source used for the timeout and for polling.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithTracker shares an existing tag lifecycle tracker.
func WithTracker(t *tracker.Tracker) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithRunID overrides the generated run id used in logs.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.runID = id
		}
	}
}
