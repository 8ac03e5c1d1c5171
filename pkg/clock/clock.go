// Package clock re-exports the injectable time source used across the
// module so that production code reads the wall clock and tests drive a
// mock one.
package clock

import (
	bclock "github.com/benbjohnson/clock"
)

// Clock is the time source consumed by the scheduler and the reporters.
type Clock = bclock.Clock

// Mock is a Clock whose time only moves when the test advances it.
type Mock = bclock.Mock

// Timer is returned by Clock.AfterFunc and Clock.Timer.
type Timer = bclock.Timer

// New returns a Clock backed by the system time.
func New() Clock {
	return bclock.New()
}

// NewMock returns a mock Clock starting at the Unix epoch.
func NewMock() *Mock {
	return bclock.NewMock()
}
