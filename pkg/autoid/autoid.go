package autoid

import (
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// IDAllocator hands out strictly increasing ids starting right after base.
// It is safe for concurrent use.
type IDAllocator struct {
	last atomic.Int64
}

func NewIDAllocator(base int64) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(base)
	return a
}

func (a *IDAllocator) AllocID() int64 {
	return a.last.Inc()
}

// Last returns the most recently allocated id, or base if none was.
func (a *IDAllocator) Last() int64 {
	return a.last.Load()
}

type UUIDAllocator struct{}

func NewUUIDAllocator() *UUIDAllocator {
	return new(UUIDAllocator)
}

func (a *UUIDAllocator) AllocID() string {
	return uuid.New().String()
}
