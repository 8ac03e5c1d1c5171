package errctx

import (
	"context"

	"go.uber.org/atomic"
)

// ErrCenter records the first error reported by any participant of a run
// and lets every derived context observe it.
type ErrCenter struct {
	hasErr atomic.Bool
	errVal atomic.Error
	doneCh chan struct{}
}

// NewErrCenter creates an ErrCenter with no error recorded.
func NewErrCenter() *ErrCenter {
	return &ErrCenter{
		doneCh: make(chan struct{}),
	}
}

// OnError records err if it is the first non-nil error reported.
// It returns whether err was recorded.
func (c *ErrCenter) OnError(err error) bool {
	if err == nil {
		return false
	}
	if c.hasErr.Swap(true) {
		// OnError is no-op after the first call with
		// a non-nil error.
		return false
	}
	c.errVal.Store(err)
	close(c.doneCh)
	return true
}

// CheckError returns the recorded error, if any.
func (c *ErrCenter) CheckError() error {
	return c.errVal.Load()
}

// Done is closed once an error has been recorded.
func (c *ErrCenter) Done() <-chan struct{} {
	return c.doneCh
}

// DeriveContext returns a context that is cancelled when either parent is
// done or an error is recorded. The returned CancelFunc must be called to
// release the watching goroutine.
func (c *ErrCenter) DeriveContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-c.doneCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return &errCtx{Context: ctx, center: c}, cancel
}
