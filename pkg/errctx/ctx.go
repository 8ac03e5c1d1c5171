package errctx

import (
	"context"
)

type errCtx struct {
	context.Context
	center *ErrCenter
}

// Err prefers the error recorded in the center, so that code observing
// the context learns why the run was aborted.
func (c *errCtx) Err() error {
	if err := c.center.CheckError(); err != nil {
		return err
	}
	return c.Context.Err()
}
