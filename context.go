package peerlink

import (
	"context"

	"github.com/google/uuid"
)

// Context is handed to handlers registered with HandleContext or
// AnswerContext. It carries the connection the payload arrived on and is
// cancelled when that connection stops.
type Context struct {
	context.Context

	// Conn is the connection the payload arrived on.
	Conn *Conn
	// FrameID is the id of the frame that carried the payload.
	FrameID uuid.UUID
	// Type is the payload's type descriptor.
	Type string
}

// UserParam returns the opaque value attached to the endpoint with UserParamOption.
func (c *Context) UserParam() any {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.opts.userParam
}
