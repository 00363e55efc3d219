package peerlink

import (
	"errors"
	"fmt"
)

// Errors returned by connection and endpoint operations.
var (
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotConnected is returned when sending on a connection that is not running yet.
	ErrNotConnected = errors.New("connection not running")
	// ErrBufferFull is returned when the send buffer cannot accept another frame.
	ErrBufferFull = errors.New("send buffer full")
	// ErrQueryTimeout is returned when no reply arrived within the query timeout.
	ErrQueryTimeout = errors.New("query timed out")
	// ErrNoHandler is reported when a payload has neither a route nor a fallback.
	ErrNoHandler = errors.New("no handler for payload")
	// ErrDuplicateHandler is returned when a payload type is registered twice.
	ErrDuplicateHandler = errors.New("duplicate handler")
	// ErrInvalidHandler is returned for handlers bound to interface payload types.
	ErrInvalidHandler = errors.New("invalid handler")
	// ErrUnknownPayload is returned when a payload type descriptor cannot be resolved.
	ErrUnknownPayload = errors.New("unknown payload type")
	// ErrReplyMismatch is returned when a reply is not of the type its query declares.
	ErrReplyMismatch = errors.New("reply type mismatch")
	// ErrNilReply is returned when a query handler produces no reply.
	ErrNilReply = errors.New("query handler returned no reply")
	// ErrUnknownConn is returned by endpoints for connection ids they do not hold.
	ErrUnknownConn = errors.New("unknown connection")
	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server closed")
)

// RemoteError is returned by queries whose handler failed on the remote peer.
type RemoteError struct {
	Message string
	Source  string
}

func (e *RemoteError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("remote: %s", e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Source, e.Message)
}
