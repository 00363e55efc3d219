package peerlink

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/Zereker/peerlink/frame"
	"github.com/Zereker/peerlink/provider"
)

// handleFrame decodes one frame body and routes its payload.
func (c *Conn) handleFrame(ctx context.Context, data []byte) {
	bundle := c.providers.Load()

	body, err := frame.Extract(data, bundle, c.opts.maxFrameSize)
	if err != nil {
		c.logger.Warn("drop undecodable frame", "id", c.id, "addr", c.Addr(), "error", err)
		c.report(&Context{Context: ctx, Conn: c}, err, nil)
		return
	}

	dctx := &Context{Context: ctx, Conn: c, FrameID: body.ID, Type: body.Type}

	p, err := c.decode(body, bundle)
	if err != nil {
		// A waiting caller learns about the failure from its own query.
		if !body.IsQuery() && c.pending.resolve(body.ID, nil, fmt.Errorf("%w: %w", ErrReplyMismatch, err)) {
			return
		}
		c.report(dctx, err, nil)
		if body.IsQuery() {
			c.sendError(dctx, err)
		}
		return
	}

	switch kind := p.payloadKind(); {
	case body.IsQuery() && kind != KindQuery:
		err := fmt.Errorf("%w: %s is a %s, sent as a query", ErrUnknownPayload, body.Type, kind)
		c.report(dctx, err, p)
		c.sendError(dctx, err)
	case kind == KindQuery:
		q := p.(Query)
		if d := TypeDescriptor(q.replyType()); d != body.ReplyType {
			err := fmt.Errorf("%w: %s answers %s, peer expects %s", ErrReplyMismatch, body.Type, d, body.ReplyType)
			c.report(dctx, err, p)
			c.sendError(dctx, err)
			return
		}
		c.dispatchQuery(dctx, body.ReplyType, q)
	case kind == KindReply:
		c.resolveReply(dctx, p.(QueryReply))
	default:
		c.dispatchNotification(dctx, p.(Notification))
	}
}

// decode turns a frame body into a payload. Replies to pending queries are
// decoded as the type the query declared; everything else is resolved
// through the router.
func (c *Conn) decode(body *frame.Body, bundle provider.Bundle) (Payload, error) {
	if !body.IsQuery() {
		if expected, ok := c.pending.expected(body.ID); ok && body.Type == TypeDescriptor(expected) {
			return decodePayload(bundle.Serializer, expected, body.Data)
		}
	}

	t, ok := c.opts.router.resolve(body.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayload, body.Type)
	}
	return decodePayload(bundle.Serializer, t, body.Data)
}

// resolveReply completes the pending query the reply answers. Replies
// nobody waits for any more are dropped.
func (c *Conn) resolveReply(ctx *Context, reply QueryReply) {
	expected, ok := c.pending.expected(ctx.FrameID)
	if !ok {
		c.logger.Debug("drop late reply", "id", c.id, "frame", ctx.FrameID, "type", ctx.Type)
		return
	}

	var err error
	switch r := reply.(type) {
	case ErrorReply:
		err = &RemoteError{Message: r.Message, Source: r.Source}
		reply = nil
	case *ErrorReply:
		err = &RemoteError{Message: r.Message, Source: r.Source}
		reply = nil
	default:
		if want := TypeDescriptor(expected); want != ctx.Type {
			err = fmt.Errorf("%w: got %s, want %s", ErrReplyMismatch, ctx.Type, want)
			reply = nil
		}
	}

	if !c.pending.resolve(ctx.FrameID, reply, err) {
		c.logger.Debug("drop late reply", "id", c.id, "frame", ctx.FrameID, "type", ctx.Type)
	}
}

// dispatchNotification delivers a notification to its route, or to the
// fallback callback when it has none.
func (c *Conn) dispatchNotification(ctx *Context, n Notification) {
	var err error

	if rt, ok := c.opts.router.lookup(ctx.Type); ok {
		_, err = c.protect(ctx, func() (QueryReply, error) {
			return rt.invoke(ctx, n)
		})
	} else if c.opts.onNotification != nil {
		_, err = c.protect(ctx, func() (QueryReply, error) {
			return nil, c.opts.onNotification(ctx, n)
		})
	} else if c.opts.router.isEvent(ctx.Type) {
		c.logger.Debug("drop notification without receiver", "id", c.id, "type", ctx.Type)
		return
	} else {
		err = fmt.Errorf("%w: %s", ErrNoHandler, ctx.Type)
	}

	if err != nil {
		c.report(ctx, err, n)
	}
}

// dispatchQuery runs the handler for q and sends its reply, or an
// ErrorReply when the handler fails.
func (c *Conn) dispatchQuery(ctx *Context, replyType string, q Query) {
	spanCtx, span := startAnswerSpan(ctx.Context, c, ctx.Type)
	ctx.Context = spanCtx

	var (
		reply QueryReply
		err   error
	)

	if rt, ok := c.opts.router.lookup(ctx.Type); ok {
		reply, err = c.protect(ctx, func() (QueryReply, error) {
			return rt.invoke(ctx, q)
		})
	} else if c.opts.onQuery != nil {
		reply, err = c.protect(ctx, func() (QueryReply, error) {
			return c.opts.onQuery(ctx, q)
		})
		if err == nil && isNil(reply) {
			err = ErrNilReply
		}
	} else {
		err = fmt.Errorf("%w: %s", ErrNoHandler, ctx.Type)
	}

	if err == nil {
		if d := DescriptorOf(reply); d != replyType {
			err = fmt.Errorf("%w: handler returned %s, want %s", ErrReplyMismatch, d, replyType)
		}
	}

	if err == nil {
		err = c.sendReply(ctx, reply)
	}

	endSpan(span, err)

	if err != nil {
		c.report(ctx, err, q)
		c.sendError(ctx, err)
	}
}

// protect runs a handler, turning a panic into an error.
func (c *Conn) protect(ctx *Context, fn func() (QueryReply, error)) (reply QueryReply, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", "id", c.id, "type", ctx.Type, "panic", r)
			reply, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}

// sendReply sends reply under the id of the query it answers.
func (c *Conn) sendReply(ctx *Context, reply QueryReply) error {
	data, err := c.assemble(reply, ctx.FrameID, "")
	if err != nil {
		return err
	}
	return c.enqueue(ctx, data)
}

// sendError answers the query carried by ctx with an ErrorReply.
func (c *Conn) sendError(ctx *Context, cause error) {
	if errors.Is(cause, ErrConnectionClosed) {
		return
	}

	reply := ErrorReply{Message: cause.Error(), Source: ctx.Type}

	var remote *RemoteError
	if errors.As(cause, &remote) {
		reply.Message, reply.Source = remote.Message, remote.Source
	}

	if err := c.sendReply(ctx, reply); err != nil {
		c.logger.Warn("send error reply failed", "id", c.id, "frame", ctx.FrameID, "error", err)
	}
}

// report logs a failure and hands it to the handler error hook.
func (c *Conn) report(ctx *Context, err error, p Payload) {
	c.logger.Warn("dispatch failed", "id", c.id, "type", ctx.Type, "error", err)

	if c.opts.onHandlerError == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler error hook panic", "id", c.id, "panic", r)
		}
	}()
	c.opts.onHandlerError(ctx, err, p)
}

// isNil reports whether a reply is nil or a nil pointer.
func isNil(p Payload) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
