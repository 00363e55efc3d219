package peerlink

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Infinite disables the timeout of a query.
const Infinite time.Duration = -1

// CallOption configures a single query.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the endpoint's query timeout for one call. Zero keeps
// the endpoint default. Pass Infinite to wait until the reply arrives or the
// connection closes.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// Querier sends queries. It is implemented by *Conn and *Client.
type Querier interface {
	Query(ctx context.Context, q Query, opts ...CallOption) (QueryReply, error)
}

// Ask sends q through via and returns its reply as the type q declares.
//
//	sum, err := peerlink.Ask[Sum](ctx, client, Add{A: 2, B: 3})
//
// Handlers run on their connection's read loop, so a handler must not wait
// for a query sent on the connection it is handling.
func Ask[R QueryReply](ctx context.Context, via Querier, q Asks[R], opts ...CallOption) (R, error) {
	var zero R

	reply, err := via.Query(ctx, q, opts...)
	if err != nil {
		return zero, err
	}

	r, ok := reply.(R)
	if !ok {
		return zero, fmt.Errorf("%w: got %s, want %s", ErrReplyMismatch, DescriptorOf(reply), TypeDescriptor(reflect.TypeFor[R]()))
	}
	return r, nil
}

// Query sends q and waits for its reply, the timeout, ctx or the end of the
// connection, whichever comes first. A failed remote handler is returned as
// a *RemoteError.
func (c *Conn) Query(ctx context.Context, q Query, opts ...CallOption) (QueryReply, error) {
	ctx, span := startQuerySpan(ctx, c, DescriptorOf(q))
	reply, err := c.query(ctx, q, opts)
	endSpan(span, err)
	return reply, err
}

func (c *Conn) query(ctx context.Context, q Query, opts []CallOption) (QueryReply, error) {
	co := callOptions{timeout: c.opts.queryTimeout}
	for _, o := range opts {
		o(&co)
	}
	if co.timeout == 0 {
		co.timeout = c.opts.queryTimeout
	}

	// The timeout covers the wait for room in the send buffer as well.
	var timeout <-chan time.Time
	if co.timeout > 0 {
		t := time.NewTimer(co.timeout)
		defer t.Stop()
		timeout = t.C
	}

	replyType := q.replyType()
	c.opts.router.remember(replyType)

	id := uuid.New()
	data, err := c.assemble(q, id, TypeDescriptor(replyType))
	if err != nil {
		return nil, err
	}

	expired := func() error {
		c.pending.remove(id)
		return fmt.Errorf("%w: %s after %s", ErrQueryTimeout, DescriptorOf(q), co.timeout)
	}

	pq := c.pending.add(id, replyType)

	select {
	case c.sendMsg <- data:
	case <-timeout:
		return nil, expired()
	case <-ctx.Done():
		c.pending.remove(id)
		return nil, ctx.Err()
	case <-c.context().Done():
		c.pending.remove(id)
		return nil, ErrConnectionClosed
	}

	select {
	case <-pq.done:
		return pq.reply, pq.err
	case <-timeout:
		return nil, expired()
	case <-ctx.Done():
		c.pending.remove(id)
		return nil, ctx.Err()
	case <-c.done:
		c.pending.remove(id)
		return nil, ErrConnectionClosed
	}
}

// Future is the pending result of an asynchronous query.
type Future struct {
	done  chan struct{}
	reply QueryReply
	err   error
}

// Done returns a channel closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available and returns it.
func (f *Future) Wait() (QueryReply, error) {
	<-f.done
	return f.reply, f.err
}

// QueryAsync sends q on a background goroutine and returns a Future for
// its reply. Timeouts behave as for Query.
func (c *Conn) QueryAsync(ctx context.Context, q Query, opts ...CallOption) *Future {
	return goQuery(ctx, c, q, opts)
}

func goQuery(ctx context.Context, via Querier, q Query, opts []CallOption) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.reply, f.err = via.Query(ctx, q, opts...)
	}()
	return f
}
