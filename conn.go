// Package peerlink provides bidirectional notifications and queries over TCP.
// Either side of a connection can fire one-way notifications or send queries
// that wait for a correlated reply. Every frame is serialized, compressed and
// optionally encrypted by a hot-swappable provider bundle, and received
// payloads are dispatched to handlers registered by payload type.
package peerlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/peerlink/frame"
	"github.com/Zereker/peerlink/provider"
)

// State is the lifecycle state of a connection.
type State int32

const (
	// StateConnecting is the state of a connection that has not started running.
	StateConnecting State = iota
	// StateRunning is the state of a connection whose loops are running.
	StateRunning
	// StateDisconnecting is the state of a connection that is tearing down.
	StateDisconnecting
	// StateDisconnected is the final state.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Conn is one logical peer connection. It owns the underlying stream, a
// read loop that reassembles and dispatches frames, a single writer that
// serializes all outbound frames, and the table of queries awaiting replies.
type Conn struct {
	id        string
	rawConn   net.Conn
	logger    Logger
	opts      *options
	providers *provider.Holder

	buffer  *frame.Buffer
	pending *pendingTable

	sendMsg chan []byte
	state   atomic.Int32
	closed  atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	ready      chan struct{}
	done       chan struct{}
	finishOnce sync.Once
	err        error

	// onFinish lets the owning endpoint drop the connection from its table.
	onFinish func(*Conn)
}

// NewConn wraps conn in a standalone connection configured by opt. Call Run
// to start it. Endpoints create their connections themselves; NewConn is for
// callers that manage the net.Conn on their own.
func NewConn(conn net.Conn, opt ...Option) *Conn {
	e := newEndpoint(opt)
	return e.newConn(conn)
}

func newConn(raw net.Conn, opts *options, providers *provider.Holder) *Conn {
	c := &Conn{
		id:        ulid.Make().String(),
		rawConn:   raw,
		logger:    opts.logger,
		opts:      opts,
		providers: providers,
		buffer: frame.NewBuffer(
			frame.InitialSizeOption(opts.initialReadSize),
			frame.MaxSizeOption(opts.maxReadSize),
			frame.GrowthRateOption(opts.growthRate),
			frame.MaxFrameSizeOption(opts.maxFrameSize),
		),
		pending: newPendingTable(),
		sendMsg: make(chan []byte, opts.bufferSize),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	return c
}

// ID returns the unique id of the connection.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// Router returns the router the connection dispatches with.
func (c *Conn) Router() *Router {
	return c.opts.router
}

// Providers returns the provider bundle holder the connection reads on every frame.
func (c *Conn) Providers() *provider.Holder {
	return c.providers
}

// Run starts the connection's read and write loops.
// It blocks until the peer goes away, an unrecoverable error occurs or ctx is
// canceled. The connection is closed when Run returns, and the
// disconnected callback has fired. A graceful close returns nil.
func (c *Conn) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateRunning)) {
		return ErrConnectionClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	// Disconnect may have run before the cancel func was published.
	if c.closed.Load() {
		cancel()
	}
	close(c.ready)

	c.logger.Info("connection established", "id", c.id, "addr", c.Addr())
	c.logger.Debug("connection options", "id", c.id,
		"buffer_size", c.opts.bufferSize,
		"read_buffer", c.opts.initialReadSize,
		"max_read_buffer", c.opts.maxReadSize,
		"max_frame_size", c.opts.maxFrameSize,
		"query_timeout", c.opts.queryTimeout,
		"heartbeat", c.opts.heartbeat)

	if c.opts.onConnected != nil {
		c.opts.onConnected(c)
	}

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// A blocked Read only returns once the socket is closed.
	group.Go(func() error {
		<-child.Done()
		_ = c.rawConn.Close()
		return nil
	})

	err := group.Wait()
	c.state.Store(int32(StateDisconnecting))
	c.closeConn()
	c.pending.failAll(ErrConnectionClosed)

	if c.graceful(err) {
		c.logger.Info("connection closed", "id", c.id, "addr", c.Addr())
		err = nil
	} else {
		c.logger.Info("connection closed with error", "id", c.id, "addr", c.Addr(), "error", err)
	}

	c.finish(err)
	return err
}

// graceful reports whether err is the result of a normal shutdown.
func (c *Conn) graceful(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrConnectionClosed) ||
		c.closed.Load() && errors.Is(err, net.ErrClosed)
}

// finish moves the connection to its final state and fires the
// disconnected callback exactly once.
func (c *Conn) finish(err error) {
	c.finishOnce.Do(func() {
		c.err = err
		c.state.Store(int32(StateDisconnected))
		if c.onFinish != nil {
			c.onFinish(c)
		}
		if c.opts.onDisconnected != nil {
			c.opts.onDisconnected(c, err)
		}
		close(c.done)
	})
}

// Disconnect closes the connection. Calling it more than once has no effect
// beyond the first call. With wait set it blocks until the read and write
// loops have exited; it must not be called with wait from a handler, which
// runs on the read loop.
func (c *Conn) Disconnect(wait bool) error {
	if !c.closed.Swap(true) {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if err := c.rawConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Debug("close error", "id", c.id, "error", err)
		}

		if c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected)) {
			c.pending.failAll(ErrConnectionClosed)
			c.finish(nil)
		} else {
			c.state.CompareAndSwap(int32(StateRunning), int32(StateDisconnecting))
		}
	}

	if wait {
		<-c.done
	}
	return nil
}

// Close gracefully closes the connection without waiting for its loops.
// Safe to call multiple times.
func (c *Conn) Close() error {
	return c.Disconnect(false)
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Done returns a channel closed once the connection is fully torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the connection is disconnected and returns the error it
// stopped with.
func (c *Conn) Wait() error {
	<-c.done
	return c.err
}

// Err returns the error the connection stopped with, nil while it runs or
// after a graceful close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// context returns the connection's run context.
func (c *Conn) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// checkRunning rejects sends on connections that are not running.
func (c *Conn) checkRunning() error {
	switch c.State() {
	case StateConnecting:
		return ErrNotConnected
	case StateRunning:
		if c.closed.Load() {
			return ErrConnectionClosed
		}
		return nil
	default:
		return ErrConnectionClosed
	}
}

// Notify sends a notification, blocking until the frame is queued or ctx is
// canceled.
func (c *Conn) Notify(ctx context.Context, n Notification) error {
	data, err := c.assemble(n, uuid.New(), "")
	if err != nil {
		return err
	}
	return c.enqueue(ctx, data)
}

// TryNotify sends a notification without blocking.
// It returns ErrBufferFull when the send buffer is full; the notification is
// then dropped.
func (c *Conn) TryNotify(n Notification) error {
	data, err := c.assemble(n, uuid.New(), "")
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// NotifyTimeout sends a notification, waiting at most timeout for room in
// the send buffer. It returns ErrBufferFull when the timeout expires.
func (c *Conn) NotifyTimeout(n Notification, timeout time.Duration) error {
	data, err := c.assemble(n, uuid.New(), "")
	if err != nil {
		return err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case c.sendMsg <- data:
		return nil
	case <-t.C:
		return ErrBufferFull
	case <-c.context().Done():
		return ErrConnectionClosed
	}
}

// assemble builds the frame for p with one snapshot of the provider bundle.
func (c *Conn) assemble(p Payload, id uuid.UUID, replyType string) ([]byte, error) {
	if err := c.checkRunning(); err != nil {
		return nil, err
	}

	b := c.providers.Load()
	data, err := encodePayload(b.Serializer, p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", DescriptorOf(p), err)
	}

	return frame.Assemble(&frame.Body{
		ID:        id,
		Type:      DescriptorOf(p),
		ReplyType: replyType,
		Data:      data,
	}, b)
}

// enqueue hands an assembled frame to the writer.
func (c *Conn) enqueue(ctx context.Context, data []byte) error {
	select {
	case c.sendMsg <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.context().Done():
		return ErrConnectionClosed
	}
}

// readLoop continuously reads from the connection and dispatches every
// complete frame on this goroutine, so handlers of one connection never run
// concurrently. Returns when the context is canceled, the peer closes the
// stream or an unrecoverable error occurs.
func (c *Conn) readLoop(ctx context.Context) error {
	var failures int

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if c.opts.heartbeat > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
		}

		more, err := c.buffer.ReadStream(c.rawConn)

		for {
			data, ok := c.buffer.NextFrame()
			if !ok {
				break
			}
			c.handleFrame(ctx, data)
		}

		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return ErrConnectionClosed
			}
			c.logger.Debug("read error", "id", c.id, "addr", c.Addr(), "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}

			// Deadline expiries pace themselves; other errors repeat at once.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			failures++
			select {
			case <-ctx.Done():
				return ErrConnectionClosed
			case <-time.After(readRetryDelay(failures)):
			}
			continue
		}
		failures = 0

		if !more {
			return io.EOF
		}
	}
}

// readRetryDelay is the pause before reading again after the n-th
// consecutive read error that the error callback chose to ignore.
func readRetryDelay(n int) time.Duration {
	const (
		base    = 5 * time.Millisecond
		ceiling = time.Second
	)
	if n > 8 {
		return ceiling
	}
	return min(base<<(n-1), ceiling)
}

// writeLoop is the only goroutine writing to the stream.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

// write sends data to the connection, with a deadline when a heartbeat is set.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(data []byte) error {
	if c.opts.heartbeat > 0 {
		_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))
	}

	_, err := c.rawConn.Write(data)

	if err != nil {
		if c.closed.Load() {
			return ErrConnectionClosed
		}
		c.logger.Debug("write error", "id", c.id, "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying stream.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	_ = c.rawConn.Close()
}
