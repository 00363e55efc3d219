package peerlink

import (
	"context"
	"net"
)

// Client is an endpoint holding a single connection to a server.
type Client struct {
	*endpoint
	conn *Conn
}

// Dial connects to address and starts the connection. It returns once the
// connection is running, so the client can send right away. ctx bounds the
// dial only; use Close to end the connection.
func Dial(ctx context.Context, address string, opt ...Option) (*Client, error) {
	e := newEndpoint(opt)

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c := e.newConn(raw)
	go func() {
		_ = c.Run(context.Background())
	}()

	select {
	case <-c.ready:
	case <-c.done:
		return nil, ErrConnectionClosed
	}

	return &Client{endpoint: e, conn: c}, nil
}

// Conn returns the client's connection.
func (c *Client) Conn() *Conn {
	return c.conn
}

// Notify sends a notification to the server.
func (c *Client) Notify(ctx context.Context, n Notification) error {
	return c.conn.Notify(ctx, n)
}

// TryNotify sends a notification without blocking. See Conn.TryNotify.
func (c *Client) TryNotify(n Notification) error {
	return c.conn.TryNotify(n)
}

// Query sends q to the server and waits for its reply.
func (c *Client) Query(ctx context.Context, q Query, opts ...CallOption) (QueryReply, error) {
	return c.conn.Query(ctx, q, opts...)
}

// QueryAsync sends q to the server and returns a Future for its reply.
func (c *Client) QueryAsync(ctx context.Context, q Query, opts ...CallOption) *Future {
	return goQuery(ctx, c, q, opts)
}

// Done returns a channel closed once the connection is torn down.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Close disconnects from the server and waits for the connection to stop.
func (c *Client) Close() error {
	return c.conn.Disconnect(true)
}
