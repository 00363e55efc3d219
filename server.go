package peerlink

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// Server accepts peer connections and runs one Conn per peer. All
// connections share the server's router and provider bundle.
type Server struct {
	*endpoint

	listener *net.TCPListener
	logger   Logger

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
	wg          sync.WaitGroup
}

// New creates a server bound to addr.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opt ...Option) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	e := newEndpoint(opt)
	return &Server{
		endpoint:    e,
		listener:    listener,
		logger:      e.opts.logger,
		shutdownNow: make(chan struct{}, 1),
	}, nil
}

// Listen resolves address ("host:port") and creates a server bound to it.
func Listen(address string, opt ...Option) (*Server, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	return New(addr, opt...)
}

// Serve accepts connections until ctx is canceled or Close is called.
// When ctx is canceled and ShutdownTimeoutOption is set, the server keeps
// serving its connections for up to that duration; Close bypasses the
// remaining timeout. All connections are closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	// Connections outlive ctx until the shutdown timeout has passed.
	connCtx, cancelConns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConns()

	stopped := make(chan struct{})
	defer close(stopped)

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdownNow:
			return
		case <-stopped:
			return
		}

		if s.opts.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.opts.shutdownTimeout)
			t := time.NewTimer(s.opts.shutdownTimeout)
			select {
			case <-t.C:
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			case <-stopped:
				t.Stop()
				return
			}
			t.Stop()
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		raw, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				cancelConns()
				s.disconnectAll()
				s.wg.Wait()
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrServerClosed
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			cancelConns()
			s.disconnectAll()
			s.wg.Wait()
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", raw.RemoteAddr())
		_ = raw.SetNoDelay(true)

		c := s.newConn(raw)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = c.Run(connCtx)
		}()
	}
}

// Close stops the server and closes every connection. It bypasses any
// pending shutdown timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	err := s.listener.Close()
	s.disconnectAll()
	return err
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Notify sends n to the connection with the given id.
func (s *Server) Notify(ctx context.Context, connID string, n Notification) error {
	c, ok := s.Connection(connID)
	if !ok {
		return ErrUnknownConn
	}
	return c.Notify(ctx, n)
}

// Broadcast sends n to every live connection. Failures are joined.
func (s *Server) Broadcast(ctx context.Context, n Notification) error {
	var errs []error
	for _, c := range s.Connections() {
		if err := c.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query sends q to the connection with the given id and waits for its reply.
func (s *Server) Query(ctx context.Context, connID string, q Query, opts ...CallOption) (QueryReply, error) {
	c, ok := s.Connection(connID)
	if !ok {
		return nil, ErrUnknownConn
	}
	return c.Query(ctx, q, opts...)
}
