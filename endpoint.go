package peerlink

import (
	"net"
	"sort"
	"sync"

	"github.com/Zereker/peerlink/provider"
)

// endpoint is the state a Server or Client shares across its connections:
// the router, the active provider bundle and the table of live connections.
type endpoint struct {
	opts      options
	providers *provider.Holder

	mu    sync.RWMutex
	conns map[string]*Conn
}

func newEndpoint(opt []Option) *endpoint {
	opts := newOptions(opt)
	return &endpoint{
		opts:      opts,
		providers: provider.NewHolder(opts.bundle()),
		conns:     make(map[string]*Conn),
	}
}

// newConn creates a connection on raw and tracks it until it finishes.
func (e *endpoint) newConn(raw net.Conn) *Conn {
	c := newConn(raw, &e.opts, e.providers)
	c.onFinish = e.untrack

	e.mu.Lock()
	e.conns[c.id] = c
	e.mu.Unlock()
	return c
}

func (e *endpoint) untrack(c *Conn) {
	e.mu.Lock()
	delete(e.conns, c.id)
	e.mu.Unlock()
}

// AddHandler binds the routes of h on the endpoint's router.
func (e *endpoint) AddHandler(h Handler) error {
	return e.opts.router.Register(h)
}

// Router returns the endpoint's router.
func (e *endpoint) Router() *Router {
	return e.opts.router
}

// SetSerializer swaps the serializer used by every connection of the endpoint.
// Frames already assembled keep the serializer they were built with.
func (e *endpoint) SetSerializer(s provider.Serializer) {
	e.providers.SetSerializer(s)
}

// SetCompressor swaps the compressor. nil disables compression.
func (e *endpoint) SetCompressor(c provider.Compressor) {
	e.providers.SetCompressor(c)
}

// SetCryptographer swaps the cryptographer. nil disables encryption.
func (e *endpoint) SetCryptographer(c provider.Cryptographer) {
	e.providers.SetCryptographer(c)
}

// Providers returns the holder of the active provider bundle.
func (e *endpoint) Providers() *provider.Holder {
	return e.providers
}

// Connection returns the live connection with the given id.
func (e *endpoint) Connection(id string) (*Conn, bool) {
	e.mu.RLock()
	c, ok := e.conns[id]
	e.mu.RUnlock()
	return c, ok
}

// Connections returns the live connections ordered by id, which is also
// their creation order.
func (e *endpoint) Connections() []*Conn {
	e.mu.RLock()
	out := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// disconnectAll closes every live connection and waits for them to finish.
func (e *endpoint) disconnectAll() {
	for _, c := range e.Connections() {
		_ = c.Disconnect(false)
	}
	for _, c := range e.Connections() {
		<-c.done
	}
}
