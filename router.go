package peerlink

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Handler is implemented by handler objects that bind their own routes.
//
//	func (h *Calculator) Register(r *peerlink.Router) error {
//		return peerlink.Answer(r, h.Add)
//	}
type Handler interface {
	Register(r *Router) error
}

// shape records which handler signature a route was registered with.
type shape uint8

const (
	shapePayload shape = iota + 1 // func(T)
	shapeContext                  // func(*Context, T)
)

// route is one entry of the dispatch table.
type route struct {
	descriptor string
	typ        reflect.Type
	kind       Kind
	shape      shape
	replyType  reflect.Type
	invoke     func(ctx *Context, p Payload) (QueryReply, error)
}

// Router maps payload type descriptors to handlers. It is built by explicit
// registration, usually once at startup, and is safe for concurrent
// dispatch from many connections.
type Router struct {
	mu     sync.RWMutex
	routes map[string]*route

	// types holds payload types that can be decoded without a route:
	// event types and the replies of queries sent from this side.
	types sync.Map // string -> reflect.Type
	// events marks types registered with RegisterPayload.
	events sync.Map // string -> struct{}
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	r := &Router{routes: make(map[string]*route)}
	r.remember(errorReflectType)
	r.remember(rawReflectType)
	return r
}

// Handle binds fn to notifications of type T.
func Handle[T Notification](r *Router, fn func(T) error) error {
	return r.add(newRoute[T](KindNotification, shapePayload, nil, func(_ *Context, p Payload) (QueryReply, error) {
		return nil, fn(p.(T))
	}))
}

// HandleContext binds fn to notifications of type T. fn receives the
// dispatch context along with the payload.
func HandleContext[T Notification](r *Router, fn func(*Context, T) error) error {
	return r.add(newRoute[T](KindNotification, shapeContext, nil, func(ctx *Context, p Payload) (QueryReply, error) {
		return nil, fn(ctx, p.(T))
	}))
}

// Answer binds fn to queries of type Q. The reply type R is checked against
// the query's declaration at compile time.
func Answer[R QueryReply, Q Asks[R]](r *Router, fn func(Q) (R, error)) error {
	return r.add(newRoute[Q](KindQuery, shapePayload, reflect.TypeFor[R](), func(_ *Context, p Payload) (QueryReply, error) {
		return replyOf(fn(p.(Q)))
	}))
}

// AnswerContext is Answer for handlers that need the dispatch context.
func AnswerContext[R QueryReply, Q Asks[R]](r *Router, fn func(*Context, Q) (R, error)) error {
	return r.add(newRoute[Q](KindQuery, shapeContext, reflect.TypeFor[R](), func(ctx *Context, p Payload) (QueryReply, error) {
		return replyOf(fn(ctx, p.(Q)))
	}))
}

// RegisterPayload makes T decodable without binding a handler. Such
// payloads are delivered to the endpoint's fallback callbacks, and a
// notification of type T without any receiver is dropped silently.
func RegisterPayload[T Payload](r *Router) {
	t := reflect.TypeFor[T]()
	r.remember(t)
	r.events.Store(TypeDescriptor(t), struct{}{})
}

func newRoute[T Payload](kind Kind, s shape, reply reflect.Type, invoke func(*Context, Payload) (QueryReply, error)) *route {
	t := reflect.TypeFor[T]()
	return &route{
		descriptor: TypeDescriptor(t),
		typ:        t,
		kind:       kind,
		shape:      s,
		replyType:  reply,
		invoke:     invoke,
	}
}

// replyOf converts a typed handler result, rejecting nil replies.
func replyOf[R QueryReply](reply R, err error) (QueryReply, error) {
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(reply)
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, ErrNilReply
	}
	return reply, nil
}

func (r *Router) add(rt *route) error {
	if rt.typ.Kind() == reflect.Interface {
		return fmt.Errorf("%w: payload type %s is an interface", ErrInvalidHandler, rt.typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[rt.descriptor]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, rt.descriptor)
	}
	r.routes[rt.descriptor] = rt
	if rt.replyType != nil {
		r.remember(rt.replyType)
	}
	return nil
}

// Register lets h bind its routes on r.
func (r *Router) Register(h Handler) error {
	return h.Register(r)
}

// lookup returns the route bound to descriptor.
func (r *Router) lookup(descriptor string) (*route, bool) {
	r.mu.RLock()
	rt, ok := r.routes[descriptor]
	r.mu.RUnlock()
	return rt, ok
}

// remember makes t decodable by its descriptor.
func (r *Router) remember(t reflect.Type) {
	r.types.LoadOrStore(TypeDescriptor(t), t)
}

// resolve returns the Go type behind descriptor.
func (r *Router) resolve(descriptor string) (reflect.Type, bool) {
	if rt, ok := r.lookup(descriptor); ok {
		return rt.typ, true
	}
	if t, ok := r.types.Load(descriptor); ok {
		return t.(reflect.Type), true
	}
	return nil, false
}

// isEvent reports whether descriptor was registered with RegisterPayload.
func (r *Router) isEvent(descriptor string) bool {
	_, ok := r.events.Load(descriptor)
	return ok
}

// Routes returns the descriptors of all bound payload types, sorted.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.routes))
	for d := range r.routes {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
