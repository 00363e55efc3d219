package peerlink

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/Zereker/peerlink/provider"
)

// Kind is the role a payload plays in the protocol.
type Kind uint8

const (
	// KindNotification is a one-way payload.
	KindNotification Kind = iota + 1
	// KindQuery is a payload that expects exactly one reply.
	KindQuery
	// KindReply answers a query.
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindQuery:
		return "query"
	case KindReply:
		return "reply"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Payload is anything that travels inside a frame. Payload types get their
// role by embedding NotificationBase, QueryBase or ReplyBase.
type Payload interface {
	payloadKind() Kind
}

// Notification is a fire-and-forget payload.
type Notification interface {
	Payload
	notification()
}

// Query is a payload that expects a reply of a statically declared type.
type Query interface {
	Payload
	replyType() reflect.Type
}

// Asks is satisfied by queries that declare R as their reply.
type Asks[R QueryReply] interface {
	Query
	asks() R
}

// QueryReply is the answer to a Query.
type QueryReply interface {
	Payload
	reply()
}

// NotificationBase marks the embedding struct as a Notification.
type NotificationBase struct{}

func (NotificationBase) payloadKind() Kind { return KindNotification }
func (NotificationBase) notification()     {}

// QueryBase marks the embedding struct as a Query answered by R.
//
//	type Add struct {
//		peerlink.QueryBase[Sum]
//		A, B int
//	}
type QueryBase[R QueryReply] struct{}

func (QueryBase[R]) payloadKind() Kind { return KindQuery }

func (QueryBase[R]) replyType() reflect.Type { return reflect.TypeFor[R]() }

func (QueryBase[R]) asks() (r R) { return r }

// ReplyBase marks the embedding struct as a QueryReply.
type ReplyBase struct{}

func (ReplyBase) payloadKind() Kind { return KindReply }
func (ReplyBase) reply()            {}

// Raw is a notification whose bytes are sent as they are, bypassing the serializer.
type Raw []byte

func (Raw) payloadKind() Kind { return KindNotification }
func (Raw) notification()     {}

// RawType is the type descriptor reserved for Raw payloads.
const RawType = "raw"

// ErrorReply is sent in place of the real reply when a query handler fails.
// Callers observe it as a *RemoteError.
type ErrorReply struct {
	ReplyBase
	Message string `json:"message" cbor:"1,keyasint"`
	Source  string `json:"source,omitempty" cbor:"2,keyasint,omitempty"`
}

var (
	rawReflectType   = reflect.TypeFor[Raw]()
	errorReflectType = reflect.TypeFor[ErrorReply]()

	descriptors sync.Map // reflect.Type -> string
)

// TypeDescriptor returns the string identifying t on the wire: its package
// path and name, including closed type arguments of generic types. Pointer
// types share the descriptor of their element type.
func TypeDescriptor(t reflect.Type) string {
	if d, ok := descriptors.Load(t); ok {
		return d.(string)
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	var d string
	switch {
	case base == rawReflectType:
		d = RawType
	case base.PkgPath() == "" || base.Name() == "":
		d = base.String()
	default:
		d = base.PkgPath() + "." + base.Name()
	}

	descriptors.Store(t, d)
	return d
}

// DescriptorOf returns the type descriptor of p.
func DescriptorOf(p Payload) string {
	return TypeDescriptor(reflect.TypeOf(p))
}

// encodePayload serializes p for a frame body.
func encodePayload(s provider.Serializer, p Payload) ([]byte, error) {
	if raw, ok := p.(Raw); ok {
		return raw, nil
	}
	return s.Marshal(p)
}

// decodePayload deserializes data into a new value of type t.
func decodePayload(s provider.Serializer, t reflect.Type, data []byte) (Payload, error) {
	if t == rawReflectType {
		return Raw(data), nil
	}

	base := t
	if t.Kind() == reflect.Pointer {
		base = t.Elem()
	}

	v := reflect.New(base)
	if err := s.Unmarshal(data, v.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s: %w", TypeDescriptor(t), err)
	}
	if t.Kind() != reflect.Pointer {
		v = v.Elem()
	}

	p, ok := v.Interface().(Payload)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a payload", ErrUnknownPayload, t)
	}
	return p, nil
}
