package peerlink

import (
	"time"

	"github.com/Zereker/peerlink/frame"
	"github.com/Zereker/peerlink/provider"
)

// ErrorAction defines the action to take when a transport error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration shared by an endpoint and its connections.
type options struct {
	logger Logger
	router *Router

	serializer    provider.Serializer
	compressor    provider.Compressor
	cryptographer provider.Cryptographer

	onConnected    func(*Conn)
	onDisconnected func(*Conn, error)
	// onNotification and onQuery receive payloads that have no route.
	onNotification func(*Context, Notification) error
	onQuery        func(*Context, Query) (QueryReply, error)
	// onHandlerError is called for handler failures and undeliverable payloads.
	onHandlerError func(*Context, error, Payload)
	// onError is called when a read/write error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize      int           // size of the outbound frame channel
	initialReadSize int           // initial receive buffer size
	maxReadSize     int           // maximum receive buffer size
	growthRate      float64       // receive buffer growth after a full read
	maxFrameSize    int           // largest accepted frame
	queryTimeout    time.Duration // default query timeout
	heartbeat       time.Duration // idle read/write deadline, 0 disables
	shutdownTimeout time.Duration // server graceful shutdown delay

	userParam any
}

// Option is a function that configures endpoint and connection options.
type Option func(*options)

// RouterOption sets the router used to dispatch received payloads.
// Endpoints create an empty router when none is given.
func RouterOption(r *Router) Option {
	return func(o *options) {
		o.router = r
	}
}

// SerializerOption sets the payload serializer. Defaults to JSON.
func SerializerOption(s provider.Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// CompressorOption sets the frame body compressor. Defaults to deflate.
func CompressorOption(c provider.Compressor) Option {
	return func(o *options) {
		o.compressor = c
	}
}

// CryptographerOption sets the frame body cryptographer. Frames are not
// encrypted unless one is set.
func CryptographerOption(c provider.Cryptographer) Option {
	return func(o *options) {
		o.cryptographer = c
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more frames to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// ReadBufferOption sets the initial and maximum receive buffer size and the
// rate the buffer grows by when a read fills it.
func ReadBufferOption(initial, maxSize int, growth float64) Option {
	return func(o *options) {
		o.initialReadSize = initial
		o.maxReadSize = maxSize
		o.growthRate = growth
	}
}

// MessageMaxSize returns an Option that sets the maximum frame size.
// Larger frames are treated as corruption and skipped.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// QueryTimeoutOption sets the default timeout of outbound queries.
// Use Infinite to wait without limit.
func QueryTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.queryTimeout = timeout
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// When set, a connection idle for twice the interval is closed.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// ShutdownTimeoutOption sets the graceful shutdown timeout of a Server.
// When the context passed to Serve is canceled, the server waits up to this
// duration before closing the listener and its connections.
func ShutdownTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = timeout
	}
}

// OnErrorOption returns an Option that sets the transport error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnConnectedOption sets the callback fired when a connection starts running.
func OnConnectedOption(cb func(*Conn)) Option {
	return func(o *options) {
		o.onConnected = cb
	}
}

// OnDisconnectedOption sets the callback fired exactly once when a
// connection stops. err is nil for a graceful close.
func OnDisconnectedOption(cb func(*Conn, error)) Option {
	return func(o *options) {
		o.onDisconnected = cb
	}
}

// OnNotificationOption sets the fallback for notifications without a route.
func OnNotificationOption(cb func(*Context, Notification) error) Option {
	return func(o *options) {
		o.onNotification = cb
	}
}

// OnQueryOption sets the fallback for queries without a route. It must
// return a reply of the type the query declares.
func OnQueryOption(cb func(*Context, Query) (QueryReply, error)) Option {
	return func(o *options) {
		o.onQuery = cb
	}
}

// OnHandlerErrorOption sets the hook invoked when a handler fails or a
// payload cannot be delivered. p may be nil if the payload could not be decoded.
func OnHandlerErrorOption(cb func(ctx *Context, err error, p Payload)) Option {
	return func(o *options) {
		o.onHandlerError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// UserParamOption attaches an opaque value to the endpoint, available to
// handlers through Context.UserParam.
func UserParamOption(v any) Option {
	return func(o *options) {
		o.userParam = v
	}
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the send channel buffer.
	defaultBufferSize = 16
	// defaultQueryTimeout is used when no query timeout is configured.
	defaultQueryTimeout = 30 * time.Second
)

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.initialReadSize <= 0 {
		opts.initialReadSize = frame.DefaultInitialSize
	}

	if opts.maxReadSize < opts.initialReadSize {
		opts.maxReadSize = max(frame.DefaultMaxSize, opts.initialReadSize)
	}

	if opts.growthRate <= 0 {
		opts.growthRate = frame.DefaultGrowthRate
	}

	if opts.maxFrameSize <= frame.HeaderSize {
		opts.maxFrameSize = frame.DefaultMaxFrameSize
	}

	if opts.queryTimeout == 0 {
		opts.queryTimeout = defaultQueryTimeout
	}

	if opts.heartbeat < 0 {
		opts.heartbeat = 0
	}

	if opts.router == nil {
		opts.router = NewRouter()
	}

	if opts.serializer == nil {
		opts.serializer = provider.JSON{}
	}

	if opts.compressor == nil {
		opts.compressor = provider.Deflate{}
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

func newOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// bundle returns the provider set configured by the options.
func (o *options) bundle() provider.Bundle {
	return provider.Bundle{
		Serializer:    o.serializer,
		Compressor:    o.compressor,
		Cryptographer: o.cryptographer,
	}
}
