package frame

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Default buffer configuration values.
const (
	// DefaultInitialSize is the initial size of the receive buffer (4KB).
	DefaultInitialSize = 4 * 1024
	// DefaultMaxSize is the size the receive buffer never grows beyond (1MB).
	DefaultMaxSize = 1024 * 1024
	// DefaultGrowthRate is the fraction the receive buffer grows by after a full read.
	DefaultGrowthRate = 0.2
	// DefaultMaxFrameSize is the largest gross frame length accepted (16MB).
	DefaultMaxFrameSize = 16 * 1024 * 1024
)

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// InitialSizeOption sets the initial receive buffer size.
func InitialSizeOption(size int) BufferOption {
	return func(b *Buffer) {
		b.recv = make([]byte, size)
	}
}

// MaxSizeOption sets the maximum receive buffer size.
func MaxSizeOption(size int) BufferOption {
	return func(b *Buffer) {
		b.maxRecv = size
	}
}

// GrowthRateOption sets the growth rate applied when a read fills the receive buffer.
func GrowthRateOption(rate float64) BufferOption {
	return func(b *Buffer) {
		b.growth = rate
	}
}

// MaxFrameSizeOption sets the largest gross frame length that is not treated as corruption.
func MaxFrameSizeOption(size int) BufferOption {
	return func(b *Buffer) {
		b.maxFrame = size
	}
}

// Buffer accumulates raw stream reads and cuts them into frames. The frame
// builder may hold any number of complete frames followed by a partial one.
type Buffer struct {
	mu sync.Mutex

	recv     []byte
	maxRecv  int
	growth   float64
	maxFrame int

	pending []byte
	skipped int
}

// NewBuffer creates a Buffer. Unset or invalid options fall back to defaults.
func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{}
	for _, o := range opts {
		o(b)
	}
	if len(b.recv) == 0 {
		b.recv = make([]byte, DefaultInitialSize)
	}
	if b.maxRecv < len(b.recv) {
		b.maxRecv = max(DefaultMaxSize, len(b.recv))
	}
	if b.growth <= 0 {
		b.growth = DefaultGrowthRate
	}
	if b.maxFrame <= HeaderSize {
		b.maxFrame = DefaultMaxFrameSize
	}
	return b
}

// ReadStream performs one blocking read from r and appends what was read to
// the frame builder. It returns false with a nil error once r is closed
// gracefully, and false with the error on any other read failure.
func (b *Buffer) ReadStream(r io.Reader) (bool, error) {
	b.mu.Lock()
	recv := b.recv
	b.mu.Unlock()

	// The read blocks, so it runs without the lock held.
	n, err := r.Read(recv)

	b.mu.Lock()
	defer b.mu.Unlock()

	if n > 0 {
		b.pending = append(b.pending, recv[:n]...)
		if n == len(recv) && len(recv) < b.maxRecv {
			b.grow()
		}
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// grow enlarges the receive buffer by the growth rate, capped at the maximum.
func (b *Buffer) grow() {
	size := int(float64(len(b.recv)) * (1 + b.growth))
	if size <= len(b.recv) {
		size = len(b.recv) + 1
	}
	if size > b.maxRecv {
		size = b.maxRecv
	}
	b.recv = make([]byte, size)
}

// Write appends p to the frame builder. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	b.mu.Unlock()
	return len(p), nil
}

// NextFrame returns the body of the next complete frame in the builder.
// It returns false when no complete frame is buffered yet. Corrupt frames
// are skipped until the next delimiter.
func (b *Buffer) NextFrame() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.pending) >= HeaderSize {
		h, ok := parseHeader(b.pending)
		if !ok || h.Length < HeaderSize || int(h.Length) > b.maxFrame {
			b.skipFrame()
			continue
		}

		size := int(h.Length)
		if len(b.pending) < size {
			return nil, false
		}

		body := b.pending[HeaderSize:size]
		if Checksum(body) != h.Checksum {
			b.skipFrame()
			continue
		}

		out := make([]byte, len(body))
		copy(out, body)
		b.pending = b.pending[:copy(b.pending, b.pending[size:])]
		return out, true
	}
	return nil, false
}

// SkipFrame drops the frame at the start of the builder by discarding
// everything up to the next delimiter, or the whole builder if there is none.
func (b *Buffer) SkipFrame() {
	b.mu.Lock()
	b.skipFrame()
	b.mu.Unlock()
}

func (b *Buffer) skipFrame() {
	b.skipped++
	if len(b.pending) <= 1 {
		b.pending = b.pending[:0]
		return
	}
	i := bytes.Index(b.pending[1:], Magic[:])
	if i < 0 {
		b.pending = b.pending[:0]
		return
	}
	b.pending = b.pending[:copy(b.pending, b.pending[i+1:])]
}

// Resize changes the receive buffer parameters. A non-positive value keeps
// the current setting.
func (b *Buffer) Resize(initial, maxSize int, growth float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if initial > 0 && initial != len(b.recv) {
		b.recv = make([]byte, initial)
	}
	if maxSize > 0 {
		b.maxRecv = max(maxSize, len(b.recv))
	}
	if growth > 0 {
		b.growth = growth
	}
}

// Len returns the number of bytes buffered in the frame builder.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Cap returns the current receive buffer size.
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recv)
}

// Skipped returns how many times the buffer had to resynchronize.
func (b *Buffer) Skipped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.pending = b.pending[:0]
	b.mu.Unlock()
}
