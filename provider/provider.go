// Package provider defines the pluggable serialization, compression and
// cryptography strategies applied to every peerlink frame, and ships the
// stock implementations.
package provider

import (
	"sync"
	"sync/atomic"
)

// Serializer turns payload values into bytes and back.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Compressor is a lossless transform applied to a frame body.
type Compressor interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// Cryptographer encrypts and decrypts a frame body.
type Cryptographer interface {
	Encrypt(p []byte) ([]byte, error)
	Decrypt(p []byte) ([]byte, error)
}

// Bundle is the set of providers used for one frame operation.
// A nil Compressor leaves bodies uncompressed, a nil Cryptographer leaves them
// in plain text.
type Bundle struct {
	Serializer    Serializer
	Compressor    Compressor
	Cryptographer Cryptographer
}

// Default returns the bundle used when nothing else is configured:
// JSON payloads and deflate compression without encryption.
func Default() Bundle {
	return Bundle{
		Serializer: JSON{},
		Compressor: Deflate{},
	}
}

// Holder publishes a Bundle that can be swapped while frames are in flight.
// Readers take a consistent snapshot with Load; writers replace the whole
// bundle so a reader never sees a half-updated set.
type Holder struct {
	mu sync.Mutex // serializes writers
	p  atomic.Pointer[Bundle]
}

// NewHolder creates a Holder publishing b. A nil serializer in b is replaced by JSON.
func NewHolder(b Bundle) *Holder {
	h := &Holder{}
	h.Store(b)
	return h
}

// Load returns the current bundle.
func (h *Holder) Load() Bundle {
	if b := h.p.Load(); b != nil {
		return *b
	}
	return Default()
}

// Store replaces the current bundle.
func (h *Holder) Store(b Bundle) {
	if b.Serializer == nil {
		b.Serializer = JSON{}
	}
	h.mu.Lock()
	h.p.Store(&b)
	h.mu.Unlock()
}

// SetSerializer swaps the serializer, keeping the other providers.
func (h *Holder) SetSerializer(s Serializer) {
	h.update(func(b *Bundle) { b.Serializer = s })
}

// SetCompressor swaps the compressor, keeping the other providers.
func (h *Holder) SetCompressor(c Compressor) {
	h.update(func(b *Bundle) { b.Compressor = c })
}

// SetCryptographer swaps the cryptographer, keeping the other providers.
// Passing nil disables encryption.
func (h *Holder) SetCryptographer(c Cryptographer) {
	h.update(func(b *Bundle) { b.Cryptographer = c })
}

func (h *Holder) update(fn func(*Bundle)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := Default()
	if cur := h.p.Load(); cur != nil {
		next = *cur
	}
	fn(&next)
	if next.Serializer == nil {
		next.Serializer = JSON{}
	}
	h.p.Store(&next)
}
