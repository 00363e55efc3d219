package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Zereker/peerlink"
	"github.com/Zereker/peerlink/frame"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateListen(cfg, ve)
	validateBuffer(cfg, ve)
	validateQuery(cfg, ve)
	validateCodec(cfg, ve)
	validateCrypto(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateListen(cfg *Config, ve *ValidationError) {
	if cfg.Listen == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		ve.Add("listen %q is not host:port: %v", cfg.Listen, err)
	}
}

func validateBuffer(cfg *Config, ve *ValidationError) {
	b := cfg.Buffer
	if b.Initial <= 0 {
		ve.Add("buffer.initial must be > 0")
	}
	if b.Max < b.Initial {
		ve.Add("buffer.max (%d) must be >= buffer.initial (%d)", b.Max, b.Initial)
	}
	if b.Growth <= 0 {
		ve.Add("buffer.growth must be > 0")
	}
	if b.MaxFrame <= frame.HeaderSize {
		ve.Add("buffer.max_frame must be > %d", frame.HeaderSize)
	}
	if cfg.SendBuffer <= 0 {
		ve.Add("send_buffer must be > 0")
	}
	if cfg.Heartbeat < 0 {
		ve.Add("heartbeat must be >= 0")
	}
	if cfg.ShutdownTimeout < 0 {
		ve.Add("shutdown_timeout must be >= 0")
	}
}

func validateQuery(cfg *Config, ve *ValidationError) {
	d := time.Duration(cfg.Query.Timeout)
	if d < 0 && d != peerlink.Infinite {
		ve.Add("query.timeout must be > 0 or \"infinite\"")
	}
}

func validateCodec(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Codec.Serializer) {
	case "", "json", "cbor":
	default:
		ve.Add("codec.serializer %q is not one of json, cbor", cfg.Codec.Serializer)
	}

	switch strings.ToLower(cfg.Codec.Compression) {
	case "", "deflate", "brotli", "none", "identity":
	default:
		ve.Add("codec.compression %q is not one of deflate, brotli, none", cfg.Codec.Compression)
	}
}

func validateCrypto(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Crypto.Algorithm) {
	case "", "none":
		return
	case "aes-cbc", "aes", "chacha20poly1305", "chacha20-poly1305":
	default:
		ve.Add("crypto.algorithm %q is not one of none, aes-cbc, chacha20poly1305", cfg.Crypto.Algorithm)
		return
	}

	if cfg.Crypto.Passphrase == "" {
		ve.Add("crypto.passphrase is required when crypto.algorithm is %q", cfg.Crypto.Algorithm)
	}
	if len(cfg.Crypto.Salt) < 8 {
		ve.Add("crypto.salt must be at least 8 bytes")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}

	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is not one of text, json", cfg.Logger.Format)
	}
}
