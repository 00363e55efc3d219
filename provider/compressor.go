package provider

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"
)

// ErrTooLarge is returned when a body inflates beyond the allowed size.
var ErrTooLarge = errors.New("decompressed body too large")

// LimitedDecompressor is implemented by compressors that stop inflating as
// soon as the output exceeds limit bytes.
type LimitedDecompressor interface {
	DecompressLimit(p []byte, limit int) ([]byte, error)
}

// DecompressLimit decompresses p with c and fails with ErrTooLarge when the
// output exceeds limit bytes. A limit <= 0 disables the check. Compressors
// that do not implement LimitedDecompressor are checked after the fact.
func DecompressLimit(c Compressor, p []byte, limit int) ([]byte, error) {
	if lc, ok := c.(LimitedDecompressor); ok {
		return lc.DecompressLimit(p, limit)
	}

	out, err := c.Decompress(p)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		return nil, errors.Wrapf(ErrTooLarge, "%d bytes, limit %d", len(out), limit)
	}
	return out, nil
}

// readLimit reads r to the end, reading at most one byte past limit.
func readLimit(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, errors.Wrapf(ErrTooLarge, "limit %d", limit)
	}
	return out, nil
}

// Identity is a Compressor that leaves bytes untouched.
type Identity struct{}

// Compress implements Compressor.
func (Identity) Compress(p []byte) ([]byte, error) { return p, nil }

// Decompress implements Compressor.
func (Identity) Decompress(p []byte) ([]byte, error) { return p, nil }

// Deflate compresses with raw DEFLATE at Level (flate.DefaultCompression when zero).
type Deflate struct {
	Level int
}

// Compress implements Compressor.
func (d Deflate) Compress(p []byte) ([]byte, error) {
	level := d.Level
	if level == 0 {
		level = flate.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, errors.Wrap(err, "deflate writer")
	}
	if _, err := w.Write(p); err != nil {
		return nil, errors.Wrap(err, "deflate write")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "deflate close")
	}
	return buf.Bytes(), nil
}

// Decompress implements Compressor.
func (d Deflate) Decompress(p []byte) ([]byte, error) {
	return d.DecompressLimit(p, 0)
}

// DecompressLimit implements LimitedDecompressor.
func (Deflate) DecompressLimit(p []byte, limit int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(p))
	defer r.Close()

	out, err := readLimit(r, limit)
	if err != nil {
		return nil, errors.Wrap(err, "inflate")
	}
	return out, nil
}

// Brotli compresses with Brotli at Quality (brotli.DefaultCompression when zero).
type Brotli struct {
	Quality int
}

// Compress implements Compressor.
func (b Brotli) Compress(p []byte) ([]byte, error) {
	quality := b.Quality
	if quality == 0 {
		quality = brotli.DefaultCompression
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, quality)
	if _, err := w.Write(p); err != nil {
		return nil, errors.Wrap(err, "brotli write")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "brotli close")
	}
	return buf.Bytes(), nil
}

// Decompress implements Compressor.
func (b Brotli) Decompress(p []byte) ([]byte, error) {
	return b.DecompressLimit(p, 0)
}

// DecompressLimit implements LimitedDecompressor.
func (Brotli) DecompressLimit(p []byte, limit int) ([]byte, error) {
	out, err := readLimit(brotli.NewReader(bytes.NewReader(p)), limit)
	if err != nil {
		return nil, errors.Wrap(err, "brotli read")
	}
	return out, nil
}
