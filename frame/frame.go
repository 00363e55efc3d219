// Package frame implements the peerlink wire format: a fixed ten byte header
// followed by a checksummed body, and the buffering needed to cut a TCP byte
// stream back into frames.
//
// Wire layout:
//
//	offset 0  4 bytes  magic delimiter
//	offset 4  4 bytes  gross frame length (header + body), little-endian int32
//	offset 8  2 bytes  checksum of the body bytes, little-endian
//	offset 10 N bytes  body
package frame

import (
	"bytes"
	"encoding/binary"
)

// HeaderSize is the size of the fixed frame header.
const HeaderSize = 10

// Magic is the delimiter that starts every frame.
var Magic = [4]byte{0x50, 0x4C, 0x4E, 0x4B}

// Header is the decoded fixed part of a frame.
type Header struct {
	Length   int32
	Checksum uint16
}

// AppendFrame appends a complete frame carrying body to dst.
func AppendFrame(dst, body []byte) []byte {
	var h [HeaderSize]byte
	copy(h[0:4], Magic[:])
	binary.LittleEndian.PutUint32(h[4:8], uint32(int32(HeaderSize+len(body))))
	binary.LittleEndian.PutUint16(h[8:10], Checksum(body))
	dst = append(dst, h[:]...)
	return append(dst, body...)
}

// parseHeader decodes the header at the start of b. ok is false when the
// delimiter does not match. b must hold at least HeaderSize bytes.
func parseHeader(b []byte) (h Header, ok bool) {
	if !bytes.Equal(b[0:4], Magic[:]) {
		return h, false
	}
	h.Length = int32(binary.LittleEndian.Uint32(b[4:8]))
	h.Checksum = binary.LittleEndian.Uint16(b[8:10])
	return h, true
}
