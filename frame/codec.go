package frame

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/peerlink/provider"
)

// Body is the envelope carried inside a frame.
type Body struct {
	// ID is unique per outbound frame. A reply carries the ID of its query.
	ID uuid.UUID `cbor:"1,keyasint"`
	// Type describes the payload's concrete type.
	Type string `cbor:"2,keyasint"`
	// ReplyType describes the reply a query expects. Empty for other frames.
	ReplyType string `cbor:"3,keyasint,omitempty"`
	// Data is the serialized payload.
	Data []byte `cbor:"4,keyasint"`
}

// IsQuery reports whether the body carries a query.
func (b *Body) IsQuery() bool {
	return b.ReplyType != ""
}

var (
	bodyEnc cbor.EncMode
	bodyDec cbor.DecMode
)

func init() {
	var err error
	if bodyEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if bodyDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Assemble encodes body into a complete frame: the envelope is CBOR encoded,
// compressed, encrypted when a cryptographer is set, and prefixed with the
// header whose checksum covers the final bytes.
func Assemble(body *Body, b provider.Bundle) ([]byte, error) {
	data, err := bodyEnc.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode frame body")
	}

	if b.Compressor != nil {
		if data, err = b.Compressor.Compress(data); err != nil {
			return nil, errors.Wrap(err, "compress frame body")
		}
	}

	if b.Cryptographer != nil {
		if data, err = b.Cryptographer.Encrypt(data); err != nil {
			return nil, errors.Wrap(err, "encrypt frame body")
		}
	}

	if HeaderSize+len(data) > int(^uint32(0)>>1) {
		return nil, errors.Errorf("frame body too large: %d bytes", len(data))
	}

	return AppendFrame(make([]byte, 0, HeaderSize+len(data)), data), nil
}

// Extract reverses Assemble for a frame body returned by Buffer.NextFrame.
// The decompressed envelope may not exceed maxSize bytes; maxSize <= 0
// disables the check.
func Extract(data []byte, b provider.Bundle, maxSize int) (*Body, error) {
	var err error

	if b.Cryptographer != nil {
		if data, err = b.Cryptographer.Decrypt(data); err != nil {
			return nil, errors.Wrap(err, "decrypt frame body")
		}
	}

	if b.Compressor != nil {
		if data, err = provider.DecompressLimit(b.Compressor, data, maxSize); err != nil {
			return nil, errors.Wrap(err, "decompress frame body")
		}
	}

	body := new(Body)
	if err = bodyDec.Unmarshal(data, body); err != nil {
		return nil, errors.Wrap(err, "decode frame body")
	}
	if body.Type == "" {
		return nil, errors.New("decode frame body: missing payload type")
	}
	return body, nil
}
